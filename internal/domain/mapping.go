package domain

// TransformType names a post-copy transformation applied to a mapped field.
type TransformType string

const (
	TransformUppercase  TransformType = "uppercase"
	TransformLowercase  TransformType = "lowercase"
	TransformTrim       TransformType = "trim"
	TransformPrefix     TransformType = "prefix"
	TransformSuffix     TransformType = "suffix"
	TransformConcat     TransformType = "concat"
	TransformDateFormat TransformType = "date_format"
	TransformLookup     TransformType = "lookup"
	TransformDefault    TransformType = "default"
)

var knownTransforms = map[TransformType]struct{}{
	TransformUppercase: {}, TransformLowercase: {}, TransformTrim: {},
	TransformPrefix: {}, TransformSuffix: {}, TransformConcat: {},
	TransformDateFormat: {}, TransformLookup: {}, TransformDefault: {},
}

// ValidTransform reports whether t is a supported transform type. Unknown
// transforms are rejected at mapping registration (ConfigurationError) so a
// configuration mistake cannot masquerade as a no-op.
func ValidTransform(t TransformType) bool {
	_, ok := knownTransforms[t]
	return ok
}

// FieldMapping copies one source field into one target field. A required
// field that resolves to nothing (no source value, no default) fails that
// record with a MappingError; other records in the batch are unaffected.
type FieldMapping struct {
	SourceField  string  `json:"source_field"`
	TargetField  string  `json:"target_field"`
	Required     bool    `json:"required"`
	DefaultValue *string `json:"default_value,omitempty"`
}

// TransformRule mutates one target field after the direct copy phase.
// Transform rules run in list order; later rules see earlier output.
type TransformRule struct {
	Field         string            `json:"field"`
	TransformType TransformType     `json:"transform_type"`
	Parameters    map[string]string `json:"parameters"`
}

// DataMapping is a declarative schema translation between two modules'
// record shapes.
type DataMapping struct {
	ID             string          `json:"id"`
	SourceModule   string          `json:"source_module"`
	TargetModule   string          `json:"target_module"`
	FieldMappings  []FieldMapping  `json:"field_mappings"`
	TransformRules []TransformRule `json:"transform_rules"`
}
