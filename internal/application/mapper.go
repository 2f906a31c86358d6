package application

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

// MappingService owns the schema-translation pipeline between module record
// shapes. Registration validates the configuration hard (unknown transform
// types never reach runtime); Apply is stateless and safe to run in
// parallel across records.
type MappingService struct {
	logger domain.Logger
	store  domain.MappingStore
}

// NewMappingService constructs a MappingService.
func NewMappingService(logger domain.Logger, store domain.MappingStore) *MappingService {
	return &MappingService{logger: logger, store: store}
}

// Register validates and persists a data mapping. Unknown transform types
// are a ConfigurationError and nothing is persisted.
func (s *MappingService) Register(ctx context.Context, mapping *domain.DataMapping) (*domain.DataMapping, error) {
	if strings.TrimSpace(mapping.SourceModule) == "" {
		return nil, &domain.ValidationError{Field: "source_module", Reason: "must not be empty"}
	}
	if strings.TrimSpace(mapping.TargetModule) == "" {
		return nil, &domain.ValidationError{Field: "target_module", Reason: "must not be empty"}
	}
	for _, fm := range mapping.FieldMappings {
		if fm.SourceField == "" || fm.TargetField == "" {
			return nil, &domain.ValidationError{Field: "field_mappings", Reason: "source_field and target_field are required"}
		}
	}
	for _, tr := range mapping.TransformRules {
		if !domain.ValidTransform(tr.TransformType) {
			return nil, &domain.ConfigurationError{Kind: "transform_type", Value: string(tr.TransformType)}
		}
	}

	if mapping.ID == "" {
		mapping.ID = "mapping_" + uuid.NewString()
	}
	if err := s.store.Save(ctx, mapping); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Data mapping registered",
		"mapping_id", mapping.ID, "source_module", mapping.SourceModule, "target_module", mapping.TargetModule)
	return mapping, nil
}

// Get returns one mapping by id.
func (s *MappingService) Get(ctx context.Context, id string) (*domain.DataMapping, error) {
	return s.store.Get(ctx, id)
}

// List returns all registered mappings.
func (s *MappingService) List(ctx context.Context) ([]*domain.DataMapping, error) {
	return s.store.List(ctx)
}

// FindBySourceTarget returns the mapping for a module pair, or
// domain.ErrMappingNotFound.
func (s *MappingService) FindBySourceTarget(ctx context.Context, sourceModule, targetModule string) (*domain.DataMapping, error) {
	return s.store.FindBySourceTarget(ctx, sourceModule, targetModule)
}

// Apply translates one source record into the target shape. The source
// record is never mutated. A required field that resolves to nothing (no
// value, no default) fails this record with a MappingError; transform rules
// run in list order, later transforms seeing earlier output.
func (s *MappingService) Apply(mapping *domain.DataMapping, source map[string]any) (map[string]any, error) {
	target := make(map[string]any, len(mapping.FieldMappings))

	for _, fm := range mapping.FieldMappings {
		value, found := resolvePath(source, fm.SourceField)
		if !found || value == nil {
			if fm.DefaultValue != nil {
				target[fm.TargetField] = *fm.DefaultValue
				continue
			}
			if fm.Required {
				return nil, &domain.MappingError{Field: fm.SourceField, Reason: "required field has no value and no default"}
			}
			continue
		}
		target[fm.TargetField] = value
	}

	for _, tr := range mapping.TransformRules {
		current, ok := target[tr.Field]
		if !ok {
			continue
		}
		transformed, err := applyTransform(tr, current, target)
		if err != nil {
			return nil, err
		}
		target[tr.Field] = transformed
	}

	return target, nil
}

// ApplyBatch maps each record independently: a MappingError on one record
// does not fail the batch. Results and errors are index-aligned with the
// input.
func (s *MappingService) ApplyBatch(mapping *domain.DataMapping, records []map[string]any) ([]map[string]any, []error) {
	results := make([]map[string]any, len(records))
	errs := make([]error, len(records))
	for i, record := range records {
		results[i], errs[i] = s.Apply(mapping, record)
	}
	return results, errs
}

// applyTransform applies one transform rule to a target field value.
// Unknown transform types are a MappingError here as well, so a stale store
// entry cannot degrade into a silent no-op.
func applyTransform(tr domain.TransformRule, value any, target map[string]any) (any, error) {
	str := stringify(value)

	switch tr.TransformType {
	case domain.TransformUppercase:
		return strings.ToUpper(str), nil
	case domain.TransformLowercase:
		return strings.ToLower(str), nil
	case domain.TransformTrim:
		return strings.TrimSpace(str), nil
	case domain.TransformPrefix:
		return tr.Parameters["value"] + str, nil
	case domain.TransformSuffix:
		return str + tr.Parameters["value"], nil
	case domain.TransformConcat:
		// Joins the field with another target field's value.
		other := stringify(target[tr.Parameters["field"]])
		separator := tr.Parameters["separator"]
		if separator == "" {
			separator = " "
		}
		return str + separator + other, nil
	case domain.TransformDateFormat:
		sourceLayout := tr.Parameters["source_format"]
		if sourceLayout == "" {
			sourceLayout = time.RFC3339
		}
		targetLayout := tr.Parameters["format"]
		if targetLayout == "" {
			targetLayout = time.RFC3339
		}
		t, err := time.Parse(sourceLayout, str)
		if err != nil {
			return nil, &domain.MappingError{Field: tr.Field, Reason: "value does not parse as a date: " + err.Error()}
		}
		return t.Format(targetLayout), nil
	case domain.TransformLookup:
		// The parameters map is the lookup table itself; "default" is the
		// fallback when the value is not a key.
		if mapped, ok := tr.Parameters[str]; ok {
			return mapped, nil
		}
		if fallback, ok := tr.Parameters["default"]; ok {
			return fallback, nil
		}
		return str, nil
	case domain.TransformDefault:
		if str == "" {
			return tr.Parameters["value"], nil
		}
		return value, nil
	default:
		return nil, &domain.MappingError{Field: tr.Field, Reason: "unknown transform type " + string(tr.TransformType)}
	}
}
