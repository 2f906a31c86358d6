package application

import (
	"context"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

const dashboardRecentEvents = 10

// DashboardStats is the aggregate snapshot served to the integration
// dashboard. It is assembled from the individual stores on demand; nothing
// here is cached.
type DashboardStats struct {
	TotalEvents       int64                         `json:"total_events"`
	UnprocessedEvents int64                         `json:"unprocessed_events"`
	TotalRules        int64                         `json:"total_rules"`
	ActiveRules       int64                         `json:"active_rules"`
	TotalMappings     int64                         `json:"total_mappings"`
	TotalContacts     int64                         `json:"total_contacts"`
	LiveFeedClients   int                           `json:"live_feed_clients"`
	SyncStatus        map[string]*domain.SyncStatus `json:"sync_status"`
	RecentEvents      []*domain.CrossModuleEvent    `json:"recent_events"`
}

// DashboardService aggregates engine state for the stats endpoint.
type DashboardService struct {
	logger      domain.Logger
	events      domain.EventStore
	rules       domain.RuleStore
	mappings    domain.MappingStore
	contacts    domain.ContactStore
	syncs       domain.SyncStateStore
	broadcaster *EventBroadcaster
}

func NewDashboardService(
	logger domain.Logger,
	events domain.EventStore,
	rules domain.RuleStore,
	mappings domain.MappingStore,
	contacts domain.ContactStore,
	syncs domain.SyncStateStore,
	broadcaster *EventBroadcaster,
) *DashboardService {
	return &DashboardService{
		logger:      logger,
		events:      events,
		rules:       rules,
		mappings:    mappings,
		contacts:    contacts,
		syncs:       syncs,
		broadcaster: broadcaster,
	}
}

// Stats assembles the dashboard snapshot. A failure in any store aborts the
// whole snapshot; partial stats would be misleading on a dashboard.
func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{
		SyncStatus:   map[string]*domain.SyncStatus{},
		RecentEvents: []*domain.CrossModuleEvent{},
	}

	totalEvents, err := s.events.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.TotalEvents = totalEvents

	recent, err := s.events.List(ctx, domain.EventFilter{Limit: dashboardRecentEvents})
	if err != nil {
		return nil, err
	}
	stats.RecentEvents = recent

	// Unprocessed count over the retained window, same bound as sync replay.
	window, err := s.events.List(ctx, domain.EventFilter{Limit: syncReplayLimit})
	if err != nil {
		return nil, err
	}
	for _, event := range window {
		if !event.Processed {
			stats.UnprocessedEvents++
		}
	}

	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, err
	}
	stats.TotalRules = int64(len(rules))
	for _, rule := range rules {
		if rule.Enabled {
			stats.ActiveRules++
		}
	}

	mappings, err := s.mappings.List(ctx)
	if err != nil {
		return nil, err
	}
	stats.TotalMappings = int64(len(mappings))

	totalContacts, err := s.contacts.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.TotalContacts = totalContacts

	syncs, err := s.syncs.All(ctx)
	if err != nil {
		return nil, err
	}
	stats.SyncStatus = syncs

	if s.broadcaster != nil {
		stats.LiveFeedClients = s.broadcaster.Subscribers()
	}
	return stats, nil
}
