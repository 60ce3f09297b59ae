package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.pilab.hu/fxapi/domain"
)

// AuditEventStore implements domain.AuditEventRepository.
type AuditEventStore struct {
	mu     sync.RWMutex
	events []*domain.AuditEvent
	// FailWith makes Append fail, for exercising audit failure policies.
	FailWith error
}

// NewAuditEventStore creates an empty AuditEventStore.
func NewAuditEventStore() *AuditEventStore {
	return &AuditEventStore{}
}

func cloneEvent(e *domain.AuditEvent) *domain.AuditEvent {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Append stores the event and assigns its ID.
func (s *AuditEventStore) Append(_ context.Context, event *domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		return s.FailWith
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	s.events = append(s.events, cloneEvent(event))
	return nil
}

func matchesEvent(e *domain.AuditEvent, accountID string, f domain.EventFilter) bool {
	if e.AccountID != accountID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// List returns the account's events, newest first.
func (s *AuditEventStore) List(_ context.Context, accountID string, filter domain.EventFilter, page domain.Page) ([]*domain.AuditEvent, int64, error) {
	page = page.Normalize()

	s.mu.RLock()
	var matched []*domain.AuditEvent
	for _, e := range s.events {
		if matchesEvent(e, accountID, filter) {
			matched = append(matched, cloneEvent(e))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := int64(len(matched))
	start := page.Skip()
	if start >= len(matched) {
		return []*domain.AuditEvent{}, total, nil
	}
	end := start + page.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// Stats aggregates the account's events by kind, most frequent first.
func (s *AuditEventStore) Stats(_ context.Context, accountID string) ([]domain.EventStat, error) {
	s.mu.RLock()
	byKind := make(map[domain.EventKind]*domain.EventStat)
	for _, e := range s.events {
		if e.AccountID != accountID {
			continue
		}
		st, ok := byKind[e.Kind]
		if !ok {
			st = &domain.EventStat{Kind: e.Kind}
			byKind[e.Kind] = st
		}
		st.Count++
		if e.Timestamp.After(st.LastOccurrence) {
			st.LastOccurrence = e.Timestamp
		}
	}
	s.mu.RUnlock()

	stats := make([]domain.EventStat, 0, len(byKind))
	for _, st := range byKind {
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Kind < stats[j].Kind
	})
	return stats, nil
}

var _ domain.AuditEventRepository = (*AuditEventStore)(nil)
