package services

import (
	"context"
	"fmt"

	"go.pilab.hu/fxapi/domain"
	serrors "go.pilab.hu/fxapi/errors"
)

// EventPage is one page of an account's audit history.
type EventPage struct {
	Events []*domain.AuditEvent `json:"events"`
	Total  int64                `json:"total"`
	Page   int                  `json:"page"`
	Limit  int                  `json:"limit"`
	Pages  int64                `json:"totalPages"`
}

// EventService exposes an account's own audit history.
type EventService struct {
	events domain.AuditEventRepository
}

func NewEventService(events domain.AuditEventRepository) *EventService {
	return &EventService{events: events}
}

// List returns the account's events, newest first.
func (s *EventService) List(ctx context.Context, accountID string, filter domain.EventFilter, page domain.Page) (*EventPage, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, serrors.NewValidation(fmt.Sprintf("unknown event type %q", filter.Kind))
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, serrors.NewValidation("startDate must not be after endDate")
	}
	page = page.Normalize()

	events, total, err := s.events.List(ctx, accountID, filter, page)
	if err != nil {
		return nil, serrors.NewUnexpected(fmt.Errorf("list events: %w", err))
	}
	return &EventPage{
		Events: events,
		Total:  total,
		Page:   page.Page,
		Limit:  page.Limit,
		Pages:  (total + int64(page.Limit) - 1) / int64(page.Limit),
	}, nil
}

// Stats returns per-kind counts of the account's events.
func (s *EventService) Stats(ctx context.Context, accountID string) ([]domain.EventStat, error) {
	stats, err := s.events.Stats(ctx, accountID)
	if err != nil {
		return nil, serrors.NewUnexpected(fmt.Errorf("event stats: %w", err))
	}
	return stats, nil
}
