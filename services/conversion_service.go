package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"go.pilab.hu/fxapi/domain"
	serrors "go.pilab.hu/fxapi/errors"
	"go.pilab.hu/fxapi/internal/metrics"
)

const recentConversions = 5

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// ConversionRequest is the input of a new conversion.
type ConversionRequest struct {
	FromCurrency string
	ToCurrency   string
	Amount       float64
}

// RateQuote is a single exchange rate lookup.
type RateQuote struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Rate float64 `json:"rate"`
}

// ConversionPage is one page of an account's conversions.
type ConversionPage struct {
	Conversions []*domain.Conversion `json:"conversions"`
	Total       int64                `json:"total"`
	Page        int                  `json:"page"`
	Limit       int                  `json:"limit"`
	Pages       int64                `json:"totalPages"`
}

// Dashboard is the conversion overview of an account.
type Dashboard struct {
	Summary []domain.CurrencySummary `json:"summary"`
	Stats   *domain.ConversionStats  `json:"stats"`
	Recent  []*domain.Conversion     `json:"recentConversions"`
}

// ConversionService performs and queries currency conversions.
type ConversionService struct {
	conversions domain.ConversionRepository
	rates       RateProvider
	audit       AuditRecorder
}

func NewConversionService(conversions domain.ConversionRepository, rates RateProvider, audit AuditRecorder) *ConversionService {
	return &ConversionService{conversions: conversions, rates: rates, audit: audit}
}

func normalizePair(from, to string) (string, string, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if !currencyCode.MatchString(from) || !currencyCode.MatchString(to) {
		return "", "", serrors.NewValidation("currency codes must be 3 letters")
	}
	if from == to {
		return "", "", serrors.NewValidation("source and target currencies must be different")
	}
	return from, to, nil
}

func (s *ConversionService) record(ctx context.Context, kind domain.EventKind, accountID, entityID string, metadata map[string]any) error {
	if _, err := s.audit.LogEntity(ctx, kind, accountID, entityID, metadata); err != nil {
		return serrors.NewUnexpected(err)
	}
	return nil
}

func (s *ConversionService) lookup(ctx context.Context, accountID, from, to string) (float64, error) {
	rate, err := s.rates.Rate(ctx, from, to)
	if err != nil {
		if serrors.KindOf(err) == serrors.Unavailable {
			return 0, err
		}
		return 0, serrors.NewUnavailable("exchange rate service is unavailable", err)
	}
	if err := s.record(ctx, domain.EventRateFetched, accountID, "", map[string]any{
		"from": from,
		"to":   to,
		"rate": rate,
	}); err != nil {
		return 0, err
	}
	return rate, nil
}

// Rate looks up the current rate between two currencies.
func (s *ConversionService) Rate(ctx context.Context, accountID, from, to string) (*RateQuote, error) {
	from, to, err := normalizePair(from, to)
	if err != nil {
		return nil, err
	}
	rate, err := s.lookup(ctx, accountID, from, to)
	if err != nil {
		return nil, err
	}
	return &RateQuote{From: from, To: to, Rate: rate}, nil
}

// SupportedCurrencies lists the currency codes accepted by the rate provider.
func (s *ConversionService) SupportedCurrencies() []string {
	return s.rates.SupportedCurrencies()
}

// Create converts an amount at the current rate and stores the result.
func (s *ConversionService) Create(ctx context.Context, accountID string, req ConversionRequest) (*domain.Conversion, error) {
	from, to, err := normalizePair(req.FromCurrency, req.ToCurrency)
	if err != nil {
		return nil, err
	}
	if req.Amount < domain.MinConversionAmount || req.Amount > domain.MaxConversionAmount {
		return nil, serrors.NewValidation("amount must be between 0.01 and 1000000")
	}

	rate, err := s.lookup(ctx, accountID, from, to)
	if err != nil {
		return nil, err
	}

	conv := &domain.Conversion{
		AccountID:       accountID,
		FromCurrency:    from,
		ToCurrency:      to,
		Amount:          req.Amount,
		Rate:            rate,
		ConvertedAmount: domain.Round(req.Amount*rate, 2),
	}
	if err := s.conversions.Create(ctx, conv); err != nil {
		return nil, serrors.NewUnexpected(fmt.Errorf("create conversion: %w", err))
	}
	if err := s.record(ctx, domain.EventConversionCreated, accountID, conv.ID, map[string]any{
		"from":            from,
		"to":              to,
		"amount":          conv.Amount,
		"convertedAmount": conv.ConvertedAmount,
	}); err != nil {
		return nil, err
	}

	metrics.ConversionsCreatedTotal.Inc()
	log.Debug().Str("account_id", accountID).Str("conversion_id", conv.ID).Msg("Conversion created")
	return conv, nil
}

// List returns one page of the account's conversions, newest first.
func (s *ConversionService) List(ctx context.Context, accountID string, filter domain.ConversionFilter, page domain.Page) (*ConversionPage, error) {
	filter.FromCurrency = strings.ToUpper(strings.TrimSpace(filter.FromCurrency))
	filter.ToCurrency = strings.ToUpper(strings.TrimSpace(filter.ToCurrency))
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, serrors.NewValidation("startDate must not be after endDate")
	}
	page = page.Normalize()

	items, total, err := s.conversions.List(ctx, accountID, filter, page)
	if err != nil {
		return nil, serrors.NewUnexpected(fmt.Errorf("list conversions: %w", err))
	}
	return &ConversionPage{
		Conversions: items,
		Total:       total,
		Page:        page.Page,
		Limit:       page.Limit,
		Pages:       (total + int64(page.Limit) - 1) / int64(page.Limit),
	}, nil
}

// Get returns one of the account's conversions.
func (s *ConversionService) Get(ctx context.Context, accountID, id string) (*domain.Conversion, error) {
	conv, err := s.conversions.FindByID(ctx, accountID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, serrors.NewNotFound("conversion")
		}
		return nil, serrors.NewUnexpected(fmt.Errorf("find conversion: %w", err))
	}
	return conv, nil
}

// Delete removes one of the account's conversions.
func (s *ConversionService) Delete(ctx context.Context, accountID, id string) error {
	if err := s.conversions.Delete(ctx, accountID, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return serrors.NewNotFound("conversion")
		}
		return serrors.NewUnexpected(fmt.Errorf("delete conversion: %w", err))
	}
	return s.record(ctx, domain.EventConversionDeleted, accountID, id, nil)
}

// Dashboard summarizes the account's conversions.
func (s *ConversionService) Dashboard(ctx context.Context, accountID string) (*Dashboard, error) {
	summary, err := s.conversions.Summary(ctx, accountID)
	if err != nil {
		return nil, serrors.NewUnexpected(fmt.Errorf("conversion summary: %w", err))
	}
	stats, err := s.conversions.Stats(ctx, accountID)
	if err != nil {
		return nil, serrors.NewUnexpected(fmt.Errorf("conversion stats: %w", err))
	}
	recent, err := s.conversions.Recent(ctx, accountID, recentConversions)
	if err != nil {
		return nil, serrors.NewUnexpected(fmt.Errorf("recent conversions: %w", err))
	}
	if err := s.record(ctx, domain.EventDashboardViewed, accountID, "", nil); err != nil {
		return nil, err
	}
	return &Dashboard{Summary: summary, Stats: stats, Recent: recent}, nil
}
