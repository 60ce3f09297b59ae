package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.pilab.hu/fxapi/domain"
)

// ConversionStore implements domain.ConversionRepository.
type ConversionStore struct {
	mu   sync.RWMutex
	byID map[string]*domain.Conversion
}

// NewConversionStore creates an empty ConversionStore.
func NewConversionStore() *ConversionStore {
	return &ConversionStore{byID: make(map[string]*domain.Conversion)}
}

// Create stores the conversion and assigns its ID.
func (s *ConversionStore) Create(_ context.Context, c *domain.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, taken := s.byID[c.ID]; taken {
		return domain.ErrDuplicate
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	cp := *c
	s.byID[c.ID] = &cp
	return nil
}

// FindByID returns the conversion if accountID owns it.
func (s *ConversionStore) FindByID(_ context.Context, accountID, id string) (*domain.Conversion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok || c.AccountID != accountID {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// owned returns the account's conversions, newest first.
func (s *ConversionStore) owned(accountID string, f domain.ConversionFilter) []*domain.Conversion {
	s.mu.RLock()
	var out []*domain.Conversion
	for _, c := range s.byID {
		if c.AccountID != accountID {
			continue
		}
		if f.FromCurrency != "" && c.FromCurrency != f.FromCurrency {
			continue
		}
		if f.ToCurrency != "" && c.ToCurrency != f.ToCurrency {
			continue
		}
		if f.From != nil && c.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && c.CreatedAt.After(*f.To) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// List returns one page of the account's conversions.
func (s *ConversionStore) List(_ context.Context, accountID string, filter domain.ConversionFilter, page domain.Page) ([]*domain.Conversion, int64, error) {
	page = page.Normalize()
	all := s.owned(accountID, filter)
	total := int64(len(all))

	start := page.Skip()
	if start >= len(all) {
		return []*domain.Conversion{}, total, nil
	}
	end := start + page.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

// Delete removes the conversion if accountID owns it.
func (s *ConversionStore) Delete(_ context.Context, accountID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok || c.AccountID != accountID {
		return domain.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

// Summary groups the account's conversions by target currency.
func (s *ConversionStore) Summary(_ context.Context, accountID string) ([]domain.CurrencySummary, error) {
	type acc struct {
		sum     domain.CurrencySummary
		rateSum float64
	}
	groups := make(map[string]*acc)
	for _, c := range s.owned(accountID, domain.ConversionFilter{}) {
		g, ok := groups[c.ToCurrency]
		if !ok {
			g = &acc{sum: domain.CurrencySummary{Currency: c.ToCurrency}}
			groups[c.ToCurrency] = g
		}
		g.sum.TotalAmount += c.ConvertedAmount
		g.sum.Count++
		g.rateSum += c.Rate
		if c.CreatedAt.After(g.sum.LastConversion) {
			g.sum.LastConversion = c.CreatedAt
		}
	}

	out := make([]domain.CurrencySummary, 0, len(groups))
	for _, g := range groups {
		g.sum.TotalAmount = domain.Round(g.sum.TotalAmount, 2)
		g.sum.AvgRate = domain.Round(g.rateSum/float64(g.sum.Count), 4)
		out = append(out, g.sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalAmount > out[j].TotalAmount })
	return out, nil
}

// Stats aggregates all of the account's conversions.
func (s *ConversionStore) Stats(_ context.Context, accountID string) (*domain.ConversionStats, error) {
	all := s.owned(accountID, domain.ConversionFilter{})
	stats := &domain.ConversionStats{}
	if len(all) == 0 {
		return stats, nil
	}

	pairs := make(map[string]struct{})
	first, last := all[len(all)-1].CreatedAt, all[0].CreatedAt
	for _, c := range all {
		stats.TotalConversions++
		stats.TotalAmountConverted += c.Amount
		pairs[c.FromCurrency+"→"+c.ToCurrency] = struct{}{}
	}
	stats.AvgConversionAmount = domain.Round(stats.TotalAmountConverted/float64(stats.TotalConversions), 2)
	stats.TotalAmountConverted = domain.Round(stats.TotalAmountConverted, 2)
	stats.UniqueCurrencyPairs = int64(len(pairs))
	stats.FirstConversion = &first
	stats.LastConversion = &last
	return stats, nil
}

// Recent returns the account's latest conversions.
func (s *ConversionStore) Recent(_ context.Context, accountID string, limit int) ([]*domain.Conversion, error) {
	all := s.owned(accountID, domain.ConversionFilter{})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

var _ domain.ConversionRepository = (*ConversionStore)(nil)
