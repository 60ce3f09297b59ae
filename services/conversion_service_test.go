package services_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/fxapi/domain"
	serrors "go.pilab.hu/fxapi/errors"
	"go.pilab.hu/fxapi/internal/audit"
	"go.pilab.hu/fxapi/internal/memstore"
	"go.pilab.hu/fxapi/services"
)

type MockRateProvider struct {
	mock.Mock
}

func (m *MockRateProvider) Rate(ctx context.Context, from, to string) (float64, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockRateProvider) SupportedCurrencies() []string {
	return m.Called().Get(0).([]string)
}

func newConversionService(t *testing.T) (*services.ConversionService, *MockRateProvider, *memstore.Provider) {
	t.Helper()
	store := memstore.NewProvider()
	rates := new(MockRateProvider)
	recorder := audit.NewRecorder(store.Events, audit.PolicyBestEffort, audit.WithOutput(io.Discard))
	return services.NewConversionService(store.Conversions, rates, recorder), rates, store
}

func TestConversionService_Create(t *testing.T) {
	ctx := context.Background()
	svc, rates, store := newConversionService(t)
	rates.On("Rate", mock.Anything, "USD", "EUR").Return(0.85, nil)

	conv, err := svc.Create(ctx, "acc-1", services.ConversionRequest{FromCurrency: "usd", ToCurrency: " eur", Amount: 100.555})
	require.NoError(t, err)
	assert.Equal(t, "USD", conv.FromCurrency)
	assert.Equal(t, "EUR", conv.ToCurrency)
	assert.Equal(t, 85.47, conv.ConvertedAmount)
	assert.NotEmpty(t, conv.ID)

	events, _, err := store.Events.List(ctx, "acc-1", domain.EventFilter{}, domain.Page{})
	require.NoError(t, err)
	kinds := make([]domain.EventKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.ElementsMatch(t, []domain.EventKind{domain.EventRateFetched, domain.EventConversionCreated}, kinds)

	got, err := svc.Get(ctx, "acc-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	_, err = svc.Get(ctx, "acc-2", conv.ID)
	assert.ErrorIs(t, err, serrors.ErrNotFound)
}

func TestConversionService_CreateValidation(t *testing.T) {
	svc, rates, _ := newConversionService(t)

	tests := []struct {
		name string
		req  services.ConversionRequest
	}{
		{"same currency", services.ConversionRequest{FromCurrency: "USD", ToCurrency: "usd", Amount: 10}},
		{"bad code", services.ConversionRequest{FromCurrency: "US", ToCurrency: "EUR", Amount: 10}},
		{"too small", services.ConversionRequest{FromCurrency: "USD", ToCurrency: "EUR", Amount: 0.001}},
		{"too large", services.ConversionRequest{FromCurrency: "USD", ToCurrency: "EUR", Amount: 1_000_001}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "acc-1", tt.req)
			assert.ErrorIs(t, err, serrors.ErrValidationFailed)
			assert.Equal(t, 400, serrors.HTTPStatus(err))
		})
	}
	rates.AssertNotCalled(t, "Rate", mock.Anything, mock.Anything, mock.Anything)
}

func TestConversionService_RateUnavailable(t *testing.T) {
	svc, rates, _ := newConversionService(t)
	rates.On("Rate", mock.Anything, "USD", "JPY").Return(0.0, errors.New("upstream timeout"))

	_, err := svc.Rate(context.Background(), "acc-1", "USD", "JPY")
	assert.ErrorIs(t, err, serrors.ErrUnavailable)
	assert.Equal(t, 503, serrors.HTTPStatus(err))
}

func TestConversionService_ListDeleteDashboard(t *testing.T) {
	ctx := context.Background()
	svc, rates, store := newConversionService(t)
	rates.On("Rate", mock.Anything, "USD", "EUR").Return(0.5, nil)
	rates.On("Rate", mock.Anything, "USD", "GBP").Return(0.25, nil)

	var ids []string
	for _, req := range []services.ConversionRequest{
		{FromCurrency: "USD", ToCurrency: "EUR", Amount: 100},
		{FromCurrency: "USD", ToCurrency: "EUR", Amount: 300},
		{FromCurrency: "USD", ToCurrency: "GBP", Amount: 40},
	} {
		conv, err := svc.Create(ctx, "acc-1", req)
		require.NoError(t, err)
		ids = append(ids, conv.ID)
		time.Sleep(time.Millisecond)
	}

	page, err := svc.List(ctx, "acc-1", domain.ConversionFilter{ToCurrency: "eur"}, domain.Page{Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	assert.EqualValues(t, 2, page.Pages)
	require.Len(t, page.Conversions, 1)
	assert.Equal(t, ids[1], page.Conversions[0].ID)

	dash, err := svc.Dashboard(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, dash.Summary, 2)
	assert.Equal(t, "EUR", dash.Summary[0].Currency)
	assert.Equal(t, 200.0, dash.Summary[0].TotalAmount)
	assert.EqualValues(t, 3, dash.Stats.TotalConversions)
	assert.EqualValues(t, 2, dash.Stats.UniqueCurrencyPairs)
	assert.Len(t, dash.Recent, 3)

	require.NoError(t, svc.Delete(ctx, "acc-1", ids[0]))
	assert.ErrorIs(t, svc.Delete(ctx, "acc-1", ids[0]), serrors.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "acc-2", ids[1]), serrors.ErrNotFound)

	for _, kind := range []domain.EventKind{domain.EventDashboardViewed, domain.EventConversionDeleted} {
		events, total, err := store.Events.List(ctx, "acc-1", domain.EventFilter{Kind: kind}, domain.Page{})
		require.NoError(t, err)
		assert.EqualValues(t, 1, total, kind)
		if kind == domain.EventConversionDeleted {
			assert.Equal(t, ids[0], events[0].EntityID)
		}
	}
}

func TestEventService(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewProvider()
	clock := newFakeClock()
	recorder := audit.NewRecorder(store.Events, audit.PolicyStrict, audit.WithOutput(io.Discard), audit.WithClock(clock.Now))
	svc := services.NewEventService(store.Events)

	for _, kind := range []domain.EventKind{domain.EventUserLogin, domain.EventUserLogin, domain.EventTokenRefreshed} {
		_, err := recorder.Log(ctx, kind, "acc-1", nil)
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}
	_, err := recorder.Log(ctx, domain.EventUserLogin, "acc-2", nil)
	require.NoError(t, err)

	page, err := svc.List(ctx, "acc-1", domain.EventFilter{}, domain.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, domain.EventTokenRefreshed, page.Events[0].Kind, "newest first")

	stats, err := svc.Stats(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, domain.EventUserLogin, stats[0].Kind)
	assert.EqualValues(t, 2, stats[0].Count)

	_, err = svc.List(ctx, "acc-1", domain.EventFilter{Kind: "NOT_A_KIND"}, domain.Page{})
	assert.ErrorIs(t, err, serrors.ErrValidationFailed)
}
