package sync_test

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/nmathey/finahack/internal/platform/history"
	"github.com/nmathey/finahack/internal/platform/holdings"
	"github.com/nmathey/finahack/internal/platform/sync"
)

// =============================================================================
// Mock Holdings Provider
// =============================================================================

type MockHoldingsProvider struct {
	mock.Mock
}

func (m *MockHoldingsProvider) FetchAssets(ctx context.Context) ([]holdings.NormalizedAsset, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]holdings.NormalizedAsset), args.Error(1)
}

// =============================================================================
// Mock Cache Store
// =============================================================================

type MockCacheStore struct {
	mock.Mock
}

func (m *MockCacheStore) Load(ctx context.Context) (*holdings.Cache, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*holdings.Cache), args.Error(1)
}

func (m *MockCacheStore) Save(ctx context.Context, cache *holdings.Cache) error {
	args := m.Called(ctx, cache)
	return args.Error(0)
}

// =============================================================================
// Mock History Store
// =============================================================================

type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) List(ctx context.Context) ([]history.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]history.Snapshot), args.Error(1)
}

func (m *MockHistoryStore) Append(ctx context.Context, s history.Snapshot) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockHistoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// =============================================================================
// Test Helpers
// =============================================================================

func newTestAsset(id, account, value string) holdings.NormalizedAsset {
	v := decimal.RequireFromString(value)
	return holdings.NormalizedAsset{
		HoldingID:    "h-" + account,
		AccountName:  account,
		ID:           id,
		AssetID:      id,
		Name:         "Asset " + id,
		AssetType:    holdings.AssetTypeSecurity,
		Category:     holdings.CategoryStock,
		CurrentValue: &v,
	}
}

// Ensure mocks implement the interfaces
var _ sync.HoldingsProvider = (*MockHoldingsProvider)(nil)
var _ sync.CacheStore = (*MockCacheStore)(nil)
var _ sync.HistoryStore = (*MockHistoryStore)(nil)
