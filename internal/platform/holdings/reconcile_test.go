package holdings_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmathey/finahack/internal/platform/holdings"
)

func asset(id, account, value string) holdings.NormalizedAsset {
	v := decimal.RequireFromString(value)
	return holdings.NormalizedAsset{
		HoldingID:    "h-" + account,
		AccountName:  account,
		ID:           id,
		AssetID:      id,
		Name:         "asset " + id,
		AssetType:    holdings.AssetTypeSecurity,
		Category:     holdings.CategoryStock,
		CurrentValue: &v,
	}
}

func TestMerge_PreservesAnnotations(t *testing.T) {
	prev := asset("a1", "PEA", "100")
	prev.MyAssetType = "core"
	prev.VirtualEnvelop = "retirement"

	fresh := asset("a1", "PEA", "150")
	fresh.Name = "renamed upstream"

	merged := holdings.Merge([]holdings.NormalizedAsset{prev}, []holdings.NormalizedAsset{fresh})
	require.Len(t, merged, 1)

	m := merged[0]
	assert.Equal(t, "core", m.MyAssetType)
	assert.Equal(t, "retirement", m.VirtualEnvelop)
	assert.Equal(t, "renamed upstream", m.Name)
	assert.Equal(t, "150", m.CurrentValue.String())
}

func TestMerge_DefaultsNewAssets(t *testing.T) {
	merged := holdings.Merge(nil, []holdings.NormalizedAsset{asset("a1", "CTO", "10")})
	require.Len(t, merged, 1)
	assert.Equal(t, string(holdings.AssetTypeSecurity), merged[0].MyAssetType)
	assert.Equal(t, "CTO", merged[0].VirtualEnvelop)
}

func TestMerge_EmptyPreviousAnnotationFallsBackToDefault(t *testing.T) {
	prev := asset("a1", "CTO", "10")
	prev.MyAssetType = "growth"

	merged := holdings.Merge([]holdings.NormalizedAsset{prev}, []holdings.NormalizedAsset{asset("a1", "CTO", "10")})
	assert.Equal(t, "growth", merged[0].MyAssetType)
	assert.Equal(t, "CTO", merged[0].VirtualEnvelop)
}

func TestMerge_DropsDisposedAssets(t *testing.T) {
	previous := []holdings.NormalizedAsset{asset("a1", "CTO", "1"), asset("gone", "CTO", "2")}
	merged := holdings.Merge(previous, []holdings.NormalizedAsset{asset("a1", "CTO", "1")})
	require.Len(t, merged, 1)
	assert.Equal(t, "a1", merged[0].Key())
}

func TestMerge_Idempotent(t *testing.T) {
	prev := asset("a1", "CTO", "1")
	prev.MyAssetType = "x"
	fresh := []holdings.NormalizedAsset{asset("a1", "CTO", "1"), asset("a2", "PEA", "2")}

	once := holdings.Merge([]holdings.NormalizedAsset{prev}, fresh)
	twice := holdings.Merge(once, fresh)
	assert.Equal(t, once, twice)
}

func TestMerge_EmptyFresh(t *testing.T) {
	merged := holdings.Merge([]holdings.NormalizedAsset{asset("a1", "CTO", "1")}, nil)
	assert.NotNil(t, merged)
	assert.Empty(t, merged)
}

func TestMerge_LaterDuplicateWins(t *testing.T) {
	first := asset("a1", "CTO", "1")
	first.MyAssetType = "first"
	second := asset("a1", "CTO", "1")
	second.MyAssetType = "second"

	merged := holdings.Merge([]holdings.NormalizedAsset{first, second}, []holdings.NormalizedAsset{asset("a1", "CTO", "1")})
	assert.Equal(t, "second", merged[0].MyAssetType)
}

func TestReconciler_StrictKeySeparatesCollidingIDs(t *testing.T) {
	crypto := asset("7", "Wallet", "1")
	crypto.AssetType = holdings.AssetTypeCrypto
	crypto.MyAssetType = "speculative"
	fiat := asset("7", "Wallet", "1")
	fiat.AssetType = holdings.AssetTypeFiat

	r := holdings.NewReconciler(holdings.StrictKey)
	merged := r.Merge([]holdings.NormalizedAsset{crypto}, []holdings.NormalizedAsset{crypto, fiat})
	require.Len(t, merged, 2)
	assert.Equal(t, "speculative", merged[0].MyAssetType)
	assert.Equal(t, string(holdings.AssetTypeFiat), merged[1].MyAssetType)
}

func TestReconciler_Annotate(t *testing.T) {
	assets := []holdings.NormalizedAsset{asset("a1", "CTO", "1"), asset("a2", "CTO", "2")}
	label := "bonds"

	r := holdings.NewReconciler(nil)
	out, n := r.Annotate(assets, "a2", holdings.Annotation{MyAssetType: &label})
	assert.Equal(t, 1, n)
	assert.Equal(t, "bonds", out[1].MyAssetType)
	assert.Empty(t, assets[1].MyAssetType, "input must not be modified")

	_, n = r.Annotate(assets, "missing", holdings.Annotation{MyAssetType: &label})
	assert.Zero(t, n)
}
