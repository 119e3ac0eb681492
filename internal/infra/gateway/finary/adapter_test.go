package finary_test

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmathey/finahack/internal/infra/gateway/finary"
	"github.com/nmathey/finahack/internal/platform/holdings"
	"github.com/nmathey/finahack/internal/platform/sync"
	apperrors "github.com/nmathey/finahack/internal/shared/errors"
)

// =============================================================================
// Interface Compliance
// =============================================================================

func TestHoldingsAdapter_ImplementsHoldingsProvider(t *testing.T) {
	var _ sync.HoldingsProvider = (*finary.HoldingsAdapter)(nil)
}

const holdingsPayload = `{"result": [
	{
		"id": "acc-1",
		"name": "Mon PEA",
		"bank_account_type": {"slug": "pea"},
		"institution": {"name": "Boursorama"},
		"securities": [
			{"id": 11, "security": {"name": "MSCI World", "type": "etf"}, "quantity": "10", "current_value": "1000.50", "unrealized_pnl": 50}
		]
	},
	{
		"id": "acc-2",
		"name": "Ledger",
		"cryptos": [
			{"id": 21, "crypto": {"code": "BTC", "name": "Bitcoin"}, "quantity": 0.1, "current_value": 6000},
			{"id": 22, "crypto": {"code": "REALTOKEN-S-9943-MARLOWE-ST-DETROIT-MI"}, "quantity": 2, "current_value": null}
		]
	}
]}`

func organizationsPayload(member string) map[string]any {
	return map[string]any{"result": []any{
		map[string]any{
			"id":   "org-1",
			"name": "Perso",
			"members": []any{
				map[string]any{"id": "viewer-1", "member_type": "viewer"},
				map[string]any{"id": member, "member_type": "owner"},
			},
		},
	}}
}

func TestHoldingsAdapter_FetchAssets(t *testing.T) {
	var orgCalls atomic.Int32
	var holdingsPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me/organizations":
			orgCalls.Add(1)
			writeJSON(w, http.StatusOK, organizationsPayload("owner-1"))
		default:
			holdingsPath = r.URL.Path
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(holdingsPayload))
		}
	}, &fakeTokens{initial: "tok"})

	adapter := finary.NewHoldingsAdapter(client, testLogger())

	assets, err := adapter.FetchAssets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/organizations/org-1/memberships/owner-1/holdings_accounts", holdingsPath)
	require.Len(t, assets, 3)

	assert.Equal(t, "MSCI World", assets[0].Name)
	assert.Equal(t, holdings.EnvelopePEA, assets[0].EnvelopeType)
	assert.Equal(t, holdings.CategoryFund, assets[0].Category)
	assert.Equal(t, "Boursorama", assets[0].InstitutionName)
	assert.Equal(t, "1000.5", assets[0].CurrentValue.String())
	assert.Equal(t, "50", assets[0].PnLAmount.String())

	assert.Equal(t, holdings.EnvelopeCryptoWallet, assets[1].EnvelopeType)
	assert.Equal(t, "S 9943 MARLOWE ST DETROIT MI", assets[2].Name)
	assert.Nil(t, assets[2].CurrentValue)

	_, err = adapter.FetchAssets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), orgCalls.Load(), "scope is cached")
}

func TestHoldingsAdapter_ResolvesScopeAgainOnNotFound(t *testing.T) {
	var member atomic.Value
	member.Store("old")
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me/organizations":
			writeJSON(w, http.StatusOK, organizationsPayload(member.Load().(string)))
		case "/organizations/org-1/memberships/new/holdings_accounts":
			w.Write([]byte(`[]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, &fakeTokens{initial: "tok"})

	adapter := finary.NewHoldingsAdapter(client, testLogger())
	scope, err := adapter.Scope(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "old", scope.Membership)

	member.Store("new")
	assets, err := adapter.FetchAssets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, assets)
}

func TestHoldingsAdapter_NoMembership(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"result": []any{}})
	}, &fakeTokens{initial: "tok"})

	_, err := finary.NewHoldingsAdapter(client, testLogger()).FetchAssets(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, finary.ErrNoMembership)
	assert.Equal(t, apperrors.ErrCodeUpstream, apperrors.GetAppError(err).Code)
}

func TestHoldingsAdapter_ExpiredSessionIsUnauthorized(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, &fakeTokens{initial: "tok", renewals: []string{"tok-2"}})

	_, err := finary.NewHoldingsAdapter(client, testLogger()).FetchAssets(context.Background())
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeUnauthorized, appErr.Code)
	assert.True(t, finary.IsCredentialError(err))
}

func TestHoldingsAdapter_MalformedPayloadYieldsNoAssets(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/me/organizations" {
			writeJSON(w, http.StatusOK, organizationsPayload("m"))
			return
		}
		w.Write([]byte(`{"unexpected": true}`))
	}, &fakeTokens{initial: "tok"})

	assets, err := finary.NewHoldingsAdapter(client, testLogger()).FetchAssets(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, assets)
	assert.Empty(t, assets)
}
