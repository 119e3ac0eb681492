package finary

import (
	"context"
	"errors"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nmathey/finahack/internal/platform/holdings"
	"github.com/nmathey/finahack/internal/platform/sync"
	apperrors "github.com/nmathey/finahack/internal/shared/errors"
	"github.com/nmathey/finahack/pkg/logger"
)

// ErrNoMembership is returned when the user belongs to no organization.
var ErrNoMembership = errors.New("no organization membership found")

const scopeCacheSize = 8

// Scope identifies whose holdings are read.
type Scope struct {
	Organization string
	Membership   string
}

// HoldingsAdapter adapts the Finary client to the sync.HoldingsProvider interface
type HoldingsAdapter struct {
	client    *Client
	flattener *holdings.Flattener
	scopes    *lru.Cache[string, Scope] // token subject -> scope
	logger    *logger.Logger
}

// Compile-time check that HoldingsAdapter implements HoldingsProvider
var _ sync.HoldingsProvider = (*HoldingsAdapter)(nil)

// NewHoldingsAdapter creates a new holdings adapter
func NewHoldingsAdapter(client *Client, log *logger.Logger) *HoldingsAdapter {
	scopes, _ := lru.New[string, Scope](scopeCacheSize)
	return &HoldingsAdapter{
		client:    client,
		flattener: holdings.NewFlattener(log),
		scopes:    scopes,
		logger:    log.WithField("component", "holdings_adapter"),
	}
}

// FetchAssets resolves the membership, fetches its holdings accounts and
// flattens them.
func (a *HoldingsAdapter) FetchAssets(ctx context.Context) ([]holdings.NormalizedAsset, error) {
	scope, err := a.Scope(ctx)
	if err != nil {
		return nil, ToAppError(err)
	}

	raw, err := a.client.GetHoldingsAccounts(ctx, scope.Organization, scope.Membership)
	if err != nil && isNotFound(err) {
		// membership changed since it was cached
		a.scopes.Remove(a.client.Subject())
		if scope, err = a.Scope(ctx); err == nil {
			raw, err = a.client.GetHoldingsAccounts(ctx, scope.Organization, scope.Membership)
		}
	}
	if err != nil {
		return nil, ToAppError(err)
	}

	return a.flattener.FlattenPayload(raw), nil
}

// Scope returns the (organization, membership) pair holdings are read from,
// resolving and caching it per token subject.
func (a *HoldingsAdapter) Scope(ctx context.Context) (Scope, error) {
	if scope, ok := a.scopes.Get(a.client.Subject()); ok {
		return scope, nil
	}

	orgs, err := a.client.GetOrganizations(ctx)
	if err != nil {
		return Scope{}, err
	}
	scope, ok := pickScope(orgs)
	if !ok {
		return Scope{}, ErrNoMembership
	}

	// the subject is known once a token was acquired by the call above
	subject := a.client.Subject()
	a.scopes.Add(subject, scope)
	a.logger.Debug("holdings scope resolved", "organization", scope.Organization, "membership", scope.Membership)
	return scope, nil
}

// pickScope prefers the first membership of type "owner".
func pickScope(orgs []Organization) (Scope, bool) {
	var fallback *Scope
	for _, org := range orgs {
		for _, m := range org.Members {
			if org.ID == "" || m.ID == "" {
				continue
			}
			s := Scope{Organization: string(org.ID), Membership: string(m.ID)}
			if m.MemberType == "owner" {
				return s, true
			}
			if fallback == nil {
				fallback = &s
			}
		}
	}
	if fallback == nil {
		return Scope{}, false
	}
	return *fallback, true
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ToAppError turns a client failure into the message shown to the user.
func ToAppError(err error) error {
	switch {
	case errors.Is(err, ErrCurrencyNotApplied):
		return apperrors.Upstream("Finary did not apply the display currency", err)
	case errors.Is(err, ErrNoMembership):
		return apperrors.Upstream("Your Finary account has no portfolio to read", err)
	case IsCredentialError(err):
		return apperrors.Unauthorized("Finary session expired: open app.finary.com and sign in again", err)
	case IsTransportError(err):
		return apperrors.Upstream("Finary is unreachable, try again later", err)
	case IsCanceled(err):
		return apperrors.Upstream("Holdings refresh was interrupted", err)
	case IsValidationError(err), IsClientError(err), IsShapeError(err):
		return apperrors.Upstream("Finary returned an unexpected answer", err)
	default:
		return apperrors.Internal("Holdings refresh failed", err)
	}
}
