package finary

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

// displayCurrencyPath locates the display currency in a /users/me reply.
const displayCurrencyPath = "$.ui_configuration.display_currency.code"

// GetCurrentUser returns the authenticated user.
func (c *Client) GetCurrentUser(ctx context.Context) (*User, error) {
	resp, err := c.Request(ctx, http.MethodGet, "/users/me", nil)
	if err != nil {
		return nil, fmt.Errorf("GetCurrentUser failed: %w", err)
	}
	var user User
	if err := decodeResult(resp.Body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetOrganizations returns the organizations the user belongs to.
func (c *Client) GetOrganizations(ctx context.Context) ([]Organization, error) {
	resp, err := c.Request(ctx, http.MethodGet, "/users/me/organizations", nil)
	if err != nil {
		return nil, fmt.Errorf("GetOrganizations failed: %w", err)
	}
	var orgs []Organization
	if resp.NoContent() {
		return orgs, nil
	}
	if err := decodeResult(resp.Body, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

// GetHoldingsAccounts returns the raw holdings payload of a membership.
// Flattening is left to the caller.
func (c *Client) GetHoldingsAccounts(ctx context.Context, org, membership string) ([]byte, error) {
	endpoint := fmt.Sprintf("/organizations/%s/memberships/%s/holdings_accounts",
		url.PathEscape(org), url.PathEscape(membership))
	resp, err := c.Request(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("GetHoldingsAccounts failed: %w", err)
	}
	return resp.Body, nil
}

// CreateRealEstate declares a property.
func (c *Client) CreateRealEstate(ctx context.Context, re RealEstate) (*RealEstate, error) {
	return mutate[RealEstate](ctx, c, http.MethodPost, "/users/me/real_estates", re)
}

// UpdateRealEstate updates a declared property.
func (c *Client) UpdateRealEstate(ctx context.Context, id string, re RealEstate) (*RealEstate, error) {
	return mutate[RealEstate](ctx, c, http.MethodPut, "/users/me/real_estates/"+url.PathEscape(id), re)
}

// DeleteRealEstate removes a declared property.
func (c *Client) DeleteRealEstate(ctx context.Context, id string) error {
	_, err := c.Request(ctx, http.MethodDelete, "/users/me/real_estates/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("DeleteRealEstate failed: %w", err)
	}
	return nil
}

// CreateCrowdlending declares a crowdlending investment.
func (c *Client) CreateCrowdlending(ctx context.Context, cl Crowdlending) (*Crowdlending, error) {
	return mutate[Crowdlending](ctx, c, http.MethodPost, "/users/me/crowdlendings", cl)
}

// UpdateCrowdlending updates a declared crowdlending investment.
func (c *Client) UpdateCrowdlending(ctx context.Context, id string, cl Crowdlending) (*Crowdlending, error) {
	return mutate[Crowdlending](ctx, c, http.MethodPut, "/users/me/crowdlendings/"+url.PathEscape(id), cl)
}

// DeleteCrowdlending removes a declared crowdlending investment.
func (c *Client) DeleteCrowdlending(ctx context.Context, id string) error {
	_, err := c.Request(ctx, http.MethodDelete, "/users/me/crowdlendings/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("DeleteCrowdlending failed: %w", err)
	}
	return nil
}

// UpdateDisplayCurrency switches the display currency, then reads the user
// back to confirm the API applied it.
func (c *Client) UpdateDisplayCurrency(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return &APIError{Kind: KindValidation, Method: http.MethodPatch, Endpoint: "/users/me",
			Err: fmt.Errorf("invalid currency code %q", code)}
	}

	patch := map[string]any{
		"ui_configuration": map[string]any{"display_currency": code},
	}
	if _, err := c.Request(ctx, http.MethodPatch, "/users/me", patch); err != nil {
		return fmt.Errorf("UpdateDisplayCurrency failed: %w", err)
	}

	resp, err := c.Request(ctx, http.MethodGet, "/users/me", nil)
	if err != nil {
		return fmt.Errorf("UpdateDisplayCurrency verification failed: %w", err)
	}

	applied, err := displayCurrency(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCurrencyNotApplied, err)
	}
	if !strings.EqualFold(applied, code) {
		return fmt.Errorf("%w: requested %s, API reports %s", ErrCurrencyNotApplied, code, applied)
	}

	c.logger.Info("display currency updated", "currency", code)
	return nil
}

// displayCurrency extracts the currency code from a /users/me body.
func displayCurrency(body []byte) (string, error) {
	var doc any
	if err := decodeResult(body, &doc); err != nil {
		return "", err
	}
	val, err := jsonpath.Get(displayCurrencyPath, doc)
	if err != nil {
		return "", fmt.Errorf("error reading %q: %w", displayCurrencyPath, err)
	}
	if list, ok := val.([]any); ok && len(list) > 0 {
		val = list[0]
	}
	code, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("error reading %q: not a string: %v", displayCurrencyPath, val)
	}
	return code, nil
}

func mutate[T any](ctx context.Context, c *Client, method, endpoint string, in T) (*T, error) {
	resp, err := c.Request(ctx, method, endpoint, in)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, endpoint, err)
	}
	if resp.NoContent() {
		return &in, nil
	}
	var out T
	if err := decodeResult(resp.Body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
