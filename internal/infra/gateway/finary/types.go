package finary

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nmathey/finahack/internal/platform/holdings"
)

// User is the subset of /users/me the companion reads.
type User struct {
	Slug            string          `json:"slug"`
	Email           string          `json:"email"`
	Firstname       string          `json:"firstname"`
	Lastname        string          `json:"lastname"`
	UIConfiguration UIConfiguration `json:"ui_configuration"`
}

// UIConfiguration holds the user's display preferences.
type UIConfiguration struct {
	DisplayCurrency Currency `json:"display_currency"`
}

// Currency is an ISO 4217 currency as the API describes it.
type Currency struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol,omitempty"`
}

// Organization groups the memberships a user can read holdings through.
type Organization struct {
	ID      holdings.FlexID `json:"id"`
	Name    string          `json:"name"`
	Members []Membership    `json:"members"`
}

// Membership is the user's seat in an organization.
type Membership struct {
	ID         holdings.FlexID `json:"id"`
	MemberType string          `json:"member_type"`
	User       *struct {
		Slug string `json:"slug"`
	} `json:"user"`
}

// RealEstate is a manually declared property.
type RealEstate struct {
	ID                 holdings.FlexID  `json:"id,omitempty"`
	Category           string           `json:"category"`
	Description        string           `json:"description,omitempty"`
	UserEstimatedValue decimal.Decimal  `json:"user_estimated_value"`
	BuyingPrice        *decimal.Decimal `json:"buying_price,omitempty"`
	OwnershipRatio     *decimal.Decimal `json:"ownership_percentage,omitempty"`
	Address            string           `json:"address,omitempty"`
}

// Crowdlending is a manually declared crowdlending investment.
type Crowdlending struct {
	ID                holdings.FlexID  `json:"id,omitempty"`
	Name              string           `json:"name"`
	CurrentPrice      decimal.Decimal  `json:"current_price"`
	InitialInvestment *decimal.Decimal `json:"initial_investment,omitempty"`
	AnnualYield       *decimal.Decimal `json:"annual_yield,omitempty"`
	MonthDuration     int              `json:"month_duration,omitempty"`
	StartDate         string           `json:"start_date,omitempty"`
	PlatformID        string           `json:"crowdlending_platform_id,omitempty"`
	CurrencyCode      string           `json:"currency,omitempty"`
}

// decodeResult decodes a body that may be wrapped in {"result": ...}.
func decodeResult(body []byte, v any) error {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '{' {
		var envelope struct {
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Result) > 0 && string(envelope.Result) != "null" {
			body = envelope.Result
		}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode Finary response: %w", err)
	}
	return nil
}
