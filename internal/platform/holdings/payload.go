package holdings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMalformedPayload is returned by ParsePayload when the payload is not a
// holding, a list of holdings or a {"result": ...} envelope of either.
var ErrMalformedPayload = errors.New("malformed holdings payload")

// Number is a lenient decimal read from the API: JSON numbers and numeric
// strings decode to a value; null, "", "undefined", NaN and anything else
// decode to absent.
type Number struct {
	value *decimal.Decimal
}

// NewNumber wraps a known value.
func NewNumber(d decimal.Decimal) Number {
	return Number{value: &d}
}

// UnmarshalJSON implements json.Unmarshaler and never fails.
func (n *Number) UnmarshalJSON(data []byte) error {
	n.value = nil

	raw := strings.TrimSpace(string(data))
	raw = strings.Trim(raw, `"`)
	switch strings.ToLower(raw) {
	case "", "null", "undefined", "nan", "inf", "+inf", "-inf", "infinity", "-infinity":
		return nil
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil
	}
	n.value = &d
	return nil
}

// MarshalJSON implements json.Marshaler
func (n Number) MarshalJSON() ([]byte, error) {
	if n.value == nil {
		return []byte("null"), nil
	}
	return []byte(n.value.String()), nil
}

// Ptr returns the value or nil when absent. The returned pointer is a copy.
func (n Number) Ptr() *decimal.Decimal {
	if n.value == nil {
		return nil
	}
	d := *n.value
	return &d
}

// OrZero returns the value or zero when absent.
func (n Number) OrZero() decimal.Decimal {
	if n.value == nil {
		return decimal.Zero
	}
	return *n.value
}

// FlexID is an identifier the API sends either as a string or a number.
type FlexID string

// UnmarshalJSON implements json.Unmarshaler and never fails.
func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*id = FlexID(n.String())
		return nil
	}
	*id = ""
	return nil
}

// Holding is a holdings account as returned by the API.
type Holding struct {
	ID              FlexID           `json:"id"`
	Name            string           `json:"name"`
	BankAccountType *BankAccountType `json:"bank_account_type"`
	ManualType      string           `json:"manual_type"`
	Institution     *Institution     `json:"institution"`

	Cryptos     []CryptoHolding     `json:"cryptos"`
	Securities  []SecurityHolding   `json:"securities"`
	RealEstates []RealEstateHolding `json:"real_estates"`
	SCPIs       []SCPIHolding       `json:"scpis"`
	Fiats       []FiatHolding       `json:"fiats"`
	FondsEuro   []FondsEuroHolding  `json:"fonds_euro"`
	Startups    []StartupHolding    `json:"startups"`

	// Present on some accounts, exported elsewhere, not flattened.
	Crowdlendings  []json.RawMessage `json:"crowdlendings"`
	GenericAssets  []json.RawMessage `json:"generic_assets"`
	PreciousMetals []json.RawMessage `json:"precious_metals"`
}

// BankAccountType classifies a holdings account.
type BankAccountType struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Institution is the bank, broker or exchange that keeps an account.
type Institution struct {
	ID   FlexID `json:"id"`
	Name string `json:"name"`
}

// Instrument is the nested descriptor shared by crypto, fiat, security, scpi and startup lines.
type Instrument struct {
	ID   FlexID `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	Type string `json:"type"`
	ISIN string `json:"isin"`
}

type CryptoHolding struct {
	ID            FlexID      `json:"id"`
	Crypto        *Instrument `json:"crypto"`
	Quantity      Number      `json:"quantity"`
	CurrentValue  Number      `json:"current_value"`
	UnrealizedPnL Number      `json:"unrealized_pnl"`
}

type SecurityHolding struct {
	ID            FlexID      `json:"id"`
	Security      *Instrument `json:"security"`
	Quantity      Number      `json:"quantity"`
	CurrentValue  Number      `json:"current_value"`
	UnrealizedPnL Number      `json:"unrealized_pnl"`
}

type RealEstateHolding struct {
	ID            FlexID `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	CurrentValue  Number `json:"current_value"`
	UnrealizedPnL Number `json:"unrealized_pnl"`
}

type SCPIHolding struct {
	ID            FlexID      `json:"id"`
	SCPI          *Instrument `json:"scpi"`
	Shares        Number      `json:"shares"`
	CurrentValue  Number      `json:"current_value"`
	UnrealizedPnL Number      `json:"unrealized_pnl"`
}

type FiatHolding struct {
	ID            FlexID      `json:"id"`
	Fiat          *Instrument `json:"fiat"`
	Quantity      Number      `json:"quantity"`
	CurrentValue  Number      `json:"current_value"`
	UnrealizedPnL Number      `json:"unrealized_pnl"`
}

type FondsEuroHolding struct {
	ID            FlexID `json:"id"`
	Name          string `json:"name"`
	CurrentValue  Number `json:"current_value"`
	UnrealizedPnL Number `json:"unrealized_pnl"`
}

type StartupHolding struct {
	ID            FlexID      `json:"id"`
	Startup       *Instrument `json:"startup"`
	Shares        Number      `json:"shares"`
	CurrentValue  Number      `json:"current_value"`
	UnrealizedPnL Number      `json:"unrealized_pnl"`
}

// ParsePayload decodes a holdings payload in any of its accepted shapes.
func ParsePayload(raw []byte) ([]Holding, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}

	switch raw[0] {
	case '[':
		var list []Holding
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return list, nil
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if inner, ok := probe["result"]; ok {
			inner = bytes.TrimSpace(inner)
			if len(inner) == 0 || inner[0] == 'n' {
				return nil, fmt.Errorf("%w: null result", ErrMalformedPayload)
			}
			return ParsePayload(inner)
		}
		if _, ok := probe["id"]; !ok {
			return nil, fmt.Errorf("%w: object has neither result nor id", ErrMalformedPayload)
		}
		var h Holding
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return []Holding{h}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %q", ErrMalformedPayload, raw[0])
	}
}
