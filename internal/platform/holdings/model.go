package holdings

import (
	"time"

	"github.com/shopspring/decimal"
)

// EnvelopeType is the tax/legal wrapper an asset is held in
type EnvelopeType string

const (
	EnvelopeLifeInsurance    EnvelopeType = "av"
	EnvelopePEA              EnvelopeType = "pea"
	EnvelopePEE              EnvelopeType = "pee"
	EnvelopeCTO              EnvelopeType = "cto"
	EnvelopeBank             EnvelopeType = "bank"
	EnvelopeDirectRealEstate EnvelopeType = "direct_real_estate"
	EnvelopeSCPI             EnvelopeType = "scpi"
	EnvelopeCryptoWallet     EnvelopeType = "crypto_wallet"
	EnvelopeUnknown          EnvelopeType = "unknown"
)

// AssetType is the technical source kind: the sub-collection an asset came from
type AssetType string

const (
	AssetTypeCrypto     AssetType = "crypto"
	AssetTypeSecurity   AssetType = "security"
	AssetTypeRealEstate AssetType = "real_estate"
	AssetTypeSCPI       AssetType = "scpi"
	AssetTypeFiat       AssetType = "fiat"
	AssetTypeFondsEuro  AssetType = "fonds_euro"
	AssetTypeStartup    AssetType = "startup"
)

// Category is the business class of an asset
type Category string

const (
	CategoryCrypto     Category = "crypto"
	CategoryRealEstate Category = "real_estate"
	CategoryFiat       Category = "fiat"
	CategoryFund       Category = "fund"
	CategoryStock      Category = "stock"
	CategoryStartup    Category = "startup"
)

// Subcategory refinements. Securities use their upstream security type instead.
const (
	SubcategoryCoin          = "coin"
	SubcategoryStablecoin    = "stablecoin"
	SubcategoryTokenized     = "tokenized"
	SubcategoryPhysical      = "physical"
	SubcategoryPaper         = "paper"
	SubcategoryCash          = "cash"
	SubcategoryGuaranteed    = "guaranteed"
	SubcategoryPrivateEquity = "private_equity"
)

// NormalizedAsset is one leaf financial instrument of a holdings account.
//
// MyAssetType and VirtualEnvelop are user annotations. The API never produces
// them; Merge defaults them on first sighting and preserves them afterwards.
type NormalizedAsset struct {
	HoldingID       string           `json:"holdingId"`
	AccountName     string           `json:"accountName"`
	InstitutionName string           `json:"institutionName"`
	EnvelopeType    EnvelopeType     `json:"envelopeType"`
	ID              string           `json:"id"`
	AssetID         string           `json:"assetId"`
	Name            string           `json:"name"`
	AssetType       AssetType        `json:"assetType"`
	Category        Category         `json:"category"`
	Subcategory     string           `json:"subcategory"`
	CurrentValue    *decimal.Decimal `json:"currentValue"`
	Quantity        *decimal.Decimal `json:"quantity"`
	PnLAmount       decimal.Decimal  `json:"pnl_amount"`
	MyAssetType     string           `json:"myAssetType"`
	VirtualEnvelop  string           `json:"virtual_envelop"`
}

// Key is the legacy identity used to match assets across syncs: assetId,
// falling back to id, then holdingId. Sub-collection ids are not unique across
// instrument kinds, so two assets of one holding may share a Key.
func (a NormalizedAsset) Key() string {
	switch {
	case a.AssetID != "":
		return a.AssetID
	case a.ID != "":
		return a.ID
	default:
		return a.HoldingID
	}
}

// StrictKey scopes the local id by envelope, holding and sub-collection kind.
func (a NormalizedAsset) StrictKey() string {
	return string(a.EnvelopeType) + "/" + a.HoldingID + "/" + string(a.AssetType) + "/" + a.Key()
}

// Value returns the current value, zero when unknown.
func (a NormalizedAsset) Value() decimal.Decimal {
	if a.CurrentValue == nil {
		return decimal.Zero
	}
	return *a.CurrentValue
}

// KeyFunc derives the identity used to index assets.
type KeyFunc func(NormalizedAsset) string

// LegacyKey and StrictKey as KeyFuncs.
var (
	LegacyKey KeyFunc = NormalizedAsset.Key
	StrictKey KeyFunc = NormalizedAsset.StrictKey
)

// Cache is the single materialized asset list plus its last refresh time.
// It is always replaced as a whole.
type Cache struct {
	Assets      []NormalizedAsset `json:"assets"`
	LastRefresh time.Time         `json:"last_refresh"`
}

// Empty reports whether the cache has never been populated.
func (c *Cache) Empty() bool {
	return c == nil || (len(c.Assets) == 0 && c.LastRefresh.IsZero())
}
