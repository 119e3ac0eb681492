package holdings

import (
	"strings"

	"github.com/nmathey/finahack/pkg/logger"
)

const realTokenPrefix = "REALTOKEN"

// stablecoins are reclassified as fiat/stablecoin.
var stablecoins = map[string]bool{
	"USDC":  true,
	"USDT":  true,
	"DAI":   true,
	"BUSD":  true,
	"TUSD":  true,
	"USDP":  true,
	"FDUSD": true,
	"PYUSD": true,
	"EURC":  true,
	"EURT":  true,
	"EURS":  true,
}

// fundSecurityTypes are security types classified as funds rather than stocks.
var fundSecurityTypes = map[string]bool{
	"etf":         true,
	"fund":        true,
	"mutual_fund": true,
	"opcvm":       true,
	"sicav":       true,
	"fcp":         true,
	"tracker":     true,
	"scpi_fund":   true,
}

// envelopeRules are tested in order against the account type slug; first match wins.
var envelopeRules = []struct {
	substrings []string
	envelope   EnvelopeType
}{
	{[]string{"lifeinsurance"}, EnvelopeLifeInsurance},
	{[]string{"pea"}, EnvelopePEA},
	{[]string{"pee"}, EnvelopePEE},
	{[]string{"compte_titres", "brokerage"}, EnvelopeCTO},
	{[]string{"savings", "checking"}, EnvelopeBank},
}

// Flattener turns holdings payloads into NormalizedAsset lists, reporting
// malformed payloads instead of failing.
type Flattener struct {
	logger *logger.Logger
}

// NewFlattener creates a Flattener
func NewFlattener(log *logger.Logger) *Flattener {
	return &Flattener{logger: log.WithField("component", "flattener")}
}

// FlattenPayload parses and flattens a raw payload. A payload that cannot be
// parsed yields an empty list and a warning.
func (f *Flattener) FlattenPayload(raw []byte) []NormalizedAsset {
	list, err := ParsePayload(raw)
	if err != nil {
		f.logger.Warn("holdings payload ignored", "error", err, "bytes", len(raw))
		return []NormalizedAsset{}
	}
	assets := Flatten(list)
	f.logger.Debug("holdings flattened", "holdings", len(list), "assets", len(assets))
	return assets
}

// ClassifyEnvelope derives the envelope type of a holdings account.
func ClassifyEnvelope(h Holding) EnvelopeType {
	slug := ""
	if h.BankAccountType != nil {
		slug = strings.ToLower(h.BankAccountType.Slug)
	}

	if slug != "" {
		for _, rule := range envelopeRules {
			for _, s := range rule.substrings {
				if strings.Contains(slug, s) {
					return rule.envelope
				}
			}
		}
	}

	switch strings.ToLower(h.ManualType) {
	case "real_estate":
		return EnvelopeDirectRealEstate
	case "scpi":
		return EnvelopeSCPI
	}

	if slug == "" && h.ManualType == "" {
		return EnvelopeCryptoWallet
	}
	return EnvelopeUnknown
}

// Flatten expands holdings into one NormalizedAsset per sub-collection
// element. Order is stable: holdings in input order, sub-collections in
// declared order, elements in input order.
func Flatten(list []Holding) []NormalizedAsset {
	assets := make([]NormalizedAsset, 0)
	for _, h := range list {
		base := NormalizedAsset{
			HoldingID:    string(h.ID),
			AccountName:  h.Name,
			EnvelopeType: ClassifyEnvelope(h),
		}
		if h.Institution != nil {
			base.InstitutionName = h.Institution.Name
		}

		for _, c := range h.Cryptos {
			assets = append(assets, flattenCrypto(base, c))
		}
		for _, s := range h.Securities {
			assets = append(assets, flattenSecurity(base, s))
		}
		for _, r := range h.RealEstates {
			a := leaf(base, r.ID, AssetTypeRealEstate, CategoryRealEstate, SubcategoryPhysical)
			a.Name = firstNonEmpty(r.Name, r.Description, r.Category)
			a.CurrentValue = r.CurrentValue.Ptr()
			a.PnLAmount = r.UnrealizedPnL.OrZero()
			assets = append(assets, a)
		}
		for _, s := range h.SCPIs {
			a := leaf(base, s.ID, AssetTypeSCPI, CategoryRealEstate, SubcategoryPaper)
			a.Name = instrumentName(s.SCPI)
			a.Quantity = s.Shares.Ptr()
			a.CurrentValue = s.CurrentValue.Ptr()
			a.PnLAmount = s.UnrealizedPnL.OrZero()
			assets = append(assets, a)
		}
		for _, fi := range h.Fiats {
			a := leaf(base, fi.ID, AssetTypeFiat, CategoryFiat, SubcategoryCash)
			a.Name = instrumentName(fi.Fiat)
			a.Quantity = fi.Quantity.Ptr()
			a.CurrentValue = fi.CurrentValue.Ptr()
			a.PnLAmount = fi.UnrealizedPnL.OrZero()
			assets = append(assets, a)
		}
		for _, fe := range h.FondsEuro {
			a := leaf(base, fe.ID, AssetTypeFondsEuro, CategoryFund, SubcategoryGuaranteed)
			a.Name = fe.Name
			a.CurrentValue = fe.CurrentValue.Ptr()
			a.PnLAmount = fe.UnrealizedPnL.OrZero()
			assets = append(assets, a)
		}
		for _, s := range h.Startups {
			a := leaf(base, s.ID, AssetTypeStartup, CategoryStartup, SubcategoryPrivateEquity)
			a.Name = instrumentName(s.Startup)
			a.Quantity = s.Shares.Ptr()
			a.CurrentValue = s.CurrentValue.Ptr()
			a.PnLAmount = s.UnrealizedPnL.OrZero()
			assets = append(assets, a)
		}
	}
	return assets
}

func flattenCrypto(base NormalizedAsset, c CryptoHolding) NormalizedAsset {
	a := leaf(base, c.ID, AssetTypeCrypto, CategoryCrypto, SubcategoryCoin)
	a.Quantity = c.Quantity.Ptr()
	a.CurrentValue = c.CurrentValue.Ptr()
	a.PnLAmount = c.UnrealizedPnL.OrZero()

	var code, name string
	if c.Crypto != nil {
		code = strings.ToUpper(strings.TrimSpace(c.Crypto.Code))
		name = c.Crypto.Name
	}
	a.Name = firstNonEmpty(name, code)

	switch {
	case strings.HasPrefix(code, realTokenPrefix):
		a.Category = CategoryRealEstate
		a.Subcategory = SubcategoryTokenized
		source := code
		if strings.HasPrefix(strings.ToUpper(name), realTokenPrefix) {
			source = name
		}
		a.Name = realTokenName(source)
	case stablecoins[code]:
		a.Category = CategoryFiat
		a.Subcategory = SubcategoryStablecoin
	}
	return a
}

func flattenSecurity(base NormalizedAsset, s SecurityHolding) NormalizedAsset {
	a := leaf(base, s.ID, AssetTypeSecurity, CategoryStock, "stock")
	a.Quantity = s.Quantity.Ptr()
	a.CurrentValue = s.CurrentValue.Ptr()
	a.PnLAmount = s.UnrealizedPnL.OrZero()

	if s.Security == nil {
		return a
	}
	a.Name = firstNonEmpty(s.Security.Name, s.Security.ISIN, s.Security.Code)

	secType := strings.ToLower(strings.TrimSpace(s.Security.Type))
	if secType == "" {
		return a
	}
	a.Subcategory = secType
	if fundSecurityTypes[secType] {
		a.Category = CategoryFund
	}
	return a
}

func leaf(base NormalizedAsset, id FlexID, assetType AssetType, category Category, subcategory string) NormalizedAsset {
	a := base
	a.ID = string(id)
	a.AssetID = string(id)
	a.AssetType = assetType
	a.Category = category
	a.Subcategory = subcategory
	return a
}

// realTokenName strips the REALTOKEN prefix and turns hyphens into spaces:
// "REALTOKEN-S-9943-MARLOWE" → "S 9943 MARLOWE".
func realTokenName(s string) string {
	s = s[len(realTokenPrefix):]
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

func instrumentName(i *Instrument) string {
	if i == nil {
		return ""
	}
	return firstNonEmpty(i.Name, i.Code, i.ISIN)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
