package holdings

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

// CSVHeader is the canonical interchange header, in column order.
var CSVHeader = []string{
	"holdingId", "accountName", "institutionName", "envelopeType",
	"assetId", "assetName", "assetType", "category", "subcategory",
	"currentValue", "quantity", "pnl_amount", "myAssetType", "virtual_envelop",
}

// ErrCSVHeader is returned when a CSV does not start with CSVHeader.
var ErrCSVHeader = errors.New("unexpected CSV header")

// WriteCSV writes assets with the canonical header.
func WriteCSV(w io.Writer, assets []NormalizedAsset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, a := range assets {
		row := []string{
			a.HoldingID, a.AccountName, a.InstitutionName, string(a.EnvelopeType),
			a.Key(), a.Name, string(a.AssetType), string(a.Category), a.Subcategory,
			formatDecimal(a.CurrentValue), formatDecimal(a.Quantity), a.PnLAmount.String(),
			a.MyAssetType, a.VirtualEnvelop,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row for asset %s: %w", a.Key(), err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a CSV written by WriteCSV (or edited by hand). Unparseable
// numbers are read as absent.
func ReadCSV(r io.Reader) ([]NormalizedAsset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(CSVHeader)

	header, err := cr.Read()
	if err == io.EOF {
		return []NormalizedAsset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i, col := range CSVHeader {
		if strings.TrimSpace(header[i]) != col {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrCSVHeader, i+1, header[i], col)
		}
	}

	assets := make([]NormalizedAsset, 0)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		a := NormalizedAsset{
			HoldingID:       row[0],
			AccountName:     row[1],
			InstitutionName: row[2],
			EnvelopeType:    EnvelopeType(row[3]),
			ID:              row[4],
			AssetID:         row[4],
			Name:            row[5],
			AssetType:       AssetType(row[6]),
			Category:        Category(row[7]),
			Subcategory:     row[8],
			CurrentValue:    parseDecimal(row[9]),
			Quantity:        parseDecimal(row[10]),
			MyAssetType:     row[12],
			VirtualEnvelop:  row[13],
		}
		if pnl := parseDecimal(row[11]); pnl != nil {
			a.PnLAmount = *pnl
		}
		assets = append(assets, a)
	}
	return assets, nil
}

func formatDecimal(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func parseDecimal(s string) *decimal.Decimal {
	var n Number
	_ = n.UnmarshalJSON([]byte(strings.TrimSpace(s)))
	return n.Ptr()
}
