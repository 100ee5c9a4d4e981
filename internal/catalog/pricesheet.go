package catalog

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"jewelry-backend/internal/apperr"
	"jewelry-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// PriceSheetRow is one line of an uploaded price sheet: column A names the
// variant (or gives its index), column B the new unit price.
type PriceSheetRow struct {
	Row     int
	Variant string
	Price   decimal.Decimal
}

type PriceSheetResult struct {
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Unmatched []string `json:"unmatched"`
}

// ParsePriceSheet reads the first sheet of an xlsx workbook. A header row is
// skipped when its first cell mentions "variant". Blank rows are ignored; a
// row with an unreadable or negative price rejects the whole sheet.
func ParsePriceSheet(r io.Reader) ([]PriceSheetRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Invalid("file", "is not a readable xlsx workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Invalid("file", "has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	start := 0
	if len(rows) > 0 && len(rows[0]) > 0 && strings.Contains(strings.ToLower(rows[0][0]), "variant") {
		start = 1
	}

	out := make([]PriceSheetRow, 0, len(rows))
	for i := start; i < len(rows); i++ {
		row := rows[i]
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		if len(row) < 2 {
			return nil, apperr.Invalid(fmt.Sprintf("row %d", i+1), "has no price")
		}

		raw := strings.NewReplacer(",", "", " ", "").Replace(row[1])
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, apperr.Invalid(fmt.Sprintf("row %d", i+1), fmt.Sprintf("price %q is not a number", row[1]))
		}
		if err := validatePrice(fmt.Sprintf("row %d", i+1), price); err != nil {
			return nil, err
		}

		out = append(out, PriceSheetRow{Row: i + 1, Variant: strings.TrimSpace(row[0]), Price: price})
	}

	if len(out) == 0 {
		return nil, apperr.Invalid("file", "contains no price rows")
	}
	return out, nil
}

// ApplyPriceSheet updates each matched variant through UpdateVariantPriceByID,
// so every change is its own locked transaction with its own audit entry.
// Rows naming no variant of the material are reported, not applied.
func (s *Service) ApplyPriceSheet(ctx context.Context, id uint, rows []PriceSheetRow, actor models.Actor) (*PriceSheetResult, error) {
	m, err := s.Get(ctx, id, Filter{})
	if err != nil {
		return nil, err
	}

	res := &PriceSheetResult{Unmatched: []string{}}
	for _, row := range rows {
		index, ok := matchVariant(m, row.Variant)
		if !ok {
			res.Unmatched = append(res.Unmatched, row.Variant)
			continue
		}

		upd, err := s.UpdateVariantPriceByID(ctx, id, m.Variants[index].ID, row.Price, actor)
		if err != nil {
			return res, fmt.Errorf("row %d: %w", row.Row, err)
		}
		if upd.Entry == nil {
			res.Unchanged++
		} else {
			res.Updated++
		}
	}

	s.log.Info("price sheet applied",
		"material_id", id,
		"updated", res.Updated,
		"unchanged", res.Unchanged,
		"unmatched", len(res.Unmatched),
		"actor", actor.Name,
	)
	return res, nil
}

// matchVariant resolves a sheet cell to a variant position, by name
// (case-insensitive) first and then as a 0-based index.
func matchVariant(m *models.Material, cell string) (int, bool) {
	for i, v := range m.Variants {
		if strings.EqualFold(v.Name, cell) {
			return i, true
		}
	}
	if idx, err := strconv.Atoi(cell); err == nil {
		if _, ok := m.VariantAt(idx); ok {
			return idx, true
		}
	}
	return 0, false
}
