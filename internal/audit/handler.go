package audit

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const maxListLimit = 500

type PriceHistoryResponse struct {
	ID           uint   `json:"id"`
	EntityType   string `json:"entity_type"`
	EntityID     uint   `json:"entity_id"`
	VariantID    string `json:"variant_id"`
	VariantIndex int    `json:"variant_index"`
	VariantName  string `json:"variant_name"`
	OldPrice     string `json:"old_price"`
	NewPrice     string `json:"new_price"`
	ChangedAt    string `json:"changed_at"`
	ChangedBy    string `json:"changed_by"`
}

// GET /api/price-history?entity_type=metal&entity_id=1&limit=50
func ListPriceHistoryHandler(l *Log) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := Filter{EntityType: c.Query("entity_type")}

		if s := c.Query("entity_id"); s != "" {
			id, err := strconv.ParseUint(s, 10, 64)
			if err != nil || id == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "entity_id must be a positive integer")
			}
			f.EntityID = uint(id)
		}

		limit := c.QueryInt("limit", DefaultPageSize)
		if limit <= 0 || limit > maxListLimit {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 500")
		}

		entries, err := l.List(c.UserContext(), f, limit)
		if err != nil {
			return err
		}

		resp := make([]PriceHistoryResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, PriceHistoryResponse{
				ID:           e.ID,
				EntityType:   e.EntityType,
				EntityID:     e.EntityID,
				VariantID:    e.VariantID.String(),
				VariantIndex: e.VariantIndex,
				VariantName:  e.VariantName,
				OldPrice:     e.OldPrice.String(),
				NewPrice:     e.NewPrice.String(),
				ChangedAt:    e.ChangedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
				ChangedBy:    e.ChangedBy,
			})
		}
		return c.JSON(resp)
	}
}
