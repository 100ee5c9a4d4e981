package composition

import (
	"time"

	"jewelry-backend/internal/apperr"
	"jewelry-backend/internal/models"
	"jewelry-backend/internal/pricing"

	"github.com/gofiber/fiber/v2"
)

type LineResponse struct {
	Position     int    `json:"position"`
	MaterialKind string `json:"material_kind"`
	MaterialRef  uint   `json:"material_ref"`
	VariantID    string `json:"variant_id"`
	VariantIndex int    `json:"variant_index"`
	Quantity     string `json:"quantity"`
	Unit         string `json:"unit"`
}

type ProductResponse struct {
	ID          uint           `json:"id"`
	SKU         string         `json:"sku"`
	Name        string         `json:"name"`
	IsActive    bool           `json:"is_active"`
	Composition []LineResponse `json:"composition"`
	UpdatedAt   string         `json:"updated_at"`
}

type SaveCompositionRequest struct {
	Lines []LineInput `json:"lines"`
}

type PricedLineResponse struct {
	Position     int    `json:"position"`
	MaterialCode string `json:"material_code"`
	VariantName  string `json:"variant_name"`
	Quantity     string `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	Base         string `json:"base"`
	Wastage      string `json:"wastage"`
	Making       string `json:"making"`
	LineTotal    string `json:"line_total"`
}

// PriceResponse never carries a number when PriceAvailable is false.
type PriceResponse struct {
	ProductID      uint                 `json:"product_id"`
	PriceAvailable bool                 `json:"price_available"`
	Subtotal       string               `json:"subtotal,omitempty"`
	Breakdown      []PricedLineResponse `json:"breakdown,omitempty"`
	Reason         string               `json:"reason,omitempty"`
}

func toLineResponses(lines []models.CompositionLine) []LineResponse {
	out := make([]LineResponse, 0, len(lines))
	for _, l := range lines {
		out = append(out, LineResponse{
			Position:     l.Position,
			MaterialKind: string(l.MaterialKind),
			MaterialRef:  l.MaterialRef,
			VariantID:    l.VariantID.String(),
			VariantIndex: l.VariantIndex,
			Quantity:     l.Quantity.String(),
			Unit:         l.MaterialKind.UnitLabel(),
		})
	}
	return out
}

func toProductResponse(p *models.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		IsActive:    p.IsActive,
		Composition: toLineResponses(p.Composition),
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toPriceResponse(productID uint, q pricing.Quote) PriceResponse {
	lines := make([]PricedLineResponse, 0, len(q.Breakdown))
	for _, b := range q.Breakdown {
		lines = append(lines, PricedLineResponse{
			Position:     b.Position,
			MaterialCode: b.MaterialCode,
			VariantName:  b.VariantName,
			Quantity:     b.Quantity.String(),
			UnitPrice:    b.UnitPrice.String(),
			Base:         b.Base.String(),
			Wastage:      b.Wastage.String(),
			Making:       b.Making.String(),
			LineTotal:    b.LineTotal.String(),
		})
	}
	return PriceResponse{
		ProductID:      productID,
		PriceAvailable: true,
		Subtotal:       q.SubtotalString(),
		Breakdown:      lines,
	}
}

func productID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "id must be a positive integer")
	}
	return uint(id), nil
}

// POST /api/admin/products
func CreateProductHandler(s *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ProductInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		p, err := s.CreateProduct(c.UserContext(), body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toProductResponse(p))
	}
}

// GET /api/products/:id
func GetProductHandler(s *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := productID(c)
		if err != nil {
			return err
		}

		p, err := s.GetProduct(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(toProductResponse(p))
	}
}

// DELETE /api/admin/products/:id
func DeleteProductHandler(s *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := productID(c)
		if err != nil {
			return err
		}

		if err := s.DeleteProduct(c.UserContext(), id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// PUT /api/admin/products/:id/composition
func SaveCompositionHandler(s *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := productID(c)
		if err != nil {
			return err
		}

		var body SaveCompositionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		lines, err := s.SaveComposition(c.UserContext(), id, body.Lines)
		if err != nil {
			return err
		}
		return c.JSON(toLineResponses(lines))
	}
}

// GET /api/products/:id/composition
func GetCompositionHandler(s *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := productID(c)
		if err != nil {
			return err
		}

		lines, err := s.Composition(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(toLineResponses(lines))
	}
}

// GET /api/products/:id/price
// A composition the catalog can no longer price answers 200 with
// price_available=false instead of an error or a wrong number.
func GetPriceHandler(s *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := productID(c)
		if err != nil {
			return err
		}

		q, err := s.PriceProduct(c.UserContext(), id)
		if err != nil {
			if apperr.IsPricingFailure(err) {
				return c.JSON(PriceResponse{
					ProductID:      id,
					PriceAvailable: false,
					Reason:         apperr.Code(err),
				})
			}
			return err
		}
		return c.JSON(toPriceResponse(id, q))
	}
}
