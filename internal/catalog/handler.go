package catalog

import (
	"strings"
	"time"

	"jewelry-backend/internal/auth"
	"jewelry-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type VariantResponse struct {
	ID        string `json:"id"`
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Purity    string `json:"purity,omitempty"`
	Cut       string `json:"cut,omitempty"`
	Clarity   string `json:"clarity,omitempty"`
	Shape     string `json:"shape,omitempty"`
	UnitPrice string `json:"unit_price"`
	IsActive  bool   `json:"is_active"`
}

type MaterialResponse struct {
	ID                       uint              `json:"id"`
	Kind                     string            `json:"kind"`
	Unit                     string            `json:"unit"`
	Code                     string            `json:"code"`
	Name                     string            `json:"name"`
	ColorOrType              string            `json:"color_or_type"`
	Variants                 []VariantResponse `json:"variants"`
	DefaultWastagePercentage string            `json:"default_wastage_percentage"`
	DefaultMakingChargeType  string            `json:"default_making_charge_type,omitempty"`
	DefaultMakingCharges     string            `json:"default_making_charges"`
	IsDeleted                bool              `json:"is_deleted"`
	DeletedAt                *string           `json:"deleted_at,omitempty"`
	UpdatedAt                string            `json:"updated_at"`
}

type UpdatePriceRequest struct {
	NewPrice *decimal.Decimal `json:"new_price"`
}

type UpdatePriceResponse struct {
	Material MaterialResponse `json:"material"`
	Changed  bool             `json:"changed"`
	OldPrice string           `json:"old_price,omitempty"`
	NewPrice string           `json:"new_price,omitempty"`
}

func toMaterialResponse(m *models.Material) MaterialResponse {
	variants := make([]VariantResponse, 0, len(m.Variants))
	for i, v := range m.Variants {
		variants = append(variants, VariantResponse{
			ID:        v.ID.String(),
			Index:     i,
			Name:      v.Name,
			Purity:    v.Purity,
			Cut:       v.Cut,
			Clarity:   v.Clarity,
			Shape:     v.Shape,
			UnitPrice: v.UnitPrice.String(),
			IsActive:  v.IsActive,
		})
	}

	res := MaterialResponse{
		ID:                       m.ID,
		Kind:                     string(m.Kind),
		Unit:                     m.Kind.UnitLabel(),
		Code:                     m.Code,
		Name:                     m.Name,
		ColorOrType:              m.ColorOrType,
		Variants:                 variants,
		DefaultWastagePercentage: m.DefaultWastagePercentage.String(),
		DefaultMakingChargeType:  string(m.DefaultMakingChargeType),
		DefaultMakingCharges:     m.DefaultMakingCharges.String(),
		IsDeleted:                m.IsDeleted,
		UpdatedAt:                m.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if m.DeletedAt != nil {
		s := m.DeletedAt.UTC().Format(time.RFC3339)
		res.DeletedAt = &s
	}
	return res
}

func toUpdatePriceResponse(res *PriceUpdate) UpdatePriceResponse {
	out := UpdatePriceResponse{Material: toMaterialResponse(res.Material)}
	if res.Entry != nil {
		out.Changed = true
		out.OldPrice = res.Entry.OldPrice.String()
		out.NewPrice = res.Entry.NewPrice.String()
	}
	return out
}

func materialID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "id must be a positive integer")
	}
	return uint(id), nil
}

// GET /api/materials?kind=metal&include_deleted=true
func ListMaterialsHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := Filter{
			Kind:           models.MaterialKind(c.Query("kind")),
			IncludeDeleted: c.QueryBool("include_deleted", false),
		}
		if f.Kind != "" && !f.Kind.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "kind must be metal or gemstone")
		}

		materials, err := s.List(c.UserContext(), f)
		if err != nil {
			return err
		}

		res := make([]MaterialResponse, 0, len(materials))
		for i := range materials {
			res = append(res, toMaterialResponse(&materials[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/materials/:id?include_deleted=true
func GetMaterialHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := materialID(c)
		if err != nil {
			return err
		}

		m, err := s.Get(c.UserContext(), id, Filter{IncludeDeleted: c.QueryBool("include_deleted", false)})
		if err != nil {
			return err
		}
		return c.JSON(toMaterialResponse(m))
	}
}

// POST /api/admin/materials
func CreateMaterialHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body MaterialInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		m, err := s.Create(c.UserContext(), body, auth.ActorFromCtx(c))
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toMaterialResponse(m))
	}
}

// PUT /api/admin/materials/:id
func ReplaceMaterialHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := materialID(c)
		if err != nil {
			return err
		}

		var body MaterialInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		m, _, err := s.Replace(c.UserContext(), id, body, auth.ActorFromCtx(c))
		if err != nil {
			return err
		}
		return c.JSON(toMaterialResponse(m))
	}
}

// PUT /api/admin/materials/:id/variants/:index/price
func UpdateVariantPriceHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := materialID(c)
		if err != nil {
			return err
		}
		index, err := c.ParamsInt("index")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "index must be an integer")
		}

		var body UpdatePriceRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.NewPrice == nil {
			return fiber.NewError(fiber.StatusBadRequest, "new_price is required")
		}

		res, err := s.UpdateVariantPrice(c.UserContext(), id, index, *body.NewPrice, auth.ActorFromCtx(c))
		if err != nil {
			return err
		}

		return c.JSON(toUpdatePriceResponse(res))
	}
}

// POST /api/admin/price-history/:id/revert
func RevertPriceChangeHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		entryID, err := c.ParamsInt("id")
		if err != nil || entryID <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "id must be a positive integer")
		}

		res, err := s.RevertPriceChange(c.UserContext(), uint(entryID), auth.ActorFromCtx(c))
		if err != nil {
			return err
		}
		return c.JSON(toUpdatePriceResponse(res))
	}
}

// DELETE /api/admin/materials/:id
// A referenced material answers 409 with reference_count (see server.ErrorHandler).
func DeleteMaterialHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := materialID(c)
		if err != nil {
			return err
		}

		if err := s.SoftDelete(c.UserContext(), id, auth.ActorFromCtx(c)); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/admin/materials/:id/prices/import (multipart, field "file")
func ImportPriceSheetHandler(s *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := materialID(c)
		if err != nil {
			return err
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file is required")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "only .xlsx price sheets are accepted")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file could not be opened")
		}
		defer file.Close()

		rows, err := ParsePriceSheet(file)
		if err != nil {
			return err
		}

		res, err := s.ApplyPriceSheet(c.UserContext(), id, rows, auth.ActorFromCtx(c))
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}
