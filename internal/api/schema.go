package api

import (
	"github.com/gofiber/fiber/v2"

	"nms-backend/internal/metadata"
)

type entitySummary struct {
	Name          string                   `json:"name"`
	Table         string                   `json:"table"`
	Properties    []metadata.Field         `json:"properties"`
	Relationships []*metadata.Relationship `json:"relationships"`
	Grouping      bool                     `json:"grouping"`
	Principal     bool                     `json:"principal"`
	Unit          bool                     `json:"unit"`
	Hooks         int                      `json:"constraint_hooks"`
}

// ListEntities handles GET /api/schema
func (h *Handler) ListEntities(c *fiber.Ctx) error {
	entities := h.engine.Registry().AllEntities()
	out := make([]entitySummary, 0, len(entities))
	for _, entity := range entities {
		s, err := h.summary(entity.Name)
		if err != nil {
			return err
		}
		out = append(out, *s)
	}
	return c.JSON(fiber.Map{"data": out})
}

// GetEntity handles GET /api/schema/:type
func (h *Handler) GetEntity(c *fiber.Ctx) error {
	s, err := h.summary(c.Params("type"))
	if err != nil {
		return filterError(c, err)
	}
	return c.JSON(fiber.Map{"data": s})
}

func (h *Handler) summary(name string) (*entitySummary, error) {
	caps, err := h.engine.Capabilities(name)
	if err != nil {
		return nil, err
	}
	return &entitySummary{
		Name:          caps.Entity.Name,
		Table:         caps.Entity.Table,
		Properties:    caps.Properties,
		Relationships: caps.Relationships,
		Grouping:      caps.Entity.Grouping != nil,
		Principal:     caps.Entity.Principal != nil,
		Unit:          caps.Entity.Unit != nil,
		Hooks:         len(caps.Hooks),
	}, nil
}
