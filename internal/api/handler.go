package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"nms-backend/internal/auth"
	"nms-backend/internal/engine"
	"nms-backend/internal/migration"
)

type Handler struct {
	engine     *engine.Engine
	migrations *migration.Service
	log        *zap.SugaredLogger
}

func NewHandler(e *engine.Engine, m *migration.Service, log *zap.SugaredLogger) *Handler {
	return &Handler{engine: e, migrations: m, log: log}
}

func bodyMap(c *fiber.Ctx) (map[string]any, error) {
	body := map[string]any{}
	if len(c.Body()) == 0 {
		return body, nil
	}
	if err := c.BodyParser(&body); err != nil {
		return nil, invalidPayload()
	}
	return body, nil
}

// Filtering handles POST /api/filtering/:type
func (h *Handler) Filtering(c *fiber.Ctx) error {
	raw, err := bodyMap(c)
	if err != nil {
		return filterError(c, err)
	}
	req, err := engine.ParseFilterRequest(raw)
	if err != nil {
		return filterError(c, err)
	}
	result, err := h.engine.Filter(c.UserContext(), auth.GetUser(c), c.Params("type"), req)
	if err != nil {
		return filterError(c, err)
	}
	switch req.Bulk {
	case engine.BulkIDs:
		return c.JSON(result.IDs)
	case engine.BulkObjects:
		return c.JSON(result.Objects)
	}
	return c.JSON(result)
}

// Multiselect handles POST /api/multiselect/:type
func (h *Handler) Multiselect(c *fiber.Ctx) error {
	var req engine.MultiselectRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return filterError(c, invalidPayload())
		}
	}
	result, err := h.engine.Multiselect(c.UserContext(), auth.GetUser(c), c.Params("type"), req)
	if err != nil {
		return filterError(c, err)
	}
	return c.JSON(result)
}

// Get handles GET /api/instance/:type/:id
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return filterError(c, engine.NewAppError("INVALID_ID", fiber.StatusBadRequest, "Invalid id"))
	}
	row, err := h.engine.Get(c.UserContext(), auth.GetUser(c), c.Params("type"), int64(id))
	if err != nil {
		return filterError(c, err)
	}
	return c.JSON(row)
}

// Update handles POST /api/update/:type. The optional must_be_new flag
// refuses to overwrite an existing instance of the same name.
func (h *Handler) Update(c *fiber.Ctx) error {
	values, err := bodyMap(c)
	if err != nil {
		return alert(c, err)
	}
	mustBeNew, _ := values["must_be_new"].(bool)
	delete(values, "must_be_new")
	row, err := h.engine.Update(c.UserContext(), auth.GetUser(c), c.Params("type"), values, mustBeNew)
	if err != nil {
		return alert(c, err)
	}
	return c.JSON(row)
}

// Delete handles POST /api/delete/:type/:id
func (h *Handler) Delete(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return alert(c, engine.NewAppError("INVALID_ID", fiber.StatusBadRequest, "Invalid id"))
	}
	if err := h.engine.Delete(c.UserContext(), auth.GetUser(c), c.Params("type"), int64(id)); err != nil {
		return alert(c, err)
	}
	return c.JSON(fiber.Map{"number": 1})
}

// BulkAdd handles POST /api/bulk/add
func (h *Handler) BulkAdd(c *fiber.Ctx) error {
	var req engine.BulkAddRequest
	if err := c.BodyParser(&req); err != nil {
		return alert(c, invalidPayload())
	}
	result, err := h.engine.AddInBulk(c.UserContext(), auth.GetUser(c), req)
	if err != nil {
		return alert(c, err)
	}
	return c.JSON(result)
}

// BulkRemove handles POST /api/bulk/remove/:type
func (h *Handler) BulkRemove(c *fiber.Ctx) error {
	var req engine.BulkRemoveRequest
	if err := c.BodyParser(&req); err != nil {
		return alert(c, invalidPayload())
	}
	result, err := h.engine.RemoveInBulk(c.UserContext(), auth.GetUser(c), c.Params("type"), req)
	if err != nil {
		return alert(c, err)
	}
	return c.JSON(result)
}

// RemoveInstance handles POST /api/remove/:relation_type/:relation_id/:type/:id/:property
func (h *Handler) RemoveInstance(c *fiber.Ctx) error {
	relationID, err := c.ParamsInt("relation_id")
	if err != nil {
		return alert(c, engine.NewAppError("INVALID_ID", fiber.StatusBadRequest, "Invalid relation id"))
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return alert(c, engine.NewAppError("INVALID_ID", fiber.StatusBadRequest, "Invalid id"))
	}
	result, err := h.engine.RemoveInstance(c.UserContext(), auth.GetUser(c),
		c.Params("relation_type"), int64(relationID), c.Params("type"), int64(id), c.Params("property"))
	if err != nil {
		return alert(c, err)
	}
	return c.JSON(result)
}

// BulkEdit handles POST /api/bulk/edit/:type
func (h *Handler) BulkEdit(c *fiber.Ctx) error {
	form, err := bodyMap(c)
	if err != nil {
		return alert(c, err)
	}
	n, err := h.engine.BulkEdit(c.UserContext(), auth.GetUser(c), c.Params("type"), form)
	if err != nil {
		return alert(c, err)
	}
	return c.JSON(fiber.Map{"number": n})
}

// BulkDelete handles POST /api/bulk/delete/:type
func (h *Handler) BulkDelete(c *fiber.Ctx) error {
	raw, err := bodyMap(c)
	if err != nil {
		return alert(c, err)
	}
	req, err := engine.ParseFilterRequest(raw)
	if err != nil {
		return alert(c, err)
	}
	n, err := h.engine.BulkDelete(c.UserContext(), auth.GetUser(c), c.Params("type"), req)
	if err != nil {
		return alert(c, err)
	}
	return c.JSON(fiber.Map{"number": n})
}

// ExportMigration handles POST /api/migrations/export
func (h *Handler) ExportMigration(c *fiber.Ctx) error {
	var req migration.ExportRequest
	if err := c.BodyParser(&req); err != nil {
		return alert(c, invalidPayload())
	}
	path, err := h.migrations.Export(c.UserContext(), req)
	if err != nil {
		return alert(c, err)
	}
	return c.JSON(fiber.Map{"path": path})
}

// ImportMigration handles POST /api/migrations/import
func (h *Handler) ImportMigration(c *fiber.Ctx) error {
	var req migration.ImportRequest
	if err := c.BodyParser(&req); err != nil {
		return alert(c, invalidPayload())
	}
	status, err := h.migrations.Import(c.UserContext(), req)
	if err != nil {
		return alert(c, err)
	}
	return c.JSON(fiber.Map{"status": status})
}

// ListMigrations handles GET /api/migrations
func (h *Handler) ListMigrations(c *fiber.Ctx) error {
	bundles, err := h.migrations.ListBundles(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": bundles})
}

// ExportUnit handles POST /api/units/export/:type/:name
func (h *Handler) ExportUnit(c *fiber.Ctx) error {
	path, err := h.migrations.ExportUnit(c.UserContext(), c.Params("type"), c.Params("name"))
	if err != nil {
		return alert(c, err)
	}
	return c.JSON(fiber.Map{"path": path})
}

// ImportUnit handles POST /api/units/import. The unit is either uploaded as
// the multipart "file" field or named in a JSON body.
func (h *Handler) ImportUnit(c *fiber.Ctx) error {
	var status string
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return err
		}
		defer f.Close()
		name := strings.TrimSuffix(fh.Filename, ".tgz")
		if status, err = h.migrations.ImportUnitFrom(c.UserContext(), name, f); err != nil {
			return alert(c, err)
		}
	} else {
		var body struct {
			Name string `json:"name"`
		}
		if err := c.BodyParser(&body); err != nil {
			return alert(c, invalidPayload())
		}
		if status, err = h.migrations.ImportUnit(c.UserContext(), body.Name); err != nil {
			return alert(c, err)
		}
	}
	return c.JSON(fiber.Map{"status": status})
}
