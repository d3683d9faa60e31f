package engine

import (
	"context"
	"fmt"
	"strings"

	"nms-backend/internal/metadata"
	"nms-backend/internal/store"
)

// Bulk extraction modes.
const (
	BulkIDs     = "id"
	BulkObjects = "object"
)

const multiselectPageSize = 10

type Column struct {
	Data string `json:"data"`
}

type Order struct {
	Column int    `json:"column"`
	Dir    string `json:"dir"`
}

// FilterRequest is one table query against a single entity type.
type FilterRequest struct {
	Draw      int64
	Columns   []Column
	Order     []Order
	Start     int
	Length    int
	Export    bool
	Clipboard bool
	Bulk      string
	Criteria  Criteria
}

// FilterResult is the table payload. In bulk mode only IDs or Objects is
// set.
type FilterResult struct {
	Draw            int64            `json:"draw"`
	RecordsTotal    int64            `json:"recordsTotal"`
	RecordsFiltered int64            `json:"recordsFiltered"`
	Data            []map[string]any `json:"data"`
	FullResult      any              `json:"full_result,omitempty"`

	IDs     []int64          `json:"-"`
	Objects []map[string]any `json:"-"`
}

var reservedFilterKeys = map[string]bool{
	"draw": true, "columns": true, "order": true, "start": true, "length": true,
	"export": true, "clipboard": true, "bulk": true, "form": true, "constraints": true,
	"search": true,
}

// ParseFilterRequest reads the flattened request sent by the table UI.
// Criteria come from the "form" and "constraints" objects and from any
// top-level key that is not part of the table protocol.
func ParseFilterRequest(raw map[string]any) (*FilterRequest, error) {
	req := &FilterRequest{Length: 10, Criteria: Criteria{}}
	if v, ok := raw["draw"]; ok {
		req.Draw, _ = toInt64(v)
	}
	if v, ok := raw["start"]; ok {
		n, _ := toInt64(v)
		req.Start = int(n)
	}
	if v, ok := raw["length"]; ok {
		n, ok := toInt64(v)
		if !ok {
			return nil, fieldError("length", fmt.Sprintf("expected an integer, got %v", v))
		}
		req.Length = int(n)
	}
	if cols, ok := raw["columns"].([]any); ok {
		for _, c := range cols {
			m, _ := c.(map[string]any)
			data, _ := m["data"].(string)
			req.Columns = append(req.Columns, Column{Data: data})
		}
	}
	if orders, ok := raw["order"].([]any); ok {
		for _, o := range orders {
			m, _ := o.(map[string]any)
			col, _ := toInt64(m["column"])
			dir, _ := m["dir"].(string)
			req.Order = append(req.Order, Order{Column: int(col), Dir: dir})
		}
	}
	req.Export = truthy(raw["export"])
	req.Clipboard = truthy(raw["clipboard"])
	if bulk, ok := raw["bulk"].(string); ok {
		req.Bulk = bulk
	}
	for key, v := range raw {
		if !reservedFilterKeys[key] {
			req.Criteria[key] = v
		}
	}
	for _, key := range []string{"form", "constraints"} {
		if m, ok := raw[key].(map[string]any); ok {
			for k, v := range m {
				req.Criteria[k] = v
			}
		}
	}
	return req, nil
}

// compiledFilter is a criteria set resolved against one entity. It renders
// the same terms into any number of statements.
type compiledFilter struct {
	entity      *metadata.Entity
	scope       Predicate
	constraints []Constraint
	relations   []relationFilter
	hooks       []Predicate
}

func (e *Engine) compileFilter(user *metadata.UserContext, entity *metadata.Entity, criteria Criteria) (*compiledFilter, error) {
	constraints, err := BuildConstraints(entity, criteria)
	if err != nil {
		return nil, err
	}
	relations, err := buildRelationFilters(entity, criteria)
	if err != nil {
		return nil, err
	}
	cf := &compiledFilter{
		entity:      entity,
		scope:       e.scopePredicate(user, entity),
		constraints: constraints,
		relations:   relations,
	}
	for _, hook := range e.hooks[entity.Name] {
		preds, err := hook(entity, criteria)
		if err != nil {
			return nil, err
		}
		cf.hooks = append(cf.hooks, preds...)
	}
	return cf, nil
}

// builder renders the filter. Scope always comes first so counts reflect
// visibility before any criterion.
func (e *Engine) builder(cf *compiledFilter, withCriteria bool) *SQLBuilder {
	b := e.newBuilder(cf.entity)
	if cf.scope != nil {
		b.Add(cf.scope)
	}
	if !withCriteria {
		return b
	}
	for _, c := range cf.constraints {
		b.Add(c)
	}
	for _, rf := range cf.relations {
		if rf.empty {
			b.Where(b.Empty(rf.rel))
		} else {
			b.JoinIn(rf.rel, rf.ids)
		}
	}
	for _, p := range cf.hooks {
		b.Add(p)
	}
	return b
}

func orderClause(entity *metadata.Entity, req *FilterRequest) string {
	if len(req.Order) == 0 {
		return "t.id"
	}
	o := req.Order[0]
	if o.Column < 0 || o.Column >= len(req.Columns) {
		return "t.id"
	}
	f := entity.GetField(req.Columns[o.Column].Data)
	if f == nil || f.Private {
		return "t.id"
	}
	dir := "ASC"
	if strings.EqualFold(o.Dir, "desc") {
		dir = "DESC"
	}
	if f.Name == metadata.FieldID {
		return "t.id " + dir
	}
	return fmt.Sprintf("t.%s %s, t.id", f.Name, dir)
}

func (e *Engine) selectRows(ctx context.Context, q store.Querier, entity *metadata.Entity, qr QueryResult) ([]map[string]any, error) {
	rows, err := store.QueryRows(ctx, q, qr.SQL, qr.Params...)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", entity.Name, err)
	}
	decodeRows(entity, rows)
	return rows, nil
}

// Filter runs a table query. Scope is applied before every count. An
// invalid criterion fails the whole call.
func (e *Engine) Filter(ctx context.Context, user *metadata.UserContext, entityName string, req *FilterRequest) (*FilterResult, error) {
	entity, err := e.entity(entityName)
	if err != nil {
		return nil, err
	}
	if err := e.Authorize(user, entity.Name, "read"); err != nil {
		return nil, err
	}
	cf, err := e.compileFilter(user, entity, req.Criteria)
	if err != nil {
		return nil, err
	}
	db := e.store.DB

	switch req.Bulk {
	case BulkIDs:
		qr := e.builder(cf, true).Select("t.id", "t.id", 0, 0)
		ids, err := store.QueryIDs(ctx, db, qr.SQL, qr.Params...)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", entity.Name, err)
		}
		return &FilterResult{Draw: req.Draw, IDs: ids}, nil
	case BulkObjects:
		rows, err := e.selectRows(ctx, db, entity, e.builder(cf, true).Select("t.*", "t.id", 0, 0))
		if err != nil {
			return nil, err
		}
		objects := make([]map[string]any, len(rows))
		for i, row := range rows {
			objects[i] = serialize(entity, row)
		}
		return &FilterResult{Draw: req.Draw, Objects: objects}, nil
	}

	total := e.builder(cf, false).Count()
	recordsTotal, err := store.Count(ctx, db, total.SQL, total.Params...)
	if err != nil {
		return nil, err
	}
	filtered := e.builder(cf, true).Count()
	recordsFiltered, err := store.Count(ctx, db, filtered.SQL, filtered.Params...)
	if err != nil {
		return nil, err
	}

	order := orderClause(entity, req)
	rows, err := e.selectRows(ctx, db, entity, e.builder(cf, true).Select("t.*", order, req.Length, req.Start))
	if err != nil {
		return nil, err
	}
	result := &FilterResult{
		Draw:            req.Draw,
		RecordsTotal:    recordsTotal,
		RecordsFiltered: recordsFiltered,
		Data:            make([]map[string]any, len(rows)),
	}
	for i, row := range rows {
		result.Data[i] = serialize(entity, row)
	}

	if req.Export || req.Clipboard {
		all, err := e.selectRows(ctx, db, entity, e.builder(cf, true).Select("t.*", order, 0, 0))
		if err != nil {
			return nil, err
		}
		if req.Clipboard {
			names := make([]string, len(all))
			for i, row := range all {
				names[i] = fmt.Sprint(row[metadata.FieldName])
			}
			result.FullResult = strings.Join(names, ",")
		} else {
			full := make([]map[string]any, len(all))
			for i, row := range all {
				full[i] = serialize(entity, row)
			}
			result.FullResult = full
		}
	}
	return result, nil
}

// matchingIDs returns the ids of entity matching criteria, read through q.
func (e *Engine) matchingIDs(ctx context.Context, q store.Querier, user *metadata.UserContext, entity *metadata.Entity, criteria Criteria) ([]int64, error) {
	cf, err := e.compileFilter(user, entity, criteria)
	if err != nil {
		return nil, err
	}
	qr := e.builder(cf, true).Select("t.id", "t.id", 0, 0)
	return store.QueryIDs(ctx, q, qr.SQL, qr.Params...)
}

type MultiselectRequest struct {
	Term string `json:"term"`
	Page int    `json:"page"`
}

type MultiselectItem struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

type MultiselectResult struct {
	Items      []MultiselectItem `json:"items"`
	TotalCount int64             `json:"total_count"`
}

// Multiselect serves the paged name search used by relationship pickers.
func (e *Engine) Multiselect(ctx context.Context, user *metadata.UserContext, entityName string, req MultiselectRequest) (*MultiselectResult, error) {
	entity, err := e.entity(entityName)
	if err != nil {
		return nil, err
	}
	if err := e.Authorize(user, entity.Name, "read"); err != nil {
		return nil, err
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	criteria := Criteria{}
	if req.Term != "" {
		criteria[metadata.FieldName] = req.Term
	}
	cf, err := e.compileFilter(user, entity, criteria)
	if err != nil {
		return nil, err
	}
	count := e.builder(cf, true).Count()
	total, err := store.Count(ctx, e.store.DB, count.SQL, count.Params...)
	if err != nil {
		return nil, err
	}
	qr := e.builder(cf, true).Select("t.id, t.name", "t.name, t.id", multiselectPageSize, (page-1)*multiselectPageSize)
	rows, err := store.QueryRows(ctx, e.store.DB, qr.SQL, qr.Params...)
	if err != nil {
		return nil, fmt.Errorf("multiselect %s: %w", entity.Name, err)
	}
	result := &MultiselectResult{Items: make([]MultiselectItem, 0, len(rows)), TotalCount: total}
	for _, row := range rows {
		id, _ := toInt64(row["id"])
		name, _ := row["name"].(string)
		result.Items = append(result.Items, MultiselectItem{ID: id, Text: name})
	}
	return result, nil
}
