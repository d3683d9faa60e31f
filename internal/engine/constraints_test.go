package engine

import (
	"testing"

	"nms-backend/internal/metadata"
	"nms-backend/internal/store"
)

func testEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:  "device",
		Table: "devices",
		Fields: []metadata.Field{
			{Name: "id", Type: metadata.TypeInteger},
			{Name: "name", Type: metadata.TypeString},
			{Name: "port", Type: metadata.TypeInteger},
			{Name: "in_maintenance", Type: metadata.TypeBoolean},
			{Name: "password", Type: metadata.TypeString, Private: true},
		},
	}
}

func TestBuildConstraints_Modes(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		mode     string
		value    any
		invert   bool
	}{
		{"default inclusion", Criteria{"name": "r"}, ModeInclusion, "r", false},
		{"equality", Criteria{"name": "r1", "name_filter": "equality"}, ModeEquality, "r1", false},
		{"regex", Criteria{"name": "^r[0-9]$", "name_filter": "regex"}, ModeRegex, "^r[0-9]$", false},
		{"inverted", Criteria{"name": "r1", "name_invert": true}, ModeInclusion, "r1", true},
		{"bool true", Criteria{"in_maintenance": BoolTrue}, ModeBoolean, true, false},
		{"bool false", Criteria{"in_maintenance": BoolFalse}, ModeBoolean, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs, err := BuildConstraints(testEntity(), tt.criteria)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(cs) != 1 {
				t.Fatalf("expected 1 constraint, got %d", len(cs))
			}
			c := cs[0]
			if c.Mode != tt.mode || c.Value != tt.value || c.Invert != tt.invert {
				t.Fatalf("got %+v, want mode=%s value=%v invert=%v", c, tt.mode, tt.value, tt.invert)
			}
		})
	}
}

func TestBuildConstraints_SkipsEmptyAndPrivate(t *testing.T) {
	cs, err := BuildConstraints(testEntity(), Criteria{
		"name":     "",
		"port":     nil,
		"password": "secret",
		"unknown":  "x",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cs) != 0 {
		t.Fatalf("expected no constraints, got %+v", cs)
	}
}

func TestBuildConstraints_StoredModifierColumns(t *testing.T) {
	pool := &metadata.Entity{
		Name:  "pool",
		Table: "pools",
		Fields: []metadata.Field{
			{Name: "device_name", Type: metadata.TypeString},
			{Name: "device_name_filter", Type: metadata.TypeEnum},
			{Name: "device_name_invert", Type: metadata.TypeBoolean},
		},
	}
	cs, err := BuildConstraints(pool, Criteria{
		"device_name":        "^rout",
		"device_name_filter": "regex",
		"device_name_invert": true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cs) != 1 {
		t.Fatalf("expected 1 constraint, got %+v", cs)
	}
	if cs[0].Property != "device_name" || cs[0].Mode != ModeRegex || !cs[0].Invert {
		t.Fatalf("unexpected constraint %+v", cs[0])
	}
}

func TestBuildConstraints_InvalidRegexFailsWholeFilter(t *testing.T) {
	_, err := BuildConstraints(testEntity(), Criteria{
		"name":        "r",
		"port":        "(22",
		"port_filter": "regex",
	})
	appErr := expectAppError(t, err, "INVALID_FILTER")
	if appErr.Message != "Invalid regular expression as search parameter." {
		t.Fatalf("unexpected message: %s", appErr.Message)
	}
}

func TestConstraintSQL(t *testing.T) {
	reg := metadata.NewRegistry()
	entity := testEntity()
	b := &SQLBuilder{
		dialect:  &store.PostgresDialect{},
		registry: reg,
		entity:   entity,
		pb:       (&store.PostgresDialect{}).NewParamBuilder(),
	}
	cs, err := BuildConstraints(entity, Criteria{
		"name":        "r_1",
		"name_invert": "on",
		"port":        "22",
		"port_filter": "equality",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, c := range cs {
		b.Add(c)
	}
	qr := b.Count()
	want := "SELECT COUNT(*) FROM devices t WHERE NOT (t.name ILIKE $1 ESCAPE '!') AND CAST(t.port AS TEXT) = $2"
	if qr.SQL != want {
		t.Fatalf("got  %s\nwant %s", qr.SQL, want)
	}
	if qr.Params[0] != "%r!_1%" || qr.Params[1] != "22" {
		t.Fatalf("unexpected params %v", qr.Params)
	}
}

func TestBuildRelationFilters(t *testing.T) {
	entity := testEntity()
	entity.Relationships = []*metadata.Relationship{
		{Name: "pools", Entity: "device", Target: "pool", List: true, Kind: metadata.JoinRows, Table: "pool_devices", SelfKey: "device_id", OtherKey: "pool_id"},
		{Name: "groups", Entity: "device", Target: "group", List: true, Kind: metadata.JoinRows, Table: "device_groups", SelfKey: "device_id", OtherKey: "group_id"},
		{Name: "source_links", Entity: "device", Target: "link", List: true, Kind: metadata.RemoteKey, Column: "source_id"},
	}
	filters, err := buildRelationFilters(entity, Criteria{
		"pools":               []any{float64(1), float64(2)},
		"groups_filter":       "empty",
		"source_links":        []any{},
		"source_links_filter": "union",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(filters) != 2 {
		t.Fatalf("expected 2 relation filters, got %d", len(filters))
	}
	if filters[0].rel.Name != "pools" || len(filters[0].ids) != 2 {
		t.Fatalf("unexpected pools filter %+v", filters[0])
	}
	if filters[1].rel.Name != "groups" || !filters[1].empty {
		t.Fatalf("unexpected groups filter %+v", filters[1])
	}
}
