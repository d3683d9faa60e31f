package metadata

import (
	"strings"
	"testing"
)

func loadSchema(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	if err := LoadFile("../../schema.yaml", reg); err != nil {
		t.Fatalf("load schema: %v", err)
	}
	return reg
}

func TestLoadFile_InjectsBuiltins(t *testing.T) {
	reg := loadSchema(t)
	device := reg.GetEntity("device")
	if device == nil {
		t.Fatal("device not registered")
	}
	names := device.FieldNames()
	if names[0] != FieldID || names[1] != FieldName {
		t.Fatalf("expected id and name first, got %v", names[:2])
	}
	if names[len(names)-1] != FieldLastModified {
		t.Fatalf("expected last_modified last, got %s", names[len(names)-1])
	}
}

func TestLoadFile_DeclarationOrder(t *testing.T) {
	reg := loadSchema(t)
	all := reg.AllEntities()
	if all[0].Name != "device" || all[1].Name != "link" {
		t.Fatalf("expected declaration order, got %s, %s", all[0].Name, all[1].Name)
	}
}

func TestRelationships_BothSides(t *testing.T) {
	reg := loadSchema(t)

	link := reg.GetEntity("link")
	src := link.Relationship("source")
	if src == nil || src.Kind != LocalKey || src.List || src.Column != "source_id" || src.Target != "device" {
		t.Fatalf("unexpected link.source: %+v", src)
	}

	device := reg.GetEntity("device")
	back := device.Relationship("source_links")
	if back == nil || back.Kind != RemoteKey || !back.List || back.Column != "source_id" || back.Target != "link" {
		t.Fatalf("unexpected device.source_links: %+v", back)
	}

	pools := device.Relationship("pools")
	if pools == nil || pools.Kind != JoinRows || pools.Table != "pool_devices" {
		t.Fatalf("unexpected device.pools: %+v", pools)
	}
	if pools.SelfKey != "device_id" || pools.OtherKey != "pool_id" {
		t.Fatalf("expected device side keys device_id/pool_id, got %s/%s", pools.SelfKey, pools.OtherKey)
	}
}

func TestRelation_SelfReferentialDefaults(t *testing.T) {
	reg := NewRegistry()
	err := reg.Load(
		[]*Entity{{Name: "service", Table: "services"}},
		[]*Relation{{Source: "service", Property: "children", Target: "service", Inverse: "parents", Type: ManyToMany}},
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	children := reg.GetEntity("service").Relationship("children")
	if children.SelfKey != "source_id" || children.OtherKey != "target_id" {
		t.Fatalf("expected source_id/target_id, got %s/%s", children.SelfKey, children.OtherKey)
	}
	parents := reg.GetEntity("service").Relationship("parents")
	if parents.SelfKey != "target_id" || parents.OtherKey != "source_id" {
		t.Fatalf("expected reversed keys on inverse, got %s/%s", parents.SelfKey, parents.OtherKey)
	}
}

func TestCapabilities(t *testing.T) {
	reg := loadSchema(t)

	principals := reg.Principals()
	if len(principals) != 1 || principals[0].Name != "user" {
		t.Fatalf("expected user as sole principal, got %v", principals)
	}

	over := reg.GroupingsOver("device")
	if len(over) != 1 || over[0].Name != "pool" {
		t.Fatalf("expected pool to group devices, got %v", over)
	}
	if len(reg.GroupingsOver("service")) != 0 {
		t.Fatal("nothing groups services")
	}

	creds := reg.GetEntity("credential").PrivateFields()
	if strings.Join(creds, ",") != "password,private_key" {
		t.Fatalf("unexpected private fields %v", creds)
	}
}

func TestIsDynamic(t *testing.T) {
	reg := loadSchema(t)
	pool := reg.GetEntity("pool")
	if !pool.IsDynamic(map[string]any{"manually_defined": false}) {
		t.Fatal("expected computed pool to be dynamic")
	}
	if pool.IsDynamic(map[string]any{"manually_defined": true}) {
		t.Fatal("expected manual pool not to be dynamic")
	}
	if reg.GetEntity("device").IsDynamic(map[string]any{}) {
		t.Fatal("devices are never dynamic")
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name      string
		entities  []*Entity
		relations []*Relation
		want      string
	}{
		{
			name:     "unknown field type",
			entities: []*Entity{{Name: "a", Fields: []Field{{Name: "x", Type: "blob"}}}},
			want:     "unknown type",
		},
		{
			name:      "unknown relation target",
			entities:  []*Entity{{Name: "a"}},
			relations: []*Relation{{Source: "a", Property: "b", Target: "missing", Inverse: "a"}},
			want:      "unknown entity",
		},
		{
			name:      "relationship collides with field",
			entities:  []*Entity{{Name: "a", Fields: []Field{{Name: "b", Type: TypeString}}}, {Name: "c"}},
			relations: []*Relation{{Source: "a", Property: "b", Target: "c", Inverse: "as"}},
			want:      "collides",
		},
		{
			name:     "grouping member not a relationship",
			entities: []*Entity{{Name: "a", Grouping: &Grouping{Members: []GroupingMember{{Relationship: "nope"}}}}},
			want:     "grouping member",
		},
		{
			name:     "duplicate entity",
			entities: []*Entity{{Name: "a"}, {Name: "a"}},
			want:     "duplicate entity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Load(tt.entities, tt.relations)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestUserContext_Can(t *testing.T) {
	var system *UserContext
	if !system.Can("device", "edit") {
		t.Fatal("nil principal is the system and may do anything")
	}

	u := &UserContext{Permissions: []string{"device:read", "pool:*", "*:export"}}
	cases := map[string]bool{
		"device:read":    true,
		"device:edit":    false,
		"pool:edit":      true,
		"service:export": true,
		"service:read":   false,
	}
	for token, want := range cases {
		parts := strings.SplitN(token, ":", 2)
		if got := u.Can(parts[0], parts[1]); got != want {
			t.Fatalf("%s: expected %v, got %v", token, want, got)
		}
	}
}
