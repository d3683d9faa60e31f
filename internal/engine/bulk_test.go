package engine

import (
	"context"
	"fmt"
	"testing"
)

func TestBulkEdit_OnlyFlaggedProperties(t *testing.T) {
	e := newTestEngine(t)
	for i := 1; i <= 9; i++ {
		mustUpdate(t, e, "link", map[string]any{"name": fmt.Sprintf("l%d", i), "color": "red", "model": "M"})
	}
	ctx := context.Background()

	n, err := e.BulkEdit(ctx, nil, "link", map[string]any{
		"id":              "3-5-9",
		"color":           "blue",
		"bulk-edit-color": true,
		"model":           "L",
	})
	if err != nil {
		t.Fatalf("bulk edit: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 edited, got %d", n)
	}
	for id := int64(1); id <= 9; id++ {
		row, err := e.Get(ctx, nil, "link", id)
		if err != nil {
			t.Fatalf("get link %d: %v", id, err)
		}
		want := "red"
		if id == 3 || id == 5 || id == 9 {
			want = "blue"
		}
		if row["color"] != want {
			t.Fatalf("link %d: expected color %s, got %v", id, want, row["color"])
		}
		if row["model"] != "M" {
			t.Fatalf("link %d: unflagged model must be untouched, got %v", id, row["model"])
		}
	}
}

func TestAddInBulk(t *testing.T) {
	e := newTestEngine(t)
	ids := seedDevices(t, e, "r1", "r2", "r3")
	pool := idOf(t, mustUpdate(t, e, "pool", map[string]any{"name": "manual", "manually_defined": true}))
	ctx := context.Background()

	res, err := e.AddInBulk(ctx, nil, BulkAddRequest{
		RelationType: "pool", RelationID: pool, Property: "devices",
		Instances: []int64{ids[0]}, Names: "r2, r3",
	})
	if err != nil {
		t.Fatalf("add in bulk: %v", err)
	}
	if res.Number != 3 {
		t.Fatalf("expected 3 added, got %d", res.Number)
	}
	if res.Target["name"] != "manual" || res.Target["last_modified"] == nil {
		t.Fatalf("unexpected target summary %+v", res.Target)
	}

	res, err = e.AddInBulk(ctx, nil, BulkAddRequest{RelationType: "pool", RelationID: pool, Property: "devices", Names: "r1"})
	if err != nil {
		t.Fatalf("add again: %v", err)
	}
	if res.Number != 0 {
		t.Fatalf("already related instances must not be counted, got %d", res.Number)
	}

	_, err = e.AddInBulk(ctx, nil, BulkAddRequest{RelationType: "pool", RelationID: pool, Property: "devices", Names: "ghost"})
	appErr := expectAppError(t, err, "NOT_FOUND")
	if appErr.Message != "Device 'ghost' does not exist." {
		t.Fatalf("unexpected message %s", appErr.Message)
	}
	if got := relatedNamesOf(t, e, "pool", pool, "devices"); len(got) != 3 {
		t.Fatalf("expected 3 members, got %v", got)
	}
}

func TestAddInBulk_DynamicGroupingGuard(t *testing.T) {
	e := newTestEngine(t)
	ids := seedDevices(t, e, "r1", "sw1")
	pool := idOf(t, mustUpdate(t, e, "pool", map[string]any{"name": "routers", "device_name": "r"}))
	if got := relatedNamesOf(t, e, "pool", pool, "devices"); len(got) != 1 || got[0] != "r1" {
		t.Fatalf("expected computed members [r1], got %v", got)
	}

	_, err := e.AddInBulk(context.Background(), nil, BulkAddRequest{
		RelationType: "pool", RelationID: pool, Property: "devices", Instances: []int64{ids[1]},
	})
	appErr := expectAppError(t, err, "DYNAMIC_GROUPING")
	if appErr.Message != "Adding objects to a dynamic pool is not allowed." {
		t.Fatalf("unexpected message %s", appErr.Message)
	}
	if got := relatedNamesOf(t, e, "pool", pool, "devices"); len(got) != 1 || got[0] != "r1" {
		t.Fatalf("guarded add must leave membership unchanged, got %v", got)
	}
}

func TestRemoveInBulk(t *testing.T) {
	e := newTestEngine(t)
	ids := seedDevices(t, e, "r1", "r2", "r3")
	pool := idOf(t, mustUpdate(t, e, "pool", map[string]any{"name": "manual", "manually_defined": true, "devices": ids}))
	other := idOf(t, mustUpdate(t, e, "pool", map[string]any{"name": "other", "manually_defined": true, "devices": ids}))
	ctx := context.Background()

	res, err := e.RemoveInBulk(ctx, nil, "device", BulkRemoveRequest{
		RelationType: "pool", RelationID: pool, Property: "devices",
		Criteria: Criteria{"name": "r1", "name_filter": "equality"},
	})
	if err != nil {
		t.Fatalf("remove in bulk: %v", err)
	}
	if res.Number != 1 {
		t.Fatalf("expected 1 removed, got %d", res.Number)
	}
	if got := relatedNamesOf(t, e, "pool", pool, "devices"); len(got) != 2 || got[0] != "r2" {
		t.Fatalf("unexpected members %v", got)
	}
	if got := relatedNamesOf(t, e, "pool", other, "devices"); len(got) != 3 {
		t.Fatalf("other pool must be untouched, got %v", got)
	}

	dynamic := idOf(t, mustUpdate(t, e, "pool", map[string]any{"name": "dynamic"}))
	_, err = e.RemoveInBulk(ctx, nil, "device", BulkRemoveRequest{RelationType: "pool", RelationID: dynamic, Property: "devices"})
	appErr := expectAppError(t, err, "DYNAMIC_GROUPING")
	if appErr.Message != "Removing objects from a dynamic pool is not allowed." {
		t.Fatalf("unexpected message %s", appErr.Message)
	}
}

func TestBulkDelete(t *testing.T) {
	e := newTestEngine(t)
	ids := seedDevices(t, e, "r1", "r2", "sw1")
	pool := idOf(t, mustUpdate(t, e, "pool", map[string]any{"name": "manual", "manually_defined": true, "devices": ids}))
	ctx := context.Background()

	n, err := e.BulkDelete(ctx, nil, "device", &FilterRequest{Length: 1, Criteria: Criteria{"name": "r"}})
	if err != nil {
		t.Fatalf("bulk delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
	res := filterDevices(t, e, nil)
	if res.RecordsTotal != 1 || res.Data[0]["name"] != "sw1" {
		t.Fatalf("unexpected remaining devices %+v", res.Data)
	}
	if got := relatedNamesOf(t, e, "pool", pool, "devices"); len(got) != 1 || got[0] != "sw1" {
		t.Fatalf("deleted devices must be detached, got %v", got)
	}
}

func TestBulkMutations_PropagateAccess(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	role := idOf(t, mustUpdate(t, e, "role", map[string]any{"name": "operator", "permissions": []any{"device:read", "device:edit"}}))
	group := idOf(t, mustUpdate(t, e, "group", map[string]any{"name": "east", "permissions": []any{"link:read"}}))
	user := idOf(t, mustUpdate(t, e, "user", map[string]any{"name": "bob"}))

	access := func() []string {
		t.Helper()
		row, err := e.Get(ctx, nil, "user", user)
		if err != nil {
			t.Fatalf("get user: %v", err)
		}
		return stringList(row["access"])
	}

	if _, err := e.AddInBulk(ctx, nil, BulkAddRequest{RelationType: "role", RelationID: role, Property: "users", Names: "bob"}); err != nil {
		t.Fatalf("add user to role: %v", err)
	}
	if got := access(); len(got) != 2 || got[0] != "device:edit" || got[1] != "device:read" {
		t.Fatalf("unexpected access after role add %v", got)
	}

	if _, err := e.AddInBulk(ctx, nil, BulkAddRequest{RelationType: "group", RelationID: group, Property: "users", Instances: []int64{user}}); err != nil {
		t.Fatalf("add user to group: %v", err)
	}
	if got := access(); len(got) != 3 {
		t.Fatalf("unexpected access after group add %v", got)
	}

	if _, err := e.RemoveInstance(ctx, nil, "role", role, "user", user, "users"); err != nil {
		t.Fatalf("remove instance: %v", err)
	}
	if got := access(); len(got) != 1 || got[0] != "link:read" {
		t.Fatalf("unexpected access after role removal %v", got)
	}

	// Editing the group's permissions reaches its members.
	mustUpdate(t, e, "group", map[string]any{"id": group, "permissions": []any{"link:read", "link:edit"}})
	if got := access(); len(got) != 2 {
		t.Fatalf("unexpected access after group edit %v", got)
	}

	principal, err := e.LoadPrincipal(ctx, "bob")
	if err != nil {
		t.Fatalf("load principal: %v", err)
	}
	if !principal.Can("link", "edit") || principal.Can("device", "read") {
		t.Fatalf("unexpected principal permissions %v", principal.Permissions)
	}
	if len(principal.Related["group"]) != 1 || principal.Related["group"][0] != group {
		t.Fatalf("unexpected related groups %v", principal.Related)
	}
}

func TestLoadPrincipal_Unknown(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.LoadPrincipal(context.Background(), "nobody")
	expectAppError(t, err, "UNAUTHORIZED")
}
