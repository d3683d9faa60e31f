package engine

import (
	"context"
	"testing"
)

func TestRecomputeDerived(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	w1 := idOf(t, mustUpdate(t, e, "workflow", map[string]any{"name": "w1"}))
	w2 := idOf(t, mustUpdate(t, e, "workflow", map[string]any{"name": "w2"}))

	s1 := mustUpdate(t, e, "service", map[string]any{"name": "s1", "workflows": []int64{w1, w2}})
	if s1["workflow_count"] != int64(2) {
		t.Fatalf("expected workflow_count 2, got %v", s1["workflow_count"])
	}
	s2 := mustUpdate(t, e, "service", map[string]any{"name": "s2"})
	if s2["workflow_count"] != int64(0) {
		t.Fatalf("expected workflow_count 0, got %v", s2["workflow_count"])
	}

	edge := mustUpdate(t, e, "workflow_edge", map[string]any{
		"name":        "e1",
		"subtype":     "failure",
		"source":      idOf(t, s1),
		"destination": idOf(t, s2),
		"workflow":    w1,
	})
	if edge["label"] != "failure: s1 -> s2" {
		t.Fatalf("unexpected label %q", edge["label"])
	}

	bare := mustUpdate(t, e, "workflow_edge", map[string]any{"name": "e2"})
	if bare["label"] != "success: ? -> ?" {
		t.Fatalf("unexpected label %q", bare["label"])
	}

	// Renaming a service refreshes the edges that name it.
	mustUpdate(t, e, "service", map[string]any{"id": idOf(t, s2), "name": "s2-renamed"})
	row, err := e.Get(ctx, nil, "workflow_edge", idOf(t, edge))
	if err != nil {
		t.Fatalf("get edge: %v", err)
	}
	if row["label"] != "failure: s1 -> s2-renamed" {
		t.Fatalf("unexpected label after rename %q", row["label"])
	}

	// Writing the workflow side refreshes the services it relates to.
	mustUpdate(t, e, "workflow", map[string]any{"id": w2, "services": []int64{}})
	row, err = e.Get(ctx, nil, "service", idOf(t, s1))
	if err != nil {
		t.Fatalf("get service: %v", err)
	}
	if row["workflow_count"] != int64(1) {
		t.Fatalf("expected workflow_count 1 after detaching w2, got %v", row["workflow_count"])
	}
}

func TestBulkMutations_RefreshComputedFields(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	w := idOf(t, mustUpdate(t, e, "workflow", map[string]any{"name": "w"}))
	s1 := idOf(t, mustUpdate(t, e, "service", map[string]any{"name": "s1"}))
	s2 := idOf(t, mustUpdate(t, e, "service", map[string]any{"name": "s2"}))

	workflowCount := func(id int64) any {
		t.Helper()
		row, err := e.Get(ctx, nil, "service", id)
		if err != nil {
			t.Fatalf("get service %d: %v", id, err)
		}
		return row["workflow_count"]
	}

	if _, err := e.AddInBulk(ctx, nil, BulkAddRequest{RelationType: "workflow", RelationID: w, Property: "services", Names: "s1,s2"}); err != nil {
		t.Fatalf("add in bulk: %v", err)
	}
	if got := workflowCount(s1); got != int64(1) {
		t.Fatalf("expected workflow_count 1 after add, got %v", got)
	}

	if _, err := e.RemoveInstance(ctx, nil, "workflow", w, "service", s1, "services"); err != nil {
		t.Fatalf("remove instance: %v", err)
	}
	if got := workflowCount(s1); got != int64(0) {
		t.Fatalf("expected workflow_count 0 after remove, got %v", got)
	}

	if _, err := e.RemoveInBulk(ctx, nil, "service", BulkRemoveRequest{RelationType: "workflow", RelationID: w, Property: "services"}); err != nil {
		t.Fatalf("remove in bulk: %v", err)
	}
	if got := workflowCount(s2); got != int64(0) {
		t.Fatalf("expected workflow_count 0 after bulk removal, got %v", got)
	}

	if _, err := e.AddInBulk(ctx, nil, BulkAddRequest{RelationType: "workflow", RelationID: w, Property: "services", Instances: []int64{s2}}); err != nil {
		t.Fatalf("add again: %v", err)
	}
	if err := e.Delete(ctx, nil, "workflow", w); err != nil {
		t.Fatalf("delete workflow: %v", err)
	}
	if got := workflowCount(s2); got != int64(0) {
		t.Fatalf("expected workflow_count 0 after deleting the workflow, got %v", got)
	}
}
