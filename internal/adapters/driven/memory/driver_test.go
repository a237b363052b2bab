package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	d := New()
	err := d.InitSchema(context.Background(), []driven.Table{
		{
			Name:     "user",
			IDColumn: "id",
			Columns: []driven.Column{
				{Name: "id", Type: domain.FieldString, Unique: true},
				{Name: "name", Type: domain.FieldString},
				{Name: "email", Type: domain.FieldString, Unique: true},
			},
		},
		{
			Name:     "session",
			IDColumn: "id",
			Columns: []driven.Column{
				{Name: "id", Type: domain.FieldString, Unique: true},
				{Name: "userId", Type: domain.FieldReference},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func eq(field string, value any) *driven.Predicate {
	return &driven.Predicate{And: []driven.Condition{{Field: field, Op: domain.OpEq, Value: value}}}
}

func TestInsertAndSelect(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	stored, err := d.Insert(ctx, "user", driven.Row{"id": "u1", "name": "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	if stored["id"] != "u1" {
		t.Fatalf("stored id = %v", stored["id"])
	}
	if _, ok := stored["__pk"]; ok {
		t.Fatal("surrogate key leaked out of the driver")
	}

	row, err := d.SelectOne(ctx, driven.Query{Model: "user", Where: eq("id", "u1")})
	if err != nil {
		t.Fatal(err)
	}
	if row["name"] != "Ada" {
		t.Fatalf("name = %v", row["name"])
	}
}

func TestInsert_DuplicateID(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	if _, err := d.Insert(ctx, "user", driven.Row{"id": "u1", "name": "Ada"}); err != nil {
		t.Fatal(err)
	}
	_, err := d.Insert(ctx, "user", driven.Row{"id": "u1", "name": "Grace"})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestInsert_WithoutID(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	// Records created with identifier generation disabled carry no id at all.
	if _, err := d.Insert(ctx, "user", driven.Row{"name": "Ada"}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Insert(ctx, "user", driven.Row{"name": "Grace"}); err != nil {
		t.Fatal(err)
	}
	n, err := d.Count(ctx, "user", nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestSelectMany_SortLimitOffset(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()
	for _, row := range []driven.Row{
		{"id": "u1", "name": "Carol"},
		{"id": "u2", "name": "Ada"},
		{"id": "u3", "name": "Bob"},
	} {
		if _, err := d.Insert(ctx, "user", row); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := d.SelectMany(ctx, driven.Query{
		Model:   "user",
		OrderBy: []driven.Order{{Field: "name"}},
		Limit:   2,
		Offset:  1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0]["name"] != "Bob" || rows[1]["name"] != "Carol" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	d := newTestDriver(t)
	_, err := d.Update(context.Background(), "user", eq("id", "missing"), driven.Row{"name": "x"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateManyAndDeleteMany(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()
	for _, row := range []driven.Row{
		{"id": "u1", "name": "Ada"},
		{"id": "u2", "name": "Ada"},
		{"id": "u3", "name": "Grace"},
	} {
		if _, err := d.Insert(ctx, "user", row); err != nil {
			t.Fatal(err)
		}
	}

	n, err := d.UpdateMany(ctx, "user", eq("name", "Ada"), driven.Row{"name": "Lovelace"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("updated = %d, want 2", n)
	}

	n, err = d.DeleteMany(ctx, "user", eq("name", "Lovelace"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("deleted = %d, want 2", n)
	}
	remaining, err := d.Count(ctx, "user", nil)
	if err != nil {
		t.Fatal(err)
	}
	if remaining != 1 {
		t.Fatalf("remaining = %d, want 1", remaining)
	}
}

func TestSelectMany_Joins(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()
	mustInsert := func(model string, row driven.Row) {
		t.Helper()
		if _, err := d.Insert(ctx, model, row); err != nil {
			t.Fatal(err)
		}
	}
	mustInsert("user", driven.Row{"id": "u1", "name": "Ada"})
	mustInsert("user", driven.Row{"id": "u2", "name": "Grace"})
	mustInsert("session", driven.Row{"id": "s1", "userId": "u1"})
	mustInsert("session", driven.Row{"id": "s2", "userId": "u1"})

	rows, err := d.SelectMany(ctx, driven.Query{
		Model: "user",
		Joins: []driven.Join{{
			Model:     "session",
			Relation:  domain.JoinLeft,
			BaseField: "id",
			JoinField: "userId",
			Columns: []driven.JoinColumn{
				{Name: "id", Alias: "joined_session_id"},
			},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	// u1 spans two flat rows, u2 survives the left join with no alias values.
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
}

func TestRunInTransaction_Rollback(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := d.RunInTransaction(ctx, func(tx driven.Driver) error {
		if _, err := tx.Insert(ctx, "user", driven.Row{"id": "u1", "name": "Ada"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	n, err := d.Count(ctx, "user", nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("aborted insert persisted, count = %d", n)
	}
}

func TestRunInTransaction_Commit(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	err := d.RunInTransaction(ctx, func(tx driven.Driver) error {
		_, err := tx.Insert(ctx, "user", driven.Row{"id": "u1", "name": "Ada"})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.SelectOne(ctx, driven.Query{Model: "user", Where: eq("id", "u1")}); err != nil {
		t.Fatalf("committed insert not visible: %v", err)
	}
}
