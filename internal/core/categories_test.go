package core

import (
	"errors"
	"testing"
)

func docWithCategories(names ...string) *FamilyDocument {
	d := &FamilyDocument{}
	for _, n := range names {
		d.AddCategory(n)
	}
	return d
}

func TestAddCategory(t *testing.T) {
	d := &FamilyDocument{}
	c := d.AddCategory("Mercado")
	if c.ID != HashID("cat:Mercado") {
		t.Errorf("id = %q, want derived from name", c.ID)
	}
	if c.Color != ColorForID(c.ID) {
		t.Errorf("color = %q, want derived from id", c.Color)
	}
	if c.Order != 0 {
		t.Errorf("first order = %d, want 0", c.Order)
	}

	second := d.AddCategory("Lazer")
	if second.Order != 1 {
		t.Errorf("second order = %d, want 1", second.Order)
	}

	// Same name again is a no-op returning the existing record.
	dup := d.AddCategory("Mercado")
	if len(d.Categories) != 2 {
		t.Fatalf("duplicate add grew the list: %d", len(d.Categories))
	}
	if dup.ID != c.ID {
		t.Errorf("duplicate add returned %q, want existing %q", dup.ID, c.ID)
	}

	// Case-sensitive names are distinct categories.
	d.AddCategory("mercado")
	if len(d.Categories) != 3 {
		t.Errorf("case variant should add, got %d categories", len(d.Categories))
	}
}

func TestRenameRecolorCategory(t *testing.T) {
	d := docWithCategories("Mercado")
	id := d.Categories[0].ID

	if err := d.RenameCategory(id, "Supermercado"); err != nil {
		t.Fatalf("RenameCategory() error = %v", err)
	}
	if d.Categories[0].Name != "Supermercado" || d.Categories[0].ID != id {
		t.Errorf("rename must keep id: %+v", d.Categories[0])
	}

	if err := d.RecolorCategory(id, "hsl(10 70% 48%)"); err != nil {
		t.Fatalf("RecolorCategory() error = %v", err)
	}
	if d.Categories[0].Color != "hsl(10 70% 48%)" {
		t.Errorf("color = %q", d.Categories[0].Color)
	}

	if err := d.RenameCategory("missing", "x"); !errors.Is(err, ErrCategoryNotFound) {
		t.Errorf("rename missing = %v, want ErrCategoryNotFound", err)
	}
}

func TestSetCategoryParent(t *testing.T) {
	d := docWithCategories("Casa", "Mercado", "Feira")
	casa, mercado, feira := d.Categories[0].ID, d.Categories[1].ID, d.Categories[2].ID

	if err := d.SetCategoryParent(mercado, casa); err != nil {
		t.Fatalf("link error = %v", err)
	}
	if err := d.SetCategoryParent(feira, mercado); err != nil {
		t.Fatalf("link error = %v", err)
	}

	// Self link and any ancestor-chain cycle are rejected.
	if err := d.SetCategoryParent(casa, casa); !errors.Is(err, ErrCategoryCycle) {
		t.Errorf("self link = %v, want ErrCategoryCycle", err)
	}
	if err := d.SetCategoryParent(casa, feira); !errors.Is(err, ErrCategoryCycle) {
		t.Errorf("grandchild link = %v, want ErrCategoryCycle", err)
	}
	// The document is unchanged after a rejected link.
	if d.Categories[0].ParentID != "" {
		t.Errorf("rejected link mutated parent: %q", d.Categories[0].ParentID)
	}

	if err := d.SetCategoryParent(mercado, ""); err != nil {
		t.Fatalf("unlink error = %v", err)
	}
	if d.Categories[1].ParentID != "" {
		t.Errorf("unlink left parent %q", d.Categories[1].ParentID)
	}

	if err := d.SetCategoryParent(mercado, "ghost"); !errors.Is(err, ErrCategoryNotFound) {
		t.Errorf("missing parent = %v, want ErrCategoryNotFound", err)
	}
}

func TestReorderCategory(t *testing.T) {
	d := docWithCategories("A", "B", "C")
	a, b := d.Categories[0].ID, d.Categories[1].ID

	if err := d.ReorderCategory(b, MoveUp); err != nil {
		t.Fatalf("ReorderCategory() error = %v", err)
	}
	sorted := d.SortedCategories()
	if sorted[0].ID != b || sorted[1].ID != a {
		t.Errorf("after move up: %q, %q", sorted[0].Name, sorted[1].Name)
	}

	// Moving past the edge is a no-op.
	if err := d.ReorderCategory(b, MoveUp); err != nil {
		t.Fatalf("edge move error = %v", err)
	}
	if got := d.SortedCategories()[0].ID; got != b {
		t.Errorf("edge move changed order, first = %q", got)
	}

	if err := d.ReorderCategory("ghost", MoveDown); !errors.Is(err, ErrCategoryNotFound) {
		t.Errorf("reorder missing = %v, want ErrCategoryNotFound", err)
	}
}

func TestRemoveCategoryScopes(t *testing.T) {
	build := func() *FamilyDocument {
		d := docWithCategories("Mercado", "Lazer")
		mercado, lazer := d.Categories[0].ID, d.Categories[1].ID
		d.Projects = []Project{{ID: "p1", Status: StatusOpen}, {ID: "p2", Status: StatusOpen}}
		d.Expenses = []Expense{
			{ID: "e1", Who: "Ana", Category: mercado, Amount: 10, Date: "2025-01-01", ProjectID: "p1"},
			{ID: "e2", Who: "Ana", Category: mercado, Amount: 20, Date: "2025-01-02", ProjectID: "p2"},
			{ID: "e3", Who: "Ana", Category: lazer, Amount: 30, Date: "2025-01-03", ProjectID: "p1"},
		}
		return d
	}

	t.Run("this project only", func(t *testing.T) {
		d := build()
		mercado := d.Categories[0].ID
		if err := d.RemoveCategory(mercado, RemoveThisProjectOnly, "p1"); err != nil {
			t.Fatalf("RemoveCategory() error = %v", err)
		}
		// Category is gone globally either way.
		if d.category(mercado) != nil {
			t.Error("category still present after removal")
		}
		ids := expenseIDs(d)
		if _, ok := ids["e1"]; ok {
			t.Error("e1 (p1, Mercado) should be purged")
		}
		if _, ok := ids["e2"]; !ok {
			t.Error("e2 (p2, Mercado) should survive project-scoped purge")
		}
		if _, ok := ids["e3"]; !ok {
			t.Error("e3 (p1, Lazer) should survive")
		}
	})

	t.Run("all projects", func(t *testing.T) {
		d := build()
		mercado := d.Categories[0].ID
		if err := d.RemoveCategory(mercado, RemoveAllProjects, "p1"); err != nil {
			t.Fatalf("RemoveCategory() error = %v", err)
		}
		ids := expenseIDs(d)
		if _, ok := ids["e1"]; ok {
			t.Error("e1 should be purged")
		}
		if _, ok := ids["e2"]; ok {
			t.Error("e2 should be purged across projects")
		}
		if _, ok := ids["e3"]; !ok {
			t.Error("e3 (other category) should survive")
		}
	})

	t.Run("child link cleared", func(t *testing.T) {
		d := build()
		mercado, lazer := d.Categories[0].ID, d.Categories[1].ID
		if err := d.SetCategoryParent(lazer, mercado); err != nil {
			t.Fatalf("link error = %v", err)
		}
		if err := d.RemoveCategory(mercado, RemoveAllProjects, ""); err != nil {
			t.Fatalf("RemoveCategory() error = %v", err)
		}
		if d.category(lazer).ParentID != "" {
			t.Errorf("orphaned child kept parent %q", d.category(lazer).ParentID)
		}
	})

	if err := build().RemoveCategory("ghost", RemoveAllProjects, ""); !errors.Is(err, ErrCategoryNotFound) {
		t.Errorf("remove missing = %v, want ErrCategoryNotFound", err)
	}
}

func expenseIDs(d *FamilyDocument) map[string]bool {
	out := make(map[string]bool, len(d.Expenses))
	for _, e := range d.Expenses {
		out[e.ID] = true
	}
	return out
}
