package core

import "sort"

// RemoveScope selects which expenses are purged when a category is deleted.
// The category itself is always removed globally; scope only widens or
// narrows the expense purge. Users rely on this asymmetry.
type RemoveScope string

const (
	RemoveThisProjectOnly RemoveScope = "thisProjectOnly"
	RemoveAllProjects     RemoveScope = "allProjects"
)

// Reorder directions for swapping a category with its display neighbor.
const (
	MoveUp   = -1
	MoveDown = 1
)

// AddCategory appends a category with a deterministic id and derived color.
// Adding a name that already exists (case-sensitive) is a no-op; the
// existing record is returned.
func (d *FamilyDocument) AddCategory(name string) Category {
	for _, c := range d.Categories {
		if c.Name == name {
			return c
		}
	}
	id := HashID(categoryKeyPrefix + name)
	c := Category{
		ID:    id,
		Name:  name,
		Color: ColorForID(id),
		Order: d.nextCategoryOrder(),
	}
	d.Categories = append(d.Categories, c)
	return c
}

func (d *FamilyDocument) nextCategoryOrder() int {
	next := 0
	for _, c := range d.Categories {
		if c.Order >= next {
			next = c.Order + 1
		}
	}
	return next
}

func (d *FamilyDocument) category(id string) *Category {
	for i := range d.Categories {
		if d.Categories[i].ID == id {
			return &d.Categories[i]
		}
	}
	return nil
}

// RenameCategory changes a category's display name. The id stays stable so
// expenses keep their reference.
func (d *FamilyDocument) RenameCategory(id, name string) error {
	c := d.category(id)
	if c == nil {
		return ErrCategoryNotFound
	}
	c.Name = name
	return nil
}

// RecolorCategory overrides the derived color.
func (d *FamilyDocument) RecolorCategory(id, color string) error {
	c := d.category(id)
	if c == nil {
		return ErrCategoryNotFound
	}
	c.Color = color
	return nil
}

// SetCategoryParent links a category under another, or clears the link when
// parentID is empty. The whole ancestor chain is walked: any cycle, not just
// the direct self-reference, is rejected.
func (d *FamilyDocument) SetCategoryParent(id, parentID string) error {
	c := d.category(id)
	if c == nil {
		return ErrCategoryNotFound
	}
	if parentID == "" {
		c.ParentID = ""
		return nil
	}
	if parentID == id {
		return ErrCategoryCycle
	}
	if d.category(parentID) == nil {
		return ErrCategoryNotFound
	}
	for cur := parentID; cur != ""; {
		if cur == id {
			return ErrCategoryCycle
		}
		parent := d.category(cur)
		if parent == nil {
			break
		}
		cur = parent.ParentID
	}
	c.ParentID = parentID
	return nil
}

// SortedCategories returns the categories in display order: ascending order
// value, ties broken by name.
func (d *FamilyDocument) SortedCategories() []Category {
	out := append([]Category(nil), d.Categories...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ReorderCategory swaps the category's order value with its neighbor in the
// current display order. At the edges it is a no-op. Only the two order
// values move; nothing is renumbered.
func (d *FamilyDocument) ReorderCategory(id string, direction int) error {
	sorted := d.SortedCategories()
	idx := -1
	for i, c := range sorted {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrCategoryNotFound
	}
	other := idx + direction
	if other < 0 || other >= len(sorted) {
		return nil
	}
	a, b := d.category(sorted[idx].ID), d.category(sorted[other].ID)
	a.Order, b.Order = b.Order, a.Order
	return nil
}

// RemoveCategory deletes the category from the global list and purges the
// expenses referencing it: only the given project's expenses for
// RemoveThisProjectOnly, every project's for RemoveAllProjects.
func (d *FamilyDocument) RemoveCategory(id string, scope RemoveScope, projectID string) error {
	if d.category(id) == nil {
		return ErrCategoryNotFound
	}
	kept := d.Categories[:0]
	for _, c := range d.Categories {
		if c.ID != id {
			if c.ParentID == id {
				c.ParentID = ""
			}
			kept = append(kept, c)
		}
	}
	d.Categories = kept

	keptExp := d.Expenses[:0]
	for _, e := range d.Expenses {
		purge := e.Category == id && (scope == RemoveAllProjects || e.ProjectID == projectID)
		if !purge {
			keptExp = append(keptExp, e)
		}
	}
	d.Expenses = keptExp
	return nil
}
