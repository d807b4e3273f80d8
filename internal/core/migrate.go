package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Scoping keys for the deterministic id hash. Legacy string categories hash
// under "cat:" and object categories that lost their id under "cat_old:",
// matching the ids already present in persisted documents.
const (
	categoryKeyPrefix       = "cat:"
	legacyCategoryKeyPrefix = "cat_old:"
	defaultProjectKey       = "proj:default"
	defaultProjectName      = "Projeto"
)

// NewExpenseID mints an id for an expense created without one.
func NewExpenseID() string {
	return "exp-" + uuid.NewString()
}

// NewProjectID mints an id for a user-created project.
func NewProjectID() string {
	return "proj-" + uuid.NewString()
}

// Lenient decode targets. Every field that older documents stored with a
// different type is a RawMessage so a single bad field never fails the whole
// document.
type (
	rawDocument struct {
		People     json.RawMessage `json:"people"`
		Categories json.RawMessage `json:"categories"`
		Projects   json.RawMessage `json:"projects"`
		Expenses   json.RawMessage `json:"expenses"`
		CreatedAt  json.RawMessage `json:"createdAt"`
		UpdatedAt  json.RawMessage `json:"updatedAt"`
	}

	rawCategory struct {
		ID       string   `json:"id"`
		Name     string   `json:"name"`
		Color    string   `json:"color"`
		ParentID string   `json:"parentId"`
		Order    *float64 `json:"order"`
	}

	rawMember struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}

	rawProject struct {
		ID      string          `json:"id"`
		Name    string          `json:"name"`
		Type    string          `json:"type"`
		Start   string          `json:"start"`
		End     string          `json:"end"`
		Status  string          `json:"status"`
		Members json.RawMessage `json:"members"`
		Owner   string          `json:"owner"`
	}

	rawExpense struct {
		ID        string          `json:"id"`
		Who       string          `json:"who"`
		Category  json.RawMessage `json:"category"`
		Amount    json.RawMessage `json:"amount"`
		Desc      string          `json:"desc"`
		Date      string          `json:"date"`
		ProjectID string          `json:"projectId"`
	}
)

// Normalize upgrades a raw persisted document to the current schema. It is
// total (malformed input degrades to an empty-but-valid document, never a
// panic) and idempotent: running it on its own output reports no change.
//
// The returned bool says whether the document was structurally modified;
// callers use it to skip needless writes. UpdatedAt is only bumped when a
// change was made.
//
// The single hard failure is an empty identity when a default project must be
// synthesized, which surfaces as ErrUnauthenticated.
func Normalize(raw []byte, identity string, now time.Time) (FamilyDocument, bool, error) {
	identity = NormalizeEmail(identity)
	changed := false

	var rd rawDocument
	if len(raw) == 0 {
		changed = true
	} else if err := json.Unmarshal(raw, &rd); err != nil {
		rd = rawDocument{}
		changed = true
	}

	doc := FamilyDocument{
		People:     []string{},
		Categories: []Category{},
		Projects:   []Project{},
		Expenses:   []Expense{},
	}

	doc.People, changed = normalizePeople(rd.People, changed)
	doc.Categories, changed = normalizeCategories(rd.Categories, changed)

	var err error
	doc.Projects, changed, err = normalizeProjects(rd.Projects, identity, now, changed)
	if err != nil {
		return FamilyDocument{}, false, err
	}

	// The caller must hold owner on at least one project; legacy documents
	// created before sharing existed list nobody.
	if identity != "" && !memberOfAny(doc.Projects, identity) {
		doc.Projects[0].Members = append(doc.Projects[0].Members, Member{Email: identity, Role: RoleOwner})
		changed = true
	}

	doc.Expenses, changed = normalizeExpenses(rd.Expenses, doc.Projects, now, changed)

	doc.CreatedAt = decodeString(rd.CreatedAt)
	if doc.CreatedAt == "" {
		doc.CreatedAt = ISOTime(now)
		changed = true
	}
	doc.UpdatedAt = decodeString(rd.UpdatedAt)
	if doc.UpdatedAt == "" || changed {
		changed = true
		doc.UpdatedAt = ISOTime(now)
	}

	return doc, changed, nil
}

func normalizePeople(raw json.RawMessage, changed bool) ([]string, bool) {
	var in []string
	if raw == nil || json.Unmarshal(raw, &in) != nil {
		return []string{}, true
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, name := range in {
		if name == "" || seen[name] {
			changed = true
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, changed
}

func normalizeCategories(raw json.RawMessage, changed bool) ([]Category, bool) {
	var elems []json.RawMessage
	if raw == nil || json.Unmarshal(raw, &elems) != nil {
		return []Category{}, true
	}
	if len(elems) == 0 {
		return []Category{}, changed
	}

	// Legacy shape: a bare list of names.
	var firstName string
	if json.Unmarshal(elems[0], &firstName) == nil {
		out := make([]Category, 0, len(elems))
		for idx, el := range elems {
			var name string
			if json.Unmarshal(el, &name) != nil || name == "" {
				continue
			}
			id := HashID(categoryKeyPrefix + name)
			out = append(out, Category{ID: id, Name: name, Color: ColorForID(id), Order: idx})
		}
		return out, true
	}

	out := make([]Category, 0, len(elems))
	for idx, el := range elems {
		var rc rawCategory
		if json.Unmarshal(el, &rc) != nil || rc.Name == "" {
			changed = true
			continue
		}
		c := Category{ID: rc.ID, Name: rc.Name, Color: rc.Color, ParentID: rc.ParentID}
		if c.ID == "" {
			c.ID = HashID(legacyCategoryKeyPrefix + rc.Name)
			changed = true
		}
		if c.Color == "" {
			c.Color = ColorForID(c.ID)
			changed = true
		}
		if rc.Order != nil {
			c.Order = int(*rc.Order)
		} else {
			c.Order = idx
			changed = true
		}
		out = append(out, c)
	}

	// Parent links must reference a different, existing category.
	ids := make(map[string]bool, len(out))
	for _, c := range out {
		ids[c.ID] = true
	}
	for i := range out {
		if p := out[i].ParentID; p != "" && (p == out[i].ID || !ids[p]) {
			out[i].ParentID = ""
			changed = true
		}
	}
	return out, changed
}

func normalizeProjects(raw json.RawMessage, identity string, now time.Time, changed bool) ([]Project, bool, error) {
	var elems []json.RawMessage
	if raw == nil || json.Unmarshal(raw, &elems) != nil {
		elems = nil
		changed = true
	}

	out := make([]Project, 0, len(elems))
	for _, el := range elems {
		var rp rawProject
		if json.Unmarshal(el, &rp) != nil {
			changed = true
			continue
		}
		p := Project{
			ID:    rp.ID,
			Name:  rp.Name,
			Type:  ProjectType(rp.Type),
			Start: rp.Start,
			End:   rp.End,
			Owner: rp.Owner,
		}
		if p.ID == "" {
			p.ID = HashID("proj:" + p.Name)
			changed = true
		}
		switch ProjectStatus(rp.Status) {
		case StatusOpen, StatusClosed:
			p.Status = ProjectStatus(rp.Status)
		default:
			p.Status = StatusOpen
			changed = true
		}
		if lowered := NormalizeEmail(p.Owner); lowered != p.Owner {
			p.Owner = lowered
			changed = true
		}
		if p.Owner == "" && identity != "" {
			p.Owner = identity
			changed = true
		}
		p.Members, changed = normalizeMembers(rp.Members, changed)
		out = append(out, p)
	}

	if len(out) == 0 {
		if identity == "" {
			return nil, false, ErrUnauthenticated
		}
		id := HashID(defaultProjectKey)
		out = append(out, Project{
			ID:      id,
			Name:    defaultProjectName,
			Type:    ProjectMonthly,
			Start:   firstDayOfMonth(now),
			Status:  StatusOpen,
			Owner:   identity,
			Members: []Member{{Email: identity, Role: RoleOwner}},
		})
		changed = true
	}
	return out, changed, nil
}

func normalizeMembers(raw json.RawMessage, changed bool) ([]Member, bool) {
	var in []rawMember
	if raw == nil || json.Unmarshal(raw, &in) != nil {
		return []Member{}, true
	}
	out := make([]Member, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, m := range in {
		email := NormalizeEmail(m.Email)
		if email == "" || seen[email] {
			changed = true
			continue
		}
		seen[email] = true
		role := Role(m.Role)
		if !ValidRole(role) {
			role = RoleViewer
			changed = true
		}
		if email != m.Email {
			changed = true
		}
		out = append(out, Member{Email: email, Role: role})
	}
	return out, changed
}

func normalizeExpenses(raw json.RawMessage, projects []Project, now time.Time, changed bool) ([]Expense, bool) {
	var elems []json.RawMessage
	if raw == nil || json.Unmarshal(raw, &elems) != nil {
		return []Expense{}, true
	}

	fallback := firstOpenProjectID(projects)
	valid := make(map[string]bool, len(projects))
	for _, p := range projects {
		valid[p.ID] = true
	}

	out := make([]Expense, 0, len(elems))
	for _, el := range elems {
		var re rawExpense
		if json.Unmarshal(el, &re) != nil {
			changed = true
			continue
		}
		e := Expense{
			ID:        re.ID,
			Who:       re.Who,
			Desc:      re.Desc,
			Date:      re.Date,
			ProjectID: re.ProjectID,
		}
		var catChanged bool
		e.Category, catChanged = decodeCategoryRef(re.Category)
		changed = changed || catChanged

		var amtChanged bool
		e.Amount, amtChanged = decodeAmount(re.Amount)
		changed = changed || amtChanged

		if e.ID == "" {
			e.ID = NewExpenseID()
			changed = true
		}
		if e.Date == "" {
			e.Date = now.UTC().Format("2006-01-02")
			changed = true
		}
		if e.ProjectID == "" || !valid[e.ProjectID] {
			e.ProjectID = fallback
			changed = true
		}
		out = append(out, e)
	}
	return out, changed
}

// decodeCategoryRef accepts the current string reference or the ancient
// {id,name} object shape.
func decodeCategoryRef(raw json.RawMessage) (string, bool) {
	if raw == nil {
		return "", false
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s, false
	}
	var obj struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		if obj.ID != "" {
			return obj.ID, true
		}
		return obj.Name, true
	}
	return "", true
}

func decodeAmount(raw json.RawMessage) (float64, bool) {
	if raw == nil {
		return 0, true
	}
	var v float64
	if json.Unmarshal(raw, &v) == nil {
		return v, false
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		var parsed float64
		if json.Unmarshal([]byte(s), &parsed) == nil {
			return parsed, true
		}
	}
	return 0, true
}

func decodeString(raw json.RawMessage) string {
	var s string
	if raw == nil || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func memberOfAny(projects []Project, email string) bool {
	for i := range projects {
		if NormalizeEmail(projects[i].Owner) == email {
			return true
		}
		if projects[i].HasMember(email) {
			return true
		}
	}
	return false
}

func firstOpenProjectID(projects []Project) string {
	for _, p := range projects {
		if p.Status == StatusOpen {
			return p.ID
		}
	}
	if len(projects) > 0 {
		return projects[0].ID
	}
	return ""
}

func firstDayOfMonth(t time.Time) string {
	return t.UTC().Format("2006-01") + "-01"
}
