package core

import (
	"fmt"
	"time"
)

// Mutator applies authenticated mutations to family documents. Every method
// works copy-on-write: the input document is cloned before any change, so a
// denied or failed mutation leaves the caller's copy untouched.
type Mutator struct {
	Policy Policy
	Now    func() time.Time
}

// NewMutator builds a mutator on the given policy with a wall clock.
func NewMutator(policy Policy) *Mutator {
	return &Mutator{Policy: policy, Now: time.Now}
}

func (m *Mutator) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

type (
	// ProjectUpdate carries a partial project edit. Nil fields are untouched.
	ProjectUpdate struct {
		Name   *string        `json:"name"`
		Start  *string        `json:"start"`
		End    *string        `json:"end"`
		Status *ProjectStatus `json:"status"`
	}

	// Patch is the write payload of the replace-style mutation API. Each
	// section is optional; a present section replaces the corresponding part
	// of the document wholesale. ActiveProjectID names the project the patch
	// is issued against and scopes both authorization and the expense
	// replacement.
	Patch struct {
		ActiveProjectID string           `json:"activeProjectId"`
		People          *[]string        `json:"people"`
		Categories      *[]PatchCategory `json:"categories"`
		Expenses        *[]Expense       `json:"expenses"`
		ProjectUpdate   *ProjectUpdate   `json:"projectUpdate"`
		Members         *[]Member        `json:"members"`
	}

	// PatchCategory is the category shape of the patch payload. Order is a
	// pointer so a submitted zero is distinguishable from an absent field; an
	// absent order falls back to the list position.
	PatchCategory struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Color    string `json:"color"`
		ParentID string `json:"parentId,omitempty"`
		Order    *int   `json:"order"`
	}
)

// ApplyPatch merges a patch into the document under the caller's project
// role. Sections are gated independently: people, categories and expenses
// need ledger edit rights, projectUpdate needs project edit rights, members
// needs member management. The first denied section aborts the whole patch.
//
// The expenses section replaces only the active project's expenses; other
// projects' entries pass through unchanged.
func (m *Mutator) ApplyPatch(doc FamilyDocument, identity string, patch Patch) (FamilyDocument, error) {
	identity = NormalizeEmail(identity)
	if identity == "" {
		return doc, ErrUnauthenticated
	}

	next := doc.Clone()
	project := next.FindProject(patch.ActiveProjectID)
	if project == nil {
		return doc, ErrProjectNotFound
	}
	if !m.Policy.CanView(identity, project) {
		return doc, ErrForbidden
	}

	changed := false

	if patch.People != nil {
		if !m.Policy.CanEditLedger(identity, project) {
			return doc, ErrForbidden
		}
		next.People = dedupePeople(*patch.People)
		changed = true
	}

	if patch.Categories != nil {
		if !m.Policy.CanEditLedger(identity, project) {
			return doc, ErrForbidden
		}
		cats, err := sanitizeCategories(*patch.Categories)
		if err != nil {
			return doc, err
		}
		next.Categories = cats
		changed = true
	}

	if patch.Expenses != nil {
		if !m.Policy.CanEditLedger(identity, project) {
			return doc, ErrForbidden
		}
		next.Expenses = replaceProjectExpenses(next.Expenses, *patch.Expenses, project.ID)
		changed = true
	}

	if patch.ProjectUpdate != nil {
		if !m.Policy.CanEditProject(identity, project) {
			return doc, ErrForbidden
		}
		if err := applyProjectUpdate(project, *patch.ProjectUpdate); err != nil {
			return doc, err
		}
		changed = true
	}

	if patch.Members != nil {
		if !m.Policy.CanManageMembers(identity, project) {
			return doc, ErrForbidden
		}
		members, err := sanitizeMembers(*patch.Members)
		if err != nil {
			return doc, err
		}
		project.Members = members
		changed = true
	}

	if changed {
		next.UpdatedAt = ISOTime(m.now())
	}
	return next, nil
}

func dedupePeople(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, name := range in {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// sanitizeCategories backfills ids and colors for client-submitted category
// lists the same way schema migration does, so a patched list re-converges.
// Submitted order values are kept as-is, zero included; only categories
// without one take their list position.
func sanitizeCategories(in []PatchCategory) ([]Category, error) {
	out := make([]Category, 0, len(in))
	seen := make(map[string]bool, len(in))
	for idx, c := range in {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: category without name", ErrMalformedInput)
		}
		id := c.ID
		if id == "" {
			id = HashID(categoryKeyPrefix + c.Name)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		color := c.Color
		if color == "" {
			color = ColorForID(id)
		}
		order := idx
		if c.Order != nil {
			order = *c.Order
		}
		out = append(out, Category{
			ID:       id,
			Name:     c.Name,
			Color:    color,
			ParentID: c.ParentID,
			Order:    order,
		})
	}
	for i := range out {
		if p := out[i].ParentID; p != "" && (p == out[i].ID || !seen[p]) {
			out[i].ParentID = ""
		}
	}
	return out, nil
}

// replaceProjectExpenses swaps one project's expenses for the submitted
// list. Submitted entries are forced onto the active project and get ids
// minted when missing; entries for other projects survive untouched.
func replaceProjectExpenses(existing, submitted []Expense, projectID string) []Expense {
	out := make([]Expense, 0, len(existing)+len(submitted))
	for _, e := range existing {
		if e.ProjectID != projectID {
			out = append(out, e)
		}
	}
	for _, e := range submitted {
		e.ProjectID = projectID
		if e.ID == "" {
			e.ID = NewExpenseID()
		}
		out = append(out, e)
	}
	return out
}

func applyProjectUpdate(p *Project, u ProjectUpdate) error {
	if u.Name != nil {
		if *u.Name == "" {
			return fmt.Errorf("%w: empty project name", ErrMalformedInput)
		}
		p.Name = *u.Name
	}
	if u.Start != nil {
		p.Start = *u.Start
	}
	if u.End != nil {
		p.End = *u.End
	}
	if u.Status != nil {
		switch *u.Status {
		case StatusOpen, StatusClosed:
			p.Status = *u.Status
		default:
			return fmt.Errorf("%w: project status %q", ErrMalformedInput, *u.Status)
		}
	}
	return nil
}

func sanitizeMembers(in []Member) ([]Member, error) {
	out := make([]Member, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, m := range in {
		email := NormalizeEmail(m.Email)
		if email == "" {
			return nil, fmt.Errorf("%w: member without email", ErrMalformedInput)
		}
		if seen[email] {
			continue
		}
		seen[email] = true
		if !ValidRole(m.Role) {
			return nil, fmt.Errorf("%w: member role %q", ErrMalformedInput, m.Role)
		}
		out = append(out, Member{Email: email, Role: m.Role})
	}
	return out, nil
}

// AddExpense validates and appends one expense to the given project.
func (m *Mutator) AddExpense(doc FamilyDocument, identity, projectID string, e Expense) (FamilyDocument, error) {
	identity = NormalizeEmail(identity)
	next := doc.Clone()
	project := next.FindProject(projectID)
	if project == nil {
		return doc, ErrProjectNotFound
	}
	if !m.Policy.CanEditLedger(identity, project) {
		return doc, ErrForbidden
	}
	e.ProjectID = projectID
	if e.Date == "" {
		e.Date = m.now().UTC().Format("2006-01-02")
	}
	if err := e.Validate(); err != nil {
		return doc, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if e.ID == "" {
		e.ID = NewExpenseID()
	}
	next.Expenses = append(next.Expenses, e)
	next.UpdatedAt = ISOTime(m.now())
	return next, nil
}

// RemoveExpense deletes one expense by id. Removing an id that is not there
// is a no-op, not an error.
func (m *Mutator) RemoveExpense(doc FamilyDocument, identity, projectID, expenseID string) (FamilyDocument, error) {
	identity = NormalizeEmail(identity)
	next := doc.Clone()
	project := next.FindProject(projectID)
	if project == nil {
		return doc, ErrProjectNotFound
	}
	if !m.Policy.CanEditLedger(identity, project) {
		return doc, ErrForbidden
	}
	kept := next.Expenses[:0]
	removed := false
	for _, e := range next.Expenses {
		if e.ID == expenseID && e.ProjectID == projectID {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	next.Expenses = kept
	if removed {
		next.UpdatedAt = ISOTime(m.now())
	}
	return next, nil
}

// AddPerson adds a payer name to the shared roster.
func (m *Mutator) AddPerson(doc FamilyDocument, identity, projectID, name string) (FamilyDocument, error) {
	identity = NormalizeEmail(identity)
	next := doc.Clone()
	project := next.FindProject(projectID)
	if project == nil {
		return doc, ErrProjectNotFound
	}
	if !m.Policy.CanEditLedger(identity, project) {
		return doc, ErrForbidden
	}
	if name == "" {
		return doc, fmt.Errorf("%w: empty person name", ErrMalformedInput)
	}
	for _, p := range next.People {
		if p == name {
			return next, nil
		}
	}
	next.People = append(next.People, name)
	next.UpdatedAt = ISOTime(m.now())
	return next, nil
}

// RemovePerson drops a payer from the roster and purges their expenses in
// every project.
func (m *Mutator) RemovePerson(doc FamilyDocument, identity, projectID, name string) (FamilyDocument, error) {
	identity = NormalizeEmail(identity)
	next := doc.Clone()
	project := next.FindProject(projectID)
	if project == nil {
		return doc, ErrProjectNotFound
	}
	if !m.Policy.CanEditLedger(identity, project) {
		return doc, ErrForbidden
	}
	people := next.People[:0]
	for _, p := range next.People {
		if p != name {
			people = append(people, p)
		}
	}
	next.People = people
	expenses := next.Expenses[:0]
	for _, e := range next.Expenses {
		if e.Who != name {
			expenses = append(expenses, e)
		}
	}
	next.Expenses = expenses
	next.UpdatedAt = ISOTime(m.now())
	return next, nil
}

// AddProject creates a new project owned by the caller. Any authenticated
// caller may create projects; the new project grants them owner directly.
func (m *Mutator) AddProject(doc FamilyDocument, identity string, name string, ptype ProjectType, start, end string) (FamilyDocument, error) {
	identity = NormalizeEmail(identity)
	if identity == "" {
		return doc, ErrUnauthenticated
	}
	if name == "" {
		return doc, fmt.Errorf("%w: empty project name", ErrMalformedInput)
	}
	switch ptype {
	case ProjectMonthly, ProjectTrip, ProjectCustom, ProjectGeneral:
	case "":
		ptype = ProjectCustom
	default:
		return doc, fmt.Errorf("%w: project type %q", ErrMalformedInput, ptype)
	}
	next := doc.Clone()
	p := Project{
		ID:      NewProjectID(),
		Name:    name,
		Type:    ptype,
		Start:   start,
		End:     end,
		Status:  StatusOpen,
		Owner:   identity,
		Members: []Member{{Email: identity, Role: RoleOwner}},
	}
	next.Projects = append(next.Projects, p)
	next.UpdatedAt = ISOTime(m.now())
	return next, nil
}

// RemoveProject deletes a project and prunes its expenses. The last project
// of a family cannot be removed.
func (m *Mutator) RemoveProject(doc FamilyDocument, identity, projectID string) (FamilyDocument, error) {
	identity = NormalizeEmail(identity)
	next := doc.Clone()
	project := next.FindProject(projectID)
	if project == nil {
		return doc, ErrProjectNotFound
	}
	if !m.Policy.CanManageMembers(identity, project) {
		return doc, ErrForbidden
	}
	if len(next.Projects) == 1 {
		return doc, fmt.Errorf("%w: cannot remove the only project", ErrMalformedInput)
	}
	projects := next.Projects[:0]
	for _, p := range next.Projects {
		if p.ID != projectID {
			projects = append(projects, p)
		}
	}
	next.Projects = projects
	expenses := next.Expenses[:0]
	for _, e := range next.Expenses {
		if e.ProjectID != projectID {
			expenses = append(expenses, e)
		}
	}
	next.Expenses = expenses
	next.UpdatedAt = ISOTime(m.now())
	return next, nil
}

func (m *Mutator) setProjectStatus(doc FamilyDocument, identity, projectID string, status ProjectStatus) (FamilyDocument, error) {
	identity = NormalizeEmail(identity)
	next := doc.Clone()
	project := next.FindProject(projectID)
	if project == nil {
		return doc, ErrProjectNotFound
	}
	if !m.Policy.CanEditProject(identity, project) {
		return doc, ErrForbidden
	}
	if project.Status == status {
		return next, nil
	}
	project.Status = status
	next.UpdatedAt = ISOTime(m.now())
	return next, nil
}

// CloseProject marks a project closed. Under a read-only-when-closed policy
// this freezes its ledger; reopening stays possible because status changes
// are project edits, not ledger edits.
func (m *Mutator) CloseProject(doc FamilyDocument, identity, projectID string) (FamilyDocument, error) {
	return m.setProjectStatus(doc, identity, projectID, StatusClosed)
}

// ReopenProject marks a closed project open again.
func (m *Mutator) ReopenProject(doc FamilyDocument, identity, projectID string) (FamilyDocument, error) {
	return m.setProjectStatus(doc, identity, projectID, StatusOpen)
}

// PatchProject applies a partial project edit outside the document patch
// flow.
func (m *Mutator) PatchProject(doc FamilyDocument, identity, projectID string, u ProjectUpdate) (FamilyDocument, error) {
	identity = NormalizeEmail(identity)
	next := doc.Clone()
	project := next.FindProject(projectID)
	if project == nil {
		return doc, ErrProjectNotFound
	}
	if !m.Policy.CanEditProject(identity, project) {
		return doc, ErrForbidden
	}
	if err := applyProjectUpdate(project, u); err != nil {
		return doc, err
	}
	next.UpdatedAt = ISOTime(m.now())
	return next, nil
}

// AddMember grants an email a role on the project. Adding an email that is
// already a member updates its role instead of duplicating it.
func (m *Mutator) AddMember(doc FamilyDocument, identity, projectID string, member Member) (FamilyDocument, error) {
	identity = NormalizeEmail(identity)
	next := doc.Clone()
	project := next.FindProject(projectID)
	if project == nil {
		return doc, ErrProjectNotFound
	}
	if !m.Policy.CanManageMembers(identity, project) {
		return doc, ErrForbidden
	}
	email := NormalizeEmail(member.Email)
	if email == "" {
		return doc, fmt.Errorf("%w: member without email", ErrMalformedInput)
	}
	if !ValidRole(member.Role) {
		return doc, fmt.Errorf("%w: member role %q", ErrMalformedInput, member.Role)
	}
	for i := range project.Members {
		if NormalizeEmail(project.Members[i].Email) == email {
			project.Members[i].Role = member.Role
			next.UpdatedAt = ISOTime(m.now())
			return next, nil
		}
	}
	project.Members = append(project.Members, Member{Email: email, Role: member.Role})
	next.UpdatedAt = ISOTime(m.now())
	return next, nil
}

// UpdateMemberRole changes an existing member's role.
func (m *Mutator) UpdateMemberRole(doc FamilyDocument, identity, projectID, email string, role Role) (FamilyDocument, error) {
	identity = NormalizeEmail(identity)
	next := doc.Clone()
	project := next.FindProject(projectID)
	if project == nil {
		return doc, ErrProjectNotFound
	}
	if !m.Policy.CanManageMembers(identity, project) {
		return doc, ErrForbidden
	}
	if !ValidRole(role) {
		return doc, fmt.Errorf("%w: member role %q", ErrMalformedInput, role)
	}
	email = NormalizeEmail(email)
	for i := range project.Members {
		if NormalizeEmail(project.Members[i].Email) == email {
			project.Members[i].Role = role
			next.UpdatedAt = ISOTime(m.now())
			return next, nil
		}
	}
	return doc, fmt.Errorf("%w: member %s", ErrMalformedInput, email)
}

// RemoveMember drops an email from the project's member list. The last owner
// cannot be removed; a project must always keep at least one.
func (m *Mutator) RemoveMember(doc FamilyDocument, identity, projectID, email string) (FamilyDocument, error) {
	identity = NormalizeEmail(identity)
	next := doc.Clone()
	project := next.FindProject(projectID)
	if project == nil {
		return doc, ErrProjectNotFound
	}
	if !m.Policy.CanManageMembers(identity, project) {
		return doc, ErrForbidden
	}
	email = NormalizeEmail(email)
	idx := -1
	owners := 0
	for i, mem := range project.Members {
		if mem.Role == RoleOwner {
			owners++
		}
		if NormalizeEmail(mem.Email) == email {
			idx = i
		}
	}
	if idx < 0 {
		return next, nil
	}
	if project.Members[idx].Role == RoleOwner && owners == 1 {
		return doc, fmt.Errorf("%w: cannot remove the last owner", ErrMalformedInput)
	}
	project.Members = append(project.Members[:idx], project.Members[idx+1:]...)
	next.UpdatedAt = ISOTime(m.now())
	return next, nil
}
