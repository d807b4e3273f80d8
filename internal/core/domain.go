// Package core implements the shared family ledger: the document model,
// schema migration, role-based authorization, category hierarchy and the
// debt-settlement engine. Everything here is a synchronous in-memory
// transform; persistence and transport live elsewhere.
package core

import (
	"errors"
	"strings"
	"time"
)

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
	RoleNone   Role = "none"
)

const (
	ProjectMonthly ProjectType = "monthly"
	ProjectTrip    ProjectType = "trip"
	ProjectCustom  ProjectType = "custom"
	ProjectGeneral ProjectType = "general"
)

const (
	StatusOpen   ProjectStatus = "open"
	StatusClosed ProjectStatus = "closed"
)

type (
	Role          string
	ProjectType   string
	ProjectStatus string

	// Category is a globally scoped expense category. ParentID, when set,
	// references another category and must never form a cycle. Order drives
	// display sorting; ties break by name.
	Category struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Color    string `json:"color"`
		ParentID string `json:"parentId,omitempty"`
		Order    int    `json:"order"`
	}

	// Member scopes one email's role within a single project. Emails are
	// stored lowercased and are unique per project.
	Member struct {
		Email string `json:"email"`
		Role  Role   `json:"role"`
	}

	// Project is a time-boxed expense scope with its own member list. It is
	// the sole authorization domain: the same email can hold different roles
	// in different projects of one family.
	Project struct {
		ID      string        `json:"id"`
		Name    string        `json:"name"`
		Type    ProjectType   `json:"type,omitempty"`
		Start   string        `json:"start,omitempty"`
		End     string        `json:"end,omitempty"`
		Status  ProjectStatus `json:"status"`
		Members []Member      `json:"members"`
		Owner   string        `json:"owner,omitempty"`
	}

	// Expense is immutable once created; edits happen by replace-or-delete.
	// Date is an ISO "YYYY-MM-DD" string, Amount carries two-decimal
	// currency semantics.
	Expense struct {
		ID        string  `json:"id"`
		Who       string  `json:"who"`
		Category  string  `json:"category"`
		Amount    float64 `json:"amount"`
		Desc      string  `json:"desc"`
		Date      string  `json:"date"`
		ProjectID string  `json:"projectId"`
	}

	// FamilyDocument is the root aggregate for one household, keyed by an
	// opaque slug. The whole document is the unit of persistence: every
	// mutation computes a next document and replaces the stored one.
	FamilyDocument struct {
		People     []string   `json:"people"`
		Categories []Category `json:"categories"`
		Projects   []Project  `json:"projects"`
		Expenses   []Expense  `json:"expenses"`
		CreatedAt  string     `json:"createdAt"`
		UpdatedAt  string     `json:"updatedAt"`
	}
)

var (
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrFamilyNotFound     = errors.New("family not found")
	ErrProjectNotFound    = errors.New("project not found")
	ErrForbidden          = errors.New("forbidden")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrMalformedInput     = errors.New("malformed input")
	ErrConflict           = errors.New("document version conflict")

	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryCycle    = errors.New("category parent cycle")
)

// ValidRole reports whether r is one of the assignable member roles.
func ValidRole(r Role) bool {
	return r == RoleOwner || r == RoleEditor || r == RoleViewer
}

// NormalizeEmail lowercases and trims an email for comparison and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ISOTime formats a timestamp the way the persisted documents always have.
func ISOTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Clone returns a deep copy of the document. Mutations operate on clones so
// a denied or failed operation never touches the caller's document.
func (d FamilyDocument) Clone() FamilyDocument {
	out := d
	out.People = append([]string(nil), d.People...)
	out.Categories = append([]Category(nil), d.Categories...)
	out.Expenses = append([]Expense(nil), d.Expenses...)
	out.Projects = make([]Project, len(d.Projects))
	for i, p := range d.Projects {
		p.Members = append([]Member(nil), p.Members...)
		out.Projects[i] = p
	}
	return out
}

// FindProject returns a pointer into the document's project slice, or nil.
func (d *FamilyDocument) FindProject(id string) *Project {
	for i := range d.Projects {
		if d.Projects[i].ID == id {
			return &d.Projects[i]
		}
	}
	return nil
}

// ProjectExpenses returns the expenses belonging to one project.
func (d *FamilyDocument) ProjectExpenses(projectID string) []Expense {
	var out []Expense
	for _, e := range d.Expenses {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out
}

// HasMember reports whether email already appears in the project's member
// list, matching case-insensitively.
func (p *Project) HasMember(email string) bool {
	e := NormalizeEmail(email)
	for _, m := range p.Members {
		if NormalizeEmail(m.Email) == e {
			return true
		}
	}
	return false
}

var (
	ErrEmptyWho      = errors.New("empty payer name")
	ErrEmptyCategory = errors.New("empty category")
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidDate   = errors.New("invalid date")
)

// Validate checks an expense before it enters a document.
func (e Expense) Validate() error {
	if strings.TrimSpace(e.Who) == "" {
		return ErrEmptyWho
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if !(e.Amount > 0) {
		return ErrInvalidAmount
	}
	if _, err := time.Parse("2006-01-02", e.Date); err != nil {
		return ErrInvalidDate
	}
	return nil
}
