package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

func TestNormalizeEmptyDocument(t *testing.T) {
	doc, changed, err := Normalize(nil, "ana@example.com", testNow)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !changed {
		t.Error("expected changed=true for empty input")
	}
	if len(doc.Projects) != 1 {
		t.Fatalf("expected 1 default project, got %d", len(doc.Projects))
	}
	p := doc.Projects[0]
	if p.Name != "Projeto" {
		t.Errorf("default project name = %q, want Projeto", p.Name)
	}
	if p.Type != ProjectMonthly {
		t.Errorf("default project type = %q, want monthly", p.Type)
	}
	if p.Start != "2025-03-01" {
		t.Errorf("default project start = %q, want 2025-03-01", p.Start)
	}
	if p.Status != StatusOpen {
		t.Errorf("default project status = %q, want open", p.Status)
	}
	if p.Owner != "ana@example.com" {
		t.Errorf("default project owner = %q", p.Owner)
	}
	if len(p.Members) != 1 || p.Members[0].Role != RoleOwner {
		t.Errorf("expected creator as sole owner member, got %+v", p.Members)
	}
	if doc.CreatedAt == "" || doc.UpdatedAt == "" {
		t.Error("expected createdAt and updatedAt to be set")
	}
}

func TestNormalizeUnauthenticatedCreation(t *testing.T) {
	_, _, err := Normalize(nil, "", testNow)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("Normalize() error = %v, want ErrUnauthenticated", err)
	}

	// No project synthesis needed: an empty identity is fine.
	raw := []byte(`{"projects":[{"id":"p1","name":"Casa","status":"open","members":[{"email":"a@b.c","role":"owner"}]}]}`)
	if _, _, err := Normalize(raw, "", testNow); err != nil {
		t.Fatalf("Normalize() with existing project error = %v", err)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := []byte(`{
		"people": ["Ana", "Lucas", "Ana"],
		"categories": ["Mercado", "Lazer"],
		"expenses": [{"who":"Ana","category":"Mercado","amount":"12.50","date":""}]
	}`)
	doc, changed, err := Normalize(raw, "ana@example.com", testNow)
	if err != nil {
		t.Fatalf("first Normalize() error = %v", err)
	}
	if !changed {
		t.Error("expected changed=true on legacy input")
	}

	out, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	doc2, changed2, err := Normalize(out, "ana@example.com", testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("second Normalize() error = %v", err)
	}
	if changed2 {
		t.Error("expected changed=false on already-normalized input")
	}
	if doc2.UpdatedAt != doc.UpdatedAt {
		t.Errorf("updatedAt bumped without change: %q -> %q", doc.UpdatedAt, doc2.UpdatedAt)
	}
}

func TestNormalizeLegacyCategoriesDeterministic(t *testing.T) {
	raw := []byte(`{"categories":["Mercado","Lazer"],"projects":[{"id":"p1","name":"Casa","members":[{"email":"a@b.c","role":"owner"}]}]}`)

	doc1, _, err := Normalize(raw, "a@b.c", testNow)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	doc2, _, err := Normalize(raw, "a@b.c", testNow.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if len(doc1.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(doc1.Categories))
	}
	for i := range doc1.Categories {
		a, b := doc1.Categories[i], doc2.Categories[i]
		if a.ID != b.ID || a.Color != b.Color {
			t.Errorf("category %d not deterministic: %+v vs %+v", i, a, b)
		}
		if a.ID != HashID("cat:"+a.Name) {
			t.Errorf("category %q id = %q, want derived from name", a.Name, a.ID)
		}
		if a.Color != ColorForID(a.ID) {
			t.Errorf("category %q color = %q, want derived from id", a.Name, a.Color)
		}
	}
	if doc1.Categories[0].ID == doc1.Categories[1].ID {
		t.Error("distinct names must get distinct ids")
	}
}

func TestNormalizeObjectCategoryWithoutID(t *testing.T) {
	raw := []byte(`{"categories":[{"name":"Saúde"}],"projects":[{"id":"p1","members":[{"email":"a@b.c","role":"owner"}]}]}`)
	doc, _, err := Normalize(raw, "a@b.c", testNow)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got, want := doc.Categories[0].ID, HashID("cat_old:Saúde"); got != want {
		t.Errorf("legacy object id = %q, want %q", got, want)
	}
}

func TestNormalizeMemberInjection(t *testing.T) {
	// Caller is nowhere in the document: gets owner on the first project.
	raw := []byte(`{"projects":[{"id":"p1","name":"Casa","members":[{"email":"other@x.y","role":"viewer"}]},{"id":"p2","name":"Férias","members":[]}]}`)
	doc, changed, err := Normalize(raw, "Ana@Example.com", testNow)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !changed {
		t.Error("expected changed=true after member injection")
	}
	if !doc.Projects[0].HasMember("ana@example.com") {
		t.Errorf("caller not injected into first project: %+v", doc.Projects[0].Members)
	}
	for _, m := range doc.Projects[0].Members {
		if m.Email == "ana@example.com" && m.Role != RoleOwner {
			t.Errorf("injected role = %q, want owner", m.Role)
		}
	}
}

func TestNormalizeExpenseBackfill(t *testing.T) {
	raw := []byte(`{
		"projects":[{"id":"p1","name":"Casa","status":"open","members":[{"email":"a@b.c","role":"owner"}]}],
		"expenses":[
			{"who":"Ana","category":{"id":"cat1","name":"Mercado"},"amount":42.5},
			{"id":"e2","who":"Lucas","category":"cat2","amount":"10","date":"2024-01-02","projectId":"ghost"}
		]
	}`)
	doc, _, err := Normalize(raw, "a@b.c", testNow)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(doc.Expenses) != 2 {
		t.Fatalf("expected 2 expenses, got %d", len(doc.Expenses))
	}
	e1, e2 := doc.Expenses[0], doc.Expenses[1]
	if e1.ID == "" {
		t.Error("expected minted id for expense without one")
	}
	if e1.Category != "cat1" {
		t.Errorf("object category ref = %q, want cat1", e1.Category)
	}
	if e1.Date != "2025-03-15" {
		t.Errorf("backfilled date = %q, want 2025-03-15", e1.Date)
	}
	if e1.ProjectID != "p1" {
		t.Errorf("backfilled projectId = %q, want p1", e1.ProjectID)
	}
	if e2.Amount != 10 {
		t.Errorf("string amount = %v, want 10", e2.Amount)
	}
	if e2.ProjectID != "p1" {
		t.Errorf("orphan expense projectId = %q, want reassignment to p1", e2.ProjectID)
	}
}

func TestNormalizeMalformedInput(t *testing.T) {
	inputs := [][]byte{
		[]byte(`not json at all`),
		[]byte(`{"people": 42, "categories": "x", "projects": {}, "expenses": false}`),
		[]byte(`[]`),
		[]byte(`{"expenses":[null, {"amount":{"nested":true}}]}`),
	}
	for _, raw := range inputs {
		doc, changed, err := Normalize(raw, "a@b.c", testNow)
		if err != nil {
			t.Errorf("Normalize(%s) error = %v, want graceful degrade", raw, err)
			continue
		}
		if !changed {
			t.Errorf("Normalize(%s) changed = false, want true", raw)
		}
		if doc.People == nil || doc.Categories == nil || doc.Projects == nil || doc.Expenses == nil {
			t.Errorf("Normalize(%s) produced nil sections", raw)
		}
	}
}

func TestNormalizeMemberRoles(t *testing.T) {
	raw := []byte(`{"projects":[{"id":"p1","members":[
		{"email":"A@B.C","role":"OWNER"},
		{"email":"a@b.c","role":"editor"},
		{"email":"x@y.z","role":"banana"},
		{"email":"","role":"owner"}
	]}]}`)
	doc, _, err := Normalize(raw, "a@b.c", testNow)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	members := doc.Projects[0].Members
	if len(members) != 2 {
		t.Fatalf("expected 2 members after dedupe, got %+v", members)
	}
	if members[0].Email != "a@b.c" {
		t.Errorf("email not lowercased: %q", members[0].Email)
	}
	if members[0].Role != RoleViewer {
		t.Errorf("unknown role %q should degrade to viewer, got %q", "OWNER", members[0].Role)
	}
	if members[1].Role != RoleViewer {
		t.Errorf("invalid role should degrade to viewer, got %q", members[1].Role)
	}
}

func TestHashIDStable(t *testing.T) {
	tests := []struct {
		key string
	}{
		{"cat:Mercado"},
		{"cat:Lazer"},
		{"cat_old:Saúde"},
		{"proj:default"},
	}
	for _, tt := range tests {
		a, b := HashID(tt.key), HashID(tt.key)
		if a != b {
			t.Errorf("HashID(%q) not stable: %q vs %q", tt.key, a, b)
		}
		if len(a) <= 3 || a[:3] != "id_" {
			t.Errorf("HashID(%q) = %q, want id_ prefix", tt.key, a)
		}
	}
	if HashID("cat:Mercado") == HashID("cat:Lazer") {
		t.Error("distinct keys collided")
	}
}
