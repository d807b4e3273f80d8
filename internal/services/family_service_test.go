package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"gastos/internal/core"
	"gastos/internal/storage"
)

type capturingPublisher struct {
	published []string
	fail      bool
}

func (p *capturingPublisher) PublishFamilyUpdated(_ context.Context, slug string, _ int64) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.published = append(p.published, slug)
	return nil
}

func newTestService(t *testing.T) (*FamilyService, *storage.MemoryStore, *capturingPublisher) {
	t.Helper()
	store := storage.NewMemoryStore()
	pub := &capturingPublisher{}
	return NewFamilyService(store, pub, core.DefaultPolicy()), store, pub
}

func seedFamily(t *testing.T, store *storage.MemoryStore, slug string, doc core.FamilyDocument) {
	t.Helper()
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal seed doc: %v", err)
	}
	if _, err := store.Save(context.Background(), slug, raw, 0); err != nil {
		t.Fatalf("seed save: %v", err)
	}
}

func seedDoc() core.FamilyDocument {
	return core.FamilyDocument{
		People: []string{"Ana", "Lucas"},
		Projects: []core.Project{{
			ID:     "p1",
			Name:   "Casa",
			Status: core.StatusOpen,
			Owner:  "ana@example.com",
			Members: []core.Member{
				{Email: "ana@example.com", Role: core.RoleOwner},
				{Email: "lucas@example.com", Role: core.RoleViewer},
			},
		}},
		Expenses: []core.Expense{
			{ID: "e1", Who: "Ana", Category: "c1", Amount: 120, Date: "2025-03-10", ProjectID: "p1"},
		},
		CreatedAt: "2025-01-01T00:00:00Z",
		UpdatedAt: "2025-01-01T00:00:00Z",
	}
}

func TestGetFamilyCreatesOnFirstRead(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	doc, version, err := svc.GetFamily(ctx, "nova", "ana@example.com")
	if err != nil {
		t.Fatalf("GetFamily() error = %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	if len(doc.Projects) != 1 || doc.Projects[0].Owner != "ana@example.com" {
		t.Errorf("default project = %+v", doc.Projects)
	}

	// The created document is persisted, not just served.
	if _, err := store.Load(ctx, "nova"); err != nil {
		t.Errorf("created family not in store: %v", err)
	}
}

func TestGetFamilyAnonymousUnknownSlug(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, _, err := svc.GetFamily(context.Background(), "nova", ""); !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("error = %v, want ErrUnauthenticated", err)
	}
}

func TestGetFamilyPersistsMigration(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	// Legacy shape: bare category names, no ids anywhere.
	legacy := []byte(`{"people":["Ana"],"categories":["Mercado"],"projects":[{"id":"p1","name":"Casa","status":"open","members":[{"email":"ana@example.com","role":"owner"}]}]}`)
	if _, err := store.Save(ctx, "familia", legacy, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}

	doc, version, err := svc.GetFamily(ctx, "familia", "ana@example.com")
	if err != nil {
		t.Fatalf("GetFamily() error = %v", err)
	}
	if doc.Categories[0].ID == "" {
		t.Error("migration did not assign category id")
	}
	if version != 2 {
		t.Errorf("version = %d, want 2 after migration write-back", version)
	}

	rec, err := store.Load(ctx, "familia")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	var stored core.FamilyDocument
	if err := json.Unmarshal(rec.Doc, &stored); err != nil {
		t.Fatalf("stored doc unmarshal: %v", err)
	}
	if stored.Categories[0].ID != doc.Categories[0].ID {
		t.Error("migrated shape not persisted")
	}
}

func TestGetFamilyForbidden(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedFamily(t, store, "familia", seedDoc())

	if _, _, err := svc.GetFamily(context.Background(), "familia", "stranger@example.com"); !errors.Is(err, core.ErrForbidden) {
		t.Fatalf("error = %v, want ErrForbidden", err)
	}
}

func TestApplyPatchPersistsAndPublishes(t *testing.T) {
	svc, store, pub := newTestService(t)
	ctx := context.Background()
	seedFamily(t, store, "familia", seedDoc())

	doc, version, err := svc.ApplyPatch(ctx, "familia", "ana@example.com", core.Patch{
		ActiveProjectID: "p1",
		People:          &[]string{"Ana", "Lucas", "Bia"},
	})
	if err != nil {
		t.Fatalf("ApplyPatch() error = %v", err)
	}
	if len(doc.People) != 3 {
		t.Errorf("people = %+v", doc.People)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
	if len(pub.published) != 1 || pub.published[0] != "familia" {
		t.Errorf("published = %+v, want one familia notification", pub.published)
	}
}

func TestApplyPatchPublishFailureIsNonFatal(t *testing.T) {
	svc, store, pub := newTestService(t)
	pub.fail = true
	seedFamily(t, store, "familia", seedDoc())

	_, _, err := svc.ApplyPatch(context.Background(), "familia", "ana@example.com", core.Patch{
		ActiveProjectID: "p1",
		People:          &[]string{"Ana"},
	})
	if err != nil {
		t.Fatalf("ApplyPatch() error = %v, want nil despite broker failure", err)
	}
}

func TestApplyPatchErrors(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	seedFamily(t, store, "familia", seedDoc())

	tests := []struct {
		name     string
		slug     string
		identity string
		patch    core.Patch
		wantErr  error
	}{
		{"anonymous", "familia", "", core.Patch{ActiveProjectID: "p1"}, core.ErrUnauthenticated},
		{"unknown family", "ghost", "ana@example.com", core.Patch{ActiveProjectID: "p1"}, core.ErrFamilyNotFound},
		{"viewer denied", "familia", "lucas@example.com", core.Patch{ActiveProjectID: "p1", People: &[]string{}}, core.ErrForbidden},
		{"bad active project", "familia", "ana@example.com", core.Patch{ActiveProjectID: "ghost"}, core.ErrProjectNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.ApplyPatch(ctx, tt.slug, tt.identity, tt.patch); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyPatchVersionConflict(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewFamilyService(&conflictingStore{MemoryStore: store}, nil, core.DefaultPolicy())
	seedFamily(t, store, "familia", seedDoc())

	_, _, err := svc.ApplyPatch(context.Background(), "familia", "ana@example.com", core.Patch{
		ActiveProjectID: "p1",
		People:          &[]string{"Ana"},
	})
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}

// conflictingStore simulates a concurrent writer landing between load and
// save.
type conflictingStore struct {
	*storage.MemoryStore
}

func (s *conflictingStore) Save(ctx context.Context, slug string, doc []byte, baseVersion int64) (storage.Record, error) {
	if baseVersion > 0 {
		return storage.Record{}, storage.ErrVersionConflict
	}
	return s.MemoryStore.Save(ctx, slug, doc, baseVersion)
}

func TestMemberFlow(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	seedFamily(t, store, "familia", seedDoc())

	doc, _, err := svc.AddMember(ctx, "familia", "ana@example.com", "p1", core.Member{Email: "bia@example.com", Role: core.RoleEditor})
	if err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if !doc.FindProject("p1").HasMember("bia@example.com") {
		t.Error("member not added")
	}

	doc, _, err = svc.UpdateMemberRole(ctx, "familia", "ana@example.com", "p1", "bia@example.com", core.RoleViewer)
	if err != nil {
		t.Fatalf("UpdateMemberRole() error = %v", err)
	}
	if got := svc.Policy().RoleOf("bia@example.com", doc.FindProject("p1")); got != core.RoleViewer {
		t.Errorf("role = %q, want viewer", got)
	}

	doc, _, err = svc.RemoveMember(ctx, "familia", "ana@example.com", "p1", "bia@example.com")
	if err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}
	if doc.FindProject("p1").HasMember("bia@example.com") {
		t.Error("member still present")
	}

	if _, _, err := svc.AddMember(ctx, "familia", "lucas@example.com", "p1", core.Member{Email: "x@y.z", Role: core.RoleViewer}); !errors.Is(err, core.ErrForbidden) {
		t.Errorf("viewer AddMember() = %v, want ErrForbidden", err)
	}
}

func TestProjectSettlement(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	seedFamily(t, store, "familia", seedDoc())

	s, err := svc.ProjectSettlement(ctx, "familia", "lucas@example.com", "p1", SettlementFilter{})
	if err != nil {
		t.Fatalf("ProjectSettlement() error = %v", err)
	}
	if s.Total != 120 || s.Share != 60 {
		t.Errorf("total/share = %v/%v, want 120/60", s.Total, s.Share)
	}
	if len(s.Transfers) != 1 || s.Transfers[0].From != "Lucas" || s.Transfers[0].To != "Ana" || s.Transfers[0].Amount != 60 {
		t.Errorf("transfers = %+v, want Lucas -> Ana 60", s.Transfers)
	}

	// The month filter excludes everything outside the window.
	empty, err := svc.ProjectSettlement(ctx, "familia", "ana@example.com", "p1", SettlementFilter{Month: "2025-04"})
	if err != nil {
		t.Fatalf("ProjectSettlement() error = %v", err)
	}
	if empty.Total != 0 || len(empty.Transfers) != 0 {
		t.Errorf("filtered settlement = %+v, want empty", empty)
	}

	if _, err := svc.ProjectSettlement(ctx, "familia", "ana@example.com", "ghost", SettlementFilter{}); !errors.Is(err, core.ErrProjectNotFound) {
		t.Errorf("unknown project = %v, want ErrProjectNotFound", err)
	}
}
