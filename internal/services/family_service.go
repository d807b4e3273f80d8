// Package services orchestrates family document operations across storage,
// schema migration, authorization and the update queue.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gastos/internal/core"
	applog "gastos/internal/log"
	"gastos/internal/storage"
)

// Publisher is the update notification seam. The AMQP client implements it;
// a nil publisher disables notifications.
type Publisher interface {
	PublishFamilyUpdated(ctx context.Context, slug string, version int64) error
}

// FamilyService loads, migrates, mutates and persists family documents.
type FamilyService struct {
	store     storage.Store
	publisher Publisher
	mutator   *core.Mutator
	now       func() time.Time
}

func NewFamilyService(store storage.Store, publisher Publisher, policy core.Policy) *FamilyService {
	return &FamilyService{
		store:     store,
		publisher: publisher,
		mutator:   core.NewMutator(policy),
		now:       time.Now,
	}
}

// Policy returns the authorization policy the service runs under.
func (s *FamilyService) Policy() core.Policy {
	return s.mutator.Policy
}

// GetFamily returns the migrated document and its stored version. A slug
// seen for the first time is created on read: the caller becomes owner of a
// synthesized default project, which is why anonymous reads of unknown slugs
// fail with ErrUnauthenticated.
//
// When migration changed an existing document the upgraded shape is written
// back best-effort; a write failure still serves the migrated document.
func (s *FamilyService) GetFamily(ctx context.Context, slug, identity string) (core.FamilyDocument, int64, error) {
	rec, err := s.store.Load(ctx, slug)
	if errors.Is(err, storage.ErrNotFound) {
		return s.createFamily(ctx, slug, identity)
	}
	if err != nil {
		return core.FamilyDocument{}, 0, fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
	}

	doc, changed, err := core.Normalize(rec.Doc, identity, s.now())
	if err != nil {
		return core.FamilyDocument{}, 0, err
	}
	if err := s.checkView(identity, doc); err != nil {
		return core.FamilyDocument{}, 0, err
	}

	version := rec.Version
	if changed {
		if saved, err := s.saveDoc(ctx, slug, doc, rec.Version); err != nil {
			slog.WarnContext(ctx, "Failed to persist migrated document, serving anyway",
				"slug", slug, "error", err)
		} else {
			version = saved.Version
		}
	}
	return doc, version, nil
}

func (s *FamilyService) createFamily(ctx context.Context, slug, identity string) (core.FamilyDocument, int64, error) {
	doc, _, err := core.Normalize(nil, identity, s.now())
	if err != nil {
		return core.FamilyDocument{}, 0, err
	}
	saved, err := s.saveDoc(ctx, slug, doc, 0)
	if err != nil {
		// Lost the creation race: someone else created the document between
		// our load and save. Serve theirs.
		if errors.Is(err, core.ErrConflict) {
			return s.GetFamily(ctx, slug, identity)
		}
		return core.FamilyDocument{}, 0, err
	}
	slog.InfoContext(ctx, "Family created on first read", "slug", slug)
	return doc, saved.Version, nil
}

// ApplyPatch runs the replace-style mutation flow: load, migrate, authorize
// and apply the patch, then persist against the loaded version. A concurrent
// writer surfaces as core.ErrConflict.
func (s *FamilyService) ApplyPatch(ctx context.Context, slug, identity string, patch core.Patch) (core.FamilyDocument, int64, error) {
	return s.mutate(ctx, slug, identity, func(doc core.FamilyDocument) (core.FamilyDocument, error) {
		return s.mutator.ApplyPatch(doc, identity, patch)
	})
}

// AddMember grants an email a role on one project.
func (s *FamilyService) AddMember(ctx context.Context, slug, identity, projectID string, member core.Member) (core.FamilyDocument, int64, error) {
	return s.mutate(ctx, slug, identity, func(doc core.FamilyDocument) (core.FamilyDocument, error) {
		return s.mutator.AddMember(doc, identity, projectID, member)
	})
}

// UpdateMemberRole changes an existing member's role on one project.
func (s *FamilyService) UpdateMemberRole(ctx context.Context, slug, identity, projectID, email string, role core.Role) (core.FamilyDocument, int64, error) {
	return s.mutate(ctx, slug, identity, func(doc core.FamilyDocument) (core.FamilyDocument, error) {
		return s.mutator.UpdateMemberRole(doc, identity, projectID, email, role)
	})
}

// RemoveMember drops an email from one project's member list.
func (s *FamilyService) RemoveMember(ctx context.Context, slug, identity, projectID, email string) (core.FamilyDocument, int64, error) {
	return s.mutate(ctx, slug, identity, func(doc core.FamilyDocument) (core.FamilyDocument, error) {
		return s.mutator.RemoveMember(doc, identity, projectID, email)
	})
}

// PatchProject applies a partial project edit.
func (s *FamilyService) PatchProject(ctx context.Context, slug, identity, projectID string, update core.ProjectUpdate) (core.FamilyDocument, int64, error) {
	return s.mutate(ctx, slug, identity, func(doc core.FamilyDocument) (core.FamilyDocument, error) {
		return s.mutator.PatchProject(doc, identity, projectID, update)
	})
}

func (s *FamilyService) mutate(ctx context.Context, slug, identity string, fn func(core.FamilyDocument) (core.FamilyDocument, error)) (core.FamilyDocument, int64, error) {
	identity = core.NormalizeEmail(identity)
	if identity == "" {
		return core.FamilyDocument{}, 0, core.ErrUnauthenticated
	}

	rec, err := s.store.Load(ctx, slug)
	if errors.Is(err, storage.ErrNotFound) {
		return core.FamilyDocument{}, 0, core.ErrFamilyNotFound
	}
	if err != nil {
		return core.FamilyDocument{}, 0, fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
	}

	doc, _, err := core.Normalize(rec.Doc, identity, s.now())
	if err != nil {
		return core.FamilyDocument{}, 0, err
	}

	next, err := fn(doc)
	if err != nil {
		return core.FamilyDocument{}, 0, err
	}

	saved, err := s.saveDoc(ctx, slug, next, rec.Version)
	if err != nil {
		return core.FamilyDocument{}, 0, err
	}

	s.publish(ctx, slug, saved.Version)
	applog.NewStructuredLogger(applog.FromContext(ctx)).
		LogDocumentSaved(ctx, slug, saved.Version, len(next.Expenses))
	return next, saved.Version, nil
}

func (s *FamilyService) saveDoc(ctx context.Context, slug string, doc core.FamilyDocument, baseVersion int64) (storage.Record, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return storage.Record{}, fmt.Errorf("marshal document: %w", err)
	}
	saved, err := s.store.Save(ctx, slug, raw, baseVersion)
	if errors.Is(err, storage.ErrVersionConflict) {
		return storage.Record{}, core.ErrConflict
	}
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Record{}, core.ErrFamilyNotFound
	}
	if err != nil {
		return storage.Record{}, fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
	}
	return saved, nil
}

func (s *FamilyService) publish(ctx context.Context, slug string, version int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishFamilyUpdated(ctx, slug, version); err != nil {
		// The write already landed; the export worker catches up on the
		// next notification.
		slog.ErrorContext(ctx, "Failed to publish family updated message",
			"slug", slug, "version", version, "error", err)
	}
}

func (s *FamilyService) checkView(identity string, doc core.FamilyDocument) error {
	if identity == "" {
		return core.ErrUnauthenticated
	}
	for i := range doc.Projects {
		if s.mutator.Policy.CanView(identity, &doc.Projects[i]) {
			return nil
		}
	}
	return core.ErrForbidden
}

// SettlementFilter narrows which expenses enter a settlement run. Zero
// values mean no filtering on that axis. Month is a "YYYY-MM" prefix.
type SettlementFilter struct {
	Month    string
	Who      string
	Category string
}

// ProjectSettlement computes the equal-split settlement for one project.
// Participants are the family's people roster; payers outside the roster
// still count toward the total but cannot receive transfers.
func (s *FamilyService) ProjectSettlement(ctx context.Context, slug, identity, projectID string, filter SettlementFilter) (core.Settlement, error) {
	doc, _, err := s.GetFamily(ctx, slug, identity)
	if err != nil {
		return core.Settlement{}, err
	}
	project := doc.FindProject(projectID)
	if project == nil {
		return core.Settlement{}, core.ErrProjectNotFound
	}
	if !s.mutator.Policy.CanView(identity, project) {
		return core.Settlement{}, core.ErrForbidden
	}

	expenses := make([]core.Expense, 0, len(doc.Expenses))
	for _, e := range doc.ProjectExpenses(projectID) {
		if filter.Month != "" && !strings.HasPrefix(e.Date, filter.Month) {
			continue
		}
		if filter.Who != "" && e.Who != filter.Who {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		expenses = append(expenses, e)
	}

	participants := doc.People
	if len(participants) == 0 {
		seen := make(map[string]bool)
		for _, e := range expenses {
			if !seen[e.Who] {
				seen[e.Who] = true
				participants = append(participants, e.Who)
			}
		}
	}

	return core.Settle(expenses, participants), nil
}

// Close releases the storage connection.
func (s *FamilyService) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
