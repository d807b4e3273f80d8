// Package worker exports settlement snapshots in response to document
// update notifications. A periodic sweep over every stored family backs up
// the queue in case notifications are lost.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"gastos/internal/amqp"
	"gastos/internal/core"
	"gastos/internal/export"
	"gastos/internal/storage"
)

type ExportWorker struct {
	store     storage.Store
	writer    export.SnapshotWriter
	batchSize int
	now       func() time.Time
}

func NewExportWorker(store storage.Store, writer export.SnapshotWriter, batchSize int) *ExportWorker {
	if batchSize < 1 {
		batchSize = 1
	}
	return &ExportWorker{
		store:     store,
		writer:    writer,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// HandleFamilyUpdated processes a single update notification from AMQP. An
// error makes the delivery requeue, so only genuine export failures return
// one; families deleted between publish and consume are skipped.
func (w *ExportWorker) HandleFamilyUpdated(ctx context.Context, msg *amqp.FamilyUpdatedMessage) error {
	slog.InfoContext(ctx, "Processing family updated message",
		"slug", msg.Slug,
		"version", msg.Version)

	return w.exportFamily(ctx, msg.Slug)
}

func (w *ExportWorker) exportFamily(ctx context.Context, slug string) error {
	rec, err := w.store.Load(ctx, slug)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "Family vanished before export, skipping", "slug", slug)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load family %s: %w", slug, err)
	}

	doc, _, err := core.Normalize(rec.Doc, "", w.now())
	if err != nil {
		// A stored document with no project cannot be upgraded without a
		// creator identity. Nothing to export either way.
		slog.WarnContext(ctx, "Skipping unexportable document", "slug", slug, "error", err)
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.batchSize)

	for i := range doc.Projects {
		project := doc.Projects[i]
		g.Go(func() error {
			expenses := doc.ProjectExpenses(project.ID)
			settlement := core.Settle(expenses, participants(doc, expenses))

			snap := export.ProjectSnapshot{
				Slug:        slug,
				ProjectID:   project.ID,
				ProjectName: project.Name,
				Version:     rec.Version,
				GeneratedAt: w.now(),
				Settlement:  settlement,
			}
			if err := w.writer.WriteSnapshot(ctx, snap); err != nil {
				return fmt.Errorf("export project %s of %s: %w", project.ID, slug, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Family exported",
		"slug", slug,
		"version", rec.Version,
		"projects", len(doc.Projects))
	return nil
}

// participants mirrors the settlement endpoint: the people roster when it
// exists, distinct payers otherwise.
func participants(doc core.FamilyDocument, expenses []core.Expense) []string {
	if len(doc.People) > 0 {
		return doc.People
	}
	var payers []string
	seen := make(map[string]bool)
	for _, e := range expenses {
		if !seen[e.Who] {
			seen[e.Who] = true
			payers = append(payers, e.Who)
		}
	}
	return payers
}

// SweepAll exports every stored family. Runs at startup and on a timer as a
// backup for lost notifications; per-family failures are logged and the
// sweep moves on.
func (w *ExportWorker) SweepAll(ctx context.Context) error {
	slugs, err := w.store.Slugs(ctx)
	if err != nil {
		return fmt.Errorf("list families for sweep: %w", err)
	}
	if len(slugs) == 0 {
		slog.InfoContext(ctx, "No families to sweep")
		return nil
	}

	slog.InfoContext(ctx, "Sweeping stored families", "count", len(slugs))

	successCount := 0
	errorCount := 0
	for _, slug := range slugs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.exportFamily(ctx, slug); err != nil {
			slog.ErrorContext(ctx, "Failed to export family during sweep",
				"slug", slug, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Sweep completed",
		"total", len(slugs),
		"exported", successCount,
		"errors", errorCount)
	return nil
}
