// Package export defines the outbound port for publishing settlement
// snapshots to external sinks. The worker depends on this interface; the
// Google Sheets client implements it.
package export

import (
	"context"
	"time"

	"gastos/internal/core"
)

// ProjectSnapshot is one project's settlement state at a point in time.
type ProjectSnapshot struct {
	Slug        string
	ProjectID   string
	ProjectName string
	Version     int64
	GeneratedAt time.Time
	Settlement  core.Settlement
}

// SnapshotWriter publishes project snapshots to an external sink.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, snap ProjectSnapshot) error
}
