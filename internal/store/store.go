// Package store implements the node-local metadata store: per-task result
// slots and reference counts.
package store

import (
	"context"

	"github.com/taskmesh/dagcore/internal/dag"
)

// MetadataStore is the external interface for the shared metadata store.
// Its storage engine is out of scope here; only the operations a
// scheduler needs against it are defined. SetResult is local-only;
// ExportResult is cluster-visible and carries an initial refcount used
// for result-placement cleanup.
type MetadataStore interface {
	HasResult(ctx context.Context, id dag.TaskID) (bool, error)
	GetResult(ctx context.Context, id dag.TaskID) (any, error)
	SetResult(ctx context.Context, id dag.TaskID, value any) error
	ExportResult(ctx context.Context, id dag.TaskID, value any, initialRefcount int) error
	DecrResultRefcount(ctx context.Context, id dag.TaskID) (int, error)
	Reset(ctx context.Context, dropdb bool) error
	Close() error
}
