// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/rowbase/rowbase/domain/realtime"
	"github.com/rowbase/rowbase/domain/schema"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Schema Ports
// -----------------------------------------------------------------------------

// TableStore persists table definitions (the schema registry). Write
// operations take the already-compiled DDL and must execute it in the same
// transaction as the registry mutation so the registry and the physical
// catalog can never diverge: if the DDL fails, the registry row is rolled
// back with it.
type TableStore interface {
	// Create registers a definition and runs its CREATE TABLE (and
	// accompanying) statements atomically. Returns *schema.ConflictError on
	// a name collision.
	Create(ctx context.Context, def schema.TableDefinition, ddl []string) error

	Get(ctx context.Context, id string) (schema.TableDefinition, error)
	GetByName(ctx context.Context, name string) (schema.TableDefinition, error)
	List(ctx context.Context) ([]schema.TableDefinition, error)

	// UpdateMetadata persists metadata fields (public, realtime flag,
	// timestamps) and runs any accompanying DDL (e.g. a policy swap)
	// atomically.
	UpdateMetadata(ctx context.Context, def schema.TableDefinition, ddl []string) error

	// UpdateSchema persists a changed column set together with the single
	// ALTER TABLE statement that produced it, atomically.
	UpdateSchema(ctx context.Context, def schema.TableDefinition, ddl string) error

	// Delete removes the registry row and runs the DROP TABLE atomically.
	Delete(ctx context.Context, def schema.TableDefinition, ddl []string) error
}

// Catalog reads the live database catalog. It is the source of truth when
// the registry and the physical schema disagree.
type Catalog interface {
	Columns(ctx context.Context, table string) ([]schema.CatalogColumn, error)
	TableExists(ctx context.Context, table string) (bool, error)
	TriggerExists(ctx context.Context, table string) (bool, error)
}

// TriggerManager installs and removes per-table change triggers. Both
// operations are idempotent.
type TriggerManager interface {
	Enable(ctx context.Context, table string) error
	Disable(ctx context.Context, table string) error
}

// -----------------------------------------------------------------------------
// Row Data Ports
// -----------------------------------------------------------------------------

// RowStore reads and writes rows of user tables. Implementations bind all
// values as parameters; identifiers must be validated by the caller.
type RowStore interface {
	Insert(ctx context.Context, table string, columns []string, values []any) (map[string]any, error)
	Get(ctx context.Context, table, rowID string) (map[string]any, error)
	List(ctx context.Context, table string, limit, offset int) ([]map[string]any, error)
	Update(ctx context.Context, table, rowID string, columns []string, values []any) (map[string]any, error)
	Delete(ctx context.Context, table, rowID string) error
}

// -----------------------------------------------------------------------------
// Realtime Ports
// -----------------------------------------------------------------------------

// EventSource produces decoded change events. The postgres listener is the
// only production implementation; exactly one instance may run, because a
// second LISTEN connection would duplicate every event.
type EventSource interface {
	// Run blocks, maintaining the listen connection until ctx is cancelled.
	Run(ctx context.Context) error
	// Events returns the stream of decoded change events.
	Events() <-chan realtime.ChangeEvent
}

// Authorizer decides whether an identity may see a changed row. Errors and
// timeouts mean "not visible" (fail closed); the method therefore returns
// only a bool.
type Authorizer interface {
	IsVisible(ctx context.Context, ev realtime.ChangeEvent, id realtime.Identity) bool
}

// Subscriber is one live realtime connection as seen by the fan-out. Send
// must not block indefinitely; a send error marks the subscriber dead and
// it is pruned.
type Subscriber interface {
	// ID identifies the connection for logging and pruning.
	ID() string
	// Send pushes one authorized event to the subscriber.
	Send(env realtime.Envelope) error
}
