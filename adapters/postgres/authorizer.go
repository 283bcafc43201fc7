package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/rowbase/rowbase/adapters/metrics"
	"github.com/rowbase/rowbase/domain/realtime"
	"github.com/rowbase/rowbase/domain/schema"
	"github.com/rowbase/rowbase/domain/sqlgen"
	"github.com/rowbase/rowbase/ports"
)

// Authorizer decides per-subscriber row visibility by re-querying the
// changed row under the database's own row-level security. The re-query is
// the load-bearing design decision: the table's declared policy is the
// single source of truth, with no parallel authorization logic to keep in
// sync. Cost is one round-trip per (event, subscriber), which is why the
// fan-out bounds its concurrency.
type Authorizer struct {
	db      *DB
	timeout time.Duration
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewAuthorizer creates an authorizer. timeout bounds each check; a
// timed-out check denies.
func NewAuthorizer(db *DB, timeout time.Duration, logger zerolog.Logger, m *metrics.Collector) *Authorizer {
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	return &Authorizer{
		db:      db,
		timeout: timeout,
		logger:  logger.With().Str("component", "authorizer").Logger(),
		metrics: m,
	}
}

// IsVisible reports whether the identity may see the changed row. Any
// error, including a timeout, means not visible; authorization never fails
// open and never surfaces a hard failure to the subscriber.
func (a *Authorizer) IsVisible(ctx context.Context, ev realtime.ChangeEvent, id realtime.Identity) bool {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	visible, err := a.check(ctx, ev, id)
	a.metrics.AuthCheckDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		a.metrics.AuthDenials.WithLabelValues(reason).Inc()
		a.logger.Debug().Err(err).
			Str("table", ev.Table).
			Str("subject", id.Subject).
			Msg("visibility check failed, denying")
		return false
	}
	if !visible {
		a.metrics.AuthDenials.WithLabelValues("policy").Inc()
	}
	return visible
}

func (a *Authorizer) check(ctx context.Context, ev realtime.ChangeEvent, id realtime.Identity) (bool, error) {
	// The table name comes from our own trigger, but it still goes through
	// the validator before it is embedded in SQL.
	if err := schema.ValidateIdentifier(ev.Table); err != nil {
		return false, err
	}

	tx, err := a.db.Pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	// Claims become session-local settings the table policies read; the
	// role switch puts row-level security in force. Both revert at
	// transaction end.
	_, err = tx.Exec(ctx, `
		SELECT set_config('rowbase.claims.sub', $1, true),
		       set_config('rowbase.claims.role', $2, true)
	`, id.Subject, id.Role)
	if err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, "SET LOCAL ROLE "+RealtimeRole); err != nil {
		// Migrate grants the role to the connecting user; if that grant is
		// missing every check fails here and all subscribers go dark.
		a.logger.Warn().Err(err).
			Str("role", RealtimeRole).
			Msg("role switch failed, check that the database user is a member of the realtime role")
		return false, err
	}

	var one int
	err = tx.QueryRow(ctx, "SELECT 1 FROM "+sqlgen.QuoteIdent(ev.Table)+" WHERE id = $1 LIMIT 1", ev.PK).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Ensure interface compliance.
var _ ports.Authorizer = (*Authorizer)(nil)
