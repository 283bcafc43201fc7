package postgres

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/rowbase/rowbase/adapters/metrics"
	"github.com/rowbase/rowbase/domain/realtime"
	"github.com/rowbase/rowbase/domain/sqlgen"
	"github.com/rowbase/rowbase/ports"
)

// Listener holds the single LISTEN connection and decodes inbound change
// notifications. Exactly one Listener may run per process: a second LISTEN
// connection would duplicate every event. It is a pure event source; which
// tables emit is encoded by trigger existence, not tracked here.
//
// State machine: Disconnected -> Connecting -> Listening -> Disconnected on
// error, then Connecting again with capped exponential backoff. No replay is
// attempted after a reconnect.
type Listener struct {
	url      string
	logger   zerolog.Logger
	metrics  *metrics.Collector
	events   chan realtime.ChangeEvent
	minDelay time.Duration
	maxDelay time.Duration
}

// ListenerConfig configures the listener.
type ListenerConfig struct {
	// URL is the Postgres connection string. The listener dials its own
	// connection rather than borrowing from the pool, because LISTEN binds
	// to a session.
	URL string
	// Buffer is the event channel capacity; a full buffer applies
	// back-pressure to the connection rather than dropping events.
	Buffer int
	// MinDelay/MaxDelay bound the reconnect backoff.
	MinDelay time.Duration
	MaxDelay time.Duration
	Logger   zerolog.Logger
	Metrics  *metrics.Collector
}

// NewListener creates a listener. Call Run to start it.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Listener{
		url:      cfg.URL,
		logger:   cfg.Logger.With().Str("component", "listener").Logger(),
		metrics:  cfg.Metrics,
		events:   make(chan realtime.ChangeEvent, cfg.Buffer),
		minDelay: cfg.MinDelay,
		maxDelay: cfg.MaxDelay,
	}
}

// Events returns the decoded change event stream. The channel is closed
// when Run returns.
func (l *Listener) Events() <-chan realtime.ChangeEvent {
	return l.events
}

// Run connects, listens and decodes until ctx is cancelled. Connection
// failures are retried with exponential backoff; decode failures are logged
// and dropped, never fatal.
func (l *Listener) Run(ctx context.Context) error {
	defer close(l.events)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.minDelay
	bo.MaxInterval = l.maxDelay
	bo.MaxElapsedTime = 0

	for {
		var conn *pgx.Conn
		err := backoff.Retry(func() error {
			c, err := l.connect(ctx)
			if err != nil {
				l.logger.Warn().Err(err).Msg("connect failed, backing off")
				return err
			}
			conn = c
			return nil
		}, backoff.WithContext(bo, ctx))
		if err != nil {
			// Retry only gives up when ctx is done.
			return ctx.Err()
		}

		bo.Reset()
		l.logger.Info().Str("channel", sqlgen.Channel).Msg("listening for change notifications")

		err = l.consume(ctx, conn)
		conn.Close(context.Background())
		if ctx.Err() != nil {
			return ctx.Err()
		}

		l.metrics.ListenerReconnects.Inc()
		disc := &realtime.DisconnectedError{Err: err}
		l.logger.Warn().Err(disc).Msg("listen connection lost, reconnecting")
	}
}

func (l *Listener) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, l.url)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+sqlgen.Channel); err != nil {
		conn.Close(context.Background())
		return nil, err
	}
	return conn, nil
}

// consume decodes notifications until the connection or the context fails.
func (l *Listener) consume(ctx context.Context, conn *pgx.Conn) error {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}

		ev, err := realtime.DecodeEvent([]byte(n.Payload))
		if err != nil {
			l.metrics.EventsDropped.WithLabelValues("malformed").Inc()
			l.logger.Warn().Err(err).Str("payload", n.Payload).Msg("dropping malformed change payload")
			continue
		}
		l.metrics.EventsDecoded.Inc()

		select {
		case l.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Ensure interface compliance.
var _ ports.EventSource = (*Listener)(nil)
