package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rowbase/rowbase/adapters/metrics"
	"github.com/rowbase/rowbase/domain/realtime"
	"github.com/rowbase/rowbase/ports"
)

// RealtimeService fans change events out to subscribers. Events are
// processed strictly one at a time, which preserves per-table commit order
// end to end; within one event the per-subscriber authorization checks run
// concurrently, bounded by the worker limit.
type RealtimeService struct {
	source  ports.EventSource
	auth    ports.Authorizer
	ids     ports.IDGenerator
	workers int
	logger  zerolog.Logger
	metrics *metrics.Collector

	mu   sync.RWMutex
	subs map[string]*subscription
}

type subscription struct {
	sub      ports.Subscriber
	identity realtime.Identity

	mu     sync.Mutex
	tables map[string]bool
}

func (s *subscription) wants(table string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[table]
}

// RealtimeServiceDeps contains dependencies for the realtime service.
type RealtimeServiceDeps struct {
	Source  ports.EventSource
	Auth    ports.Authorizer
	IDs     ports.IDGenerator
	Workers int
	Logger  zerolog.Logger
	Metrics *metrics.Collector
}

// NewRealtimeService creates the fan-out service.
func NewRealtimeService(deps RealtimeServiceDeps) *RealtimeService {
	workers := deps.Workers
	if workers <= 0 {
		workers = 16
	}
	return &RealtimeService{
		source:  deps.Source,
		auth:    deps.Auth,
		ids:     deps.IDs,
		workers: workers,
		logger:  deps.Logger.With().Str("component", "realtime").Logger(),
		metrics: deps.Metrics,
		subs:    make(map[string]*subscription),
	}
}

// Register adds a connection with its authenticated identity. The
// connection receives nothing until it subscribes to at least one table.
func (s *RealtimeService) Register(sub ports.Subscriber, id realtime.Identity) {
	s.mu.Lock()
	s.subs[sub.ID()] = &subscription{sub: sub, identity: id, tables: make(map[string]bool)}
	s.mu.Unlock()
	s.metrics.SubscriptionsActive.Inc()
	s.logger.Debug().Str("subscriber", sub.ID()).Str("sub", id.Subject).Msg("subscriber registered")
}

// Unregister removes a connection entirely.
func (s *RealtimeService) Unregister(subID string) {
	s.mu.Lock()
	_, ok := s.subs[subID]
	delete(s.subs, subID)
	s.mu.Unlock()
	if ok {
		s.metrics.SubscriptionsActive.Dec()
		s.logger.Debug().Str("subscriber", subID).Msg("subscriber removed")
	}
}

// Subscribe adds a table to the connection's filter set.
func (s *RealtimeService) Subscribe(subID, table string) bool {
	s.mu.RLock()
	sub, ok := s.subs[subID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	sub.mu.Lock()
	sub.tables[table] = true
	sub.mu.Unlock()
	return true
}

// Unsubscribe removes a table from the connection's filter set.
func (s *RealtimeService) Unsubscribe(subID, table string) bool {
	s.mu.RLock()
	sub, ok := s.subs[subID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	sub.mu.Lock()
	delete(sub.tables, table)
	sub.mu.Unlock()
	return true
}

// Run consumes the event stream until ctx is cancelled or the stream
// closes. Delivery is at most once: events arriving while no subscriber is
// interested are simply dropped, and there is no replay.
func (s *RealtimeService) Run(ctx context.Context) error {
	events := s.source.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.dispatch(ctx, ev)
		}
	}
}

// dispatch authorizes and delivers one event. Each interested subscriber
// gets its own visibility check under its own identity; a check failure or
// timeout means that subscriber does not receive the event.
func (s *RealtimeService) dispatch(ctx context.Context, ev realtime.ChangeEvent) {
	s.mu.RLock()
	interested := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.wants(ev.Table) {
			interested = append(interested, sub)
		}
	}
	s.mu.RUnlock()
	if len(interested) == 0 {
		return
	}

	env := realtime.Envelope{
		Table:     ev.Table,
		Operation: ev.Operation,
		PK:        ev.PK,
		EventID:   s.ids.New(),
	}

	var dead []string
	var deadMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, sub := range interested {
		sub := sub
		g.Go(func() error {
			if !s.auth.IsVisible(gctx, ev, sub.identity) {
				return nil
			}
			if err := sub.sub.Send(env); err != nil {
				s.logger.Warn().Err(err).Str("subscriber", sub.sub.ID()).Msg("send failed, pruning subscriber")
				deadMu.Lock()
				dead = append(dead, sub.sub.ID())
				deadMu.Unlock()
				return nil
			}
			s.metrics.Deliveries.WithLabelValues(ev.Table).Inc()
			return nil
		})
	}
	// Goroutines never return errors; Wait is only a barrier so the next
	// event cannot overtake this one.
	_ = g.Wait()

	for _, id := range dead {
		s.Unregister(id)
	}
}
