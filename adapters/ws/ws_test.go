package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rowbase/rowbase/adapters/auth"
	"github.com/rowbase/rowbase/adapters/idgen"
	"github.com/rowbase/rowbase/adapters/metrics"
	"github.com/rowbase/rowbase/adapters/ws"
	"github.com/rowbase/rowbase/app"
	"github.com/rowbase/rowbase/domain/realtime"
)

const testSecret = "ws-test-secret"

type fakeSource struct {
	ch chan realtime.ChangeEvent
}

func (f *fakeSource) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeSource) Events() <-chan realtime.ChangeEvent { return f.ch }

type authFunc func(ev realtime.ChangeEvent, id realtime.Identity) bool

func (f authFunc) IsVisible(_ context.Context, ev realtime.ChangeEvent, id realtime.Identity) bool {
	return f(ev, id)
}

type fixture struct {
	srv    *httptest.Server
	tokens *auth.TokenService
	source *fakeSource
}

func newFixture(t *testing.T, authorize authFunc) *fixture {
	t.Helper()
	source := &fakeSource{ch: make(chan realtime.ChangeEvent, 16)}
	collector, _ := metrics.New()
	hub := app.NewRealtimeService(app.RealtimeServiceDeps{
		Source:  source,
		Auth:    authorize,
		IDs:     idgen.NewSequential("ev_"),
		Workers: 4,
		Logger:  zerolog.Nop(),
		Metrics: collector,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	tokens := auth.NewTokenService(testSecret)
	handler := ws.NewHandler(tokens, hub, idgen.NewSequential("conn_"), zerolog.Nop())
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, tokens: tokens, source: source}
}

func (f *fixture) dial(t *testing.T, subject string) *websocket.Conn {
	t.Helper()
	token, err := f.tokens.Sign(realtime.Identity{Subject: subject, Role: "authenticated"}, time.Minute)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) realtime.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env realtime.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

func TestRejectsMissingToken(t *testing.T) {
	f := newFixture(t, func(realtime.ChangeEvent, realtime.Identity) bool { return true })

	resp, err := http.Get(f.srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestRejectsBadToken(t *testing.T) {
	f := newFixture(t, func(realtime.ChangeEvent, realtime.Identity) bool { return true })

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial with bad token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 handshake response, got %+v", resp)
	}
}

func TestSubscribeAndReceive(t *testing.T) {
	f := newFixture(t, func(realtime.ChangeEvent, realtime.Identity) bool { return true })
	conn := f.dial(t, "u1")

	if err := conn.WriteJSON(map[string]string{"action": "subscribe", "channel": "table:articles"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// The subscribe frame races the event; give the read pump a moment.
	time.Sleep(100 * time.Millisecond)

	f.source.ch <- realtime.ChangeEvent{Table: "articles", Operation: realtime.OpInsert, PK: "r1"}

	env := readEnvelope(t, conn)
	if env.Table != "articles" || env.Operation != realtime.OpInsert || env.PK != "r1" {
		t.Errorf("unexpected envelope: %+v", env)
	}
	if env.EventID == "" {
		t.Error("event id missing")
	}
}

func TestUnsubscribedReceivesNothing(t *testing.T) {
	f := newFixture(t, func(realtime.ChangeEvent, realtime.Identity) bool { return true })
	conn := f.dial(t, "u1")
	receiver := f.dial(t, "u2")

	if err := conn.WriteJSON(map[string]string{"action": "subscribe", "channel": "table:comments"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := receiver.WriteJSON(map[string]string{"action": "subscribe", "channel": "table:articles"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	f.source.ch <- realtime.ChangeEvent{Table: "articles", Operation: realtime.OpUpdate, PK: "r1"}

	// The receiver gets the event; the other connection must see nothing.
	readEnvelope(t, receiver)
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var env realtime.Envelope
	if err := conn.ReadJSON(&env); err == nil {
		t.Errorf("connection subscribed to another table received %+v", env)
	}
}

func TestAuthorizationDenied(t *testing.T) {
	f := newFixture(t, func(_ realtime.ChangeEvent, id realtime.Identity) bool {
		return id.Subject == "owner"
	})
	allowed := f.dial(t, "owner")
	denied := f.dial(t, "stranger")

	for _, conn := range []*websocket.Conn{allowed, denied} {
		if err := conn.WriteJSON(map[string]string{"action": "subscribe", "channel": "table:secrets"}); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	time.Sleep(100 * time.Millisecond)

	f.source.ch <- realtime.ChangeEvent{Table: "secrets", Operation: realtime.OpInsert, PK: "r1"}

	readEnvelope(t, allowed)
	denied.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var env realtime.Envelope
	if err := denied.ReadJSON(&env); err == nil {
		t.Errorf("unauthorized subscriber received %+v", env)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	f := newFixture(t, func(realtime.ChangeEvent, realtime.Identity) bool { return true })
	conn := f.dial(t, "u1")
	probe := f.dial(t, "u2")

	for _, c := range []*websocket.Conn{conn, probe} {
		if err := c.WriteJSON(map[string]string{"action": "subscribe", "channel": "table:articles"}); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	time.Sleep(100 * time.Millisecond)
	if err := conn.WriteJSON(map[string]string{"action": "unsubscribe", "channel": "table:articles"}); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	f.source.ch <- realtime.ChangeEvent{Table: "articles", Operation: realtime.OpInsert, PK: "r1"}

	readEnvelope(t, probe)
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var env realtime.Envelope
	if err := conn.ReadJSON(&env); err == nil {
		t.Errorf("unsubscribed connection received %+v", env)
	}
}

func TestBadFrameGetsErrorReply(t *testing.T) {
	f := newFixture(t, func(realtime.ChangeEvent, realtime.Identity) bool { return true })
	conn := f.dial(t, "u1")

	if err := conn.WriteJSON(map[string]string{"action": "subscribe", "channel": "not-a-table-channel"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read error reply: %v", err)
	}
	if reply.Error.Code != "invalid_channel" {
		t.Errorf("code = %s, want invalid_channel", reply.Error.Code)
	}

	if err := conn.WriteJSON(map[string]string{"action": "shout", "channel": "table:articles"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read error reply: %v", err)
	}
	if reply.Error.Code != "invalid_action" {
		t.Errorf("code = %s, want invalid_action", reply.Error.Code)
	}
}
