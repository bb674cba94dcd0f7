package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hitoshi/skillnest/internal/model"
	"github.com/hitoshi/skillnest/internal/session"
	"github.com/hitoshi/skillnest/internal/typewriter"
)

type fakeSubscriber struct {
	mu     sync.Mutex
	userID string
	events chan session.Event
}

func (s *fakeSubscriber) Subscribe(userID string) (<-chan session.Event, func()) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
	return s.events, func() {}
}

type fakeTracker struct {
	mu       sync.Mutex
	channels []string
	active   int
}

func (t *fakeTracker) TrackWebSocket(channel string) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channels = append(t.channels, channel)
	t.active++
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.active--
	}
}

func (t *fakeTracker) tracked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.channels...)
}

// dialTest はテストサーバーにWebSocketで接続する。
func dialTest(t *testing.T, ctx context.Context, serverURL, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(serverURL, "http")+path, nil)
	if err != nil {
		t.Fatalf("websocket.Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func TestOriginPatterns(t *testing.T) {
	tests := []struct {
		origin string
		want   string
	}{
		{"http://localhost:3000", "localhost:3000"},
		{"https://skillnest.example.com", "skillnest.example.com"},
		{"", ""},
		{"not a url", ""},
	}
	for _, tt := range tests {
		got := strings.Join(originPatterns(tt.origin), ",")
		if got != tt.want {
			t.Errorf("originPatterns(%q) = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

// --- GET /auth/events ---

func TestEventsHandler_StreamsEventsUntilSignedOut(t *testing.T) {
	sub := &fakeSubscriber{events: make(chan session.Event, 4)}
	tracker := &fakeTracker{}
	h := NewEventsHandler(sub, tracker, "http://localhost:3000")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, withUserID(r, "user-1"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialTest(t, ctx, srv.URL, "/auth/events")

	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	sub.events <- session.Event{Type: session.EventSignedIn, UserID: "user-1", At: at}
	sub.events <- session.Event{Type: session.EventSignedOut, UserID: "user-1", At: at}

	var first, second session.Event
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read first event: %v", err)
	}
	if first.Type != session.EventSignedIn || !first.At.Equal(at) {
		t.Errorf("first = %+v", first)
	}
	if err := wsjson.Read(ctx, conn, &second); err != nil {
		t.Fatalf("read second event: %v", err)
	}
	if second.Type != session.EventSignedOut {
		t.Errorf("second = %+v", second)
	}

	// サインアウト後はサーバーから正常終了で閉じられる
	_, _, err := conn.Read(ctx)
	if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure {
		t.Errorf("close status = %v, want %v (err = %v)", status, websocket.StatusNormalClosure, err)
	}

	sub.mu.Lock()
	if sub.userID != "user-1" {
		t.Errorf("subscribed user = %q, want user-1", sub.userID)
	}
	sub.mu.Unlock()
	if got := tracker.tracked(); len(got) != 1 || got[0] != "session_events" {
		t.Errorf("tracked = %v", got)
	}
}

func TestEventsHandler_RequiresUser(t *testing.T) {
	h := NewEventsHandler(&fakeSubscriber{events: make(chan session.Event)}, nil, "")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/events", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestEventsHandler_RejectsForeignOrigin(t *testing.T) {
	h := NewEventsHandler(&fakeSubscriber{events: make(chan session.Event)}, nil, "http://localhost:3000")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, withUserID(r, "user-1"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/auth/events", &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err == nil {
		t.Fatal("expected dial to fail for a foreign origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %+v, want 403", resp)
	}
}

// --- /api/hero ---

func testHeroConfig() typewriter.Config {
	return typewriter.Config{
		Texts:         []string{"ab"},
		TypingSpeed:   time.Millisecond,
		DeletingSpeed: time.Millisecond,
		PauseTime:     2 * time.Millisecond,
		Loop:          true,
	}
}

func TestHeroHandler_Get(t *testing.T) {
	h := NewHeroHandler(typewriter.HeroConfig(), nil, "")

	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest(http.MethodGet, "/api/hero", nil))

	var body heroResponse
	decodeBody(t, w, &body)
	if len(body.Texts) != 4 || body.Texts[0] != "Master coding with AI assistance" {
		t.Errorf("texts = %v", body.Texts)
	}
	if body.TypingSpeedMs != 60 || body.DeletingSpeedMs != 50 || body.PauseTimeMs != 2000 || !body.Loop {
		t.Errorf("timings = %+v", body)
	}
}

func TestHeroHandler_Typewriter_StreamsFramesWithoutLoop(t *testing.T) {
	tracker := &fakeTracker{}
	h := NewHeroHandler(testHeroConfig(), tracker, "")
	srv := httptest.NewServer(http.HandlerFunc(h.Typewriter))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialTest(t, ctx, srv.URL, "/api/hero/typewriter?loop=false")

	want := []frameMessage{
		{Text: "a", Index: 0, Phase: "typing", DelayMs: 0},
		{Text: "ab", Index: 0, Phase: "paused", DelayMs: 0},
		{Text: "a", Index: 0, Phase: "deleting", DelayMs: 0},
		{Text: "", Index: 0, Phase: "deleting", DelayMs: 0},
	}
	for i, w := range want {
		var got frameMessage
		if err := wsjson.Read(ctx, conn, &got); err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		if got.Text != w.Text || got.Phase != w.Phase || got.Index != w.Index {
			t.Errorf("frame %d = %+v, want %+v", i, got, w)
		}
	}

	_, _, err := conn.Read(ctx)
	if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure {
		t.Errorf("close status = %v, want %v (err = %v)", status, websocket.StatusNormalClosure, err)
	}
	if got := tracker.tracked(); len(got) != 1 || got[0] != "typewriter" {
		t.Errorf("tracked = %v", got)
	}
}

func TestHeroHandler_Typewriter_InvalidLoop(t *testing.T) {
	h := NewHeroHandler(testHeroConfig(), nil, "")

	w := httptest.NewRecorder()
	h.Typewriter(w, httptest.NewRequest(http.MethodGet, "/api/hero/typewriter?loop=sometimes", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeInvalidFilter {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidFilter)
	}
}
