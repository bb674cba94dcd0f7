package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/skillnest/internal/model"
	"github.com/hitoshi/skillnest/internal/session"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// mockExecutor はExecutorのテスト用モック。SQLクエリと引数を記録する。
type mockExecutor struct {
	mu         sync.Mutex
	execCalled bool
	query      string
	args       []any
	result     sql.Result
	err        error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execCalled = true
	m.query = query
	m.args = args
	return m.result, m.err
}

type mockSessionDeleter struct {
	expired []model.Session
	err     error
	calls   int
}

func (m *mockSessionDeleter) DeleteExpired(ctx context.Context) ([]model.Session, error) {
	m.calls++
	return m.expired, m.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []session.Event
}

func (p *recordingPublisher) Publish(e session.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

type fixture struct {
	db       *mockExecutor
	sessions *mockSessionDeleter
	pub      *recordingPublisher
	logs     *bytes.Buffer
	job      *CleanupJob
}

func newFixture() *fixture {
	fx := &fixture{
		db:       &mockExecutor{result: &fakeResult{rowsAffected: 0}},
		sessions: &mockSessionDeleter{},
		pub:      &recordingPublisher{},
		logs:     &bytes.Buffer{},
	}
	fx.job = NewCleanupJob(fx.sessions, fx.db, fx.pub, newTestLogger(fx.logs))
	return fx
}

// logEntries はJSONログを行ごとにデコードする。
func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e map[string]any
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("failed to parse log line: %v\n%s", err, line)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestNewCleanupJob_DefaultRetentionDays(t *testing.T) {
	fx := newFixture()
	if fx.job.NewsRetentionDays != 90 {
		t.Errorf("NewsRetentionDays = %d, want 90", fx.job.NewsRetentionDays)
	}
}

func TestPurgeExpiredSessions_PublishesExpiredPerUser(t *testing.T) {
	fx := newFixture()
	fx.sessions.expired = []model.Session{
		{ID: "s1", UserID: "alice"},
		{ID: "s2", UserID: "bob"},
		{ID: "s3", UserID: "alice"},
	}

	n, err := fx.job.PurgeExpiredSessions(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpiredSessions がエラーを返した: %v", err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}
	if len(fx.pub.events) != 2 {
		t.Fatalf("events = %+v, want 2 (one per user)", fx.pub.events)
	}
	for i, want := range []string{"alice", "bob"} {
		e := fx.pub.events[i]
		if e.Type != session.EventExpired || e.UserID != want {
			t.Errorf("events[%d] = %+v, want Expired for %s", i, e, want)
		}
		if e.At.IsZero() {
			t.Errorf("events[%d].At should be set", i)
		}
	}
}

func TestPurgeExpiredSessions_NoneExpired_NoEvents(t *testing.T) {
	fx := newFixture()

	n, err := fx.job.PurgeExpiredSessions(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpiredSessions がエラーを返した: %v", err)
	}
	if n != 0 || len(fx.pub.events) != 0 {
		t.Errorf("deleted = %d, events = %d, want 0, 0", n, len(fx.pub.events))
	}
}

func TestPurgeExpiredSessions_Error(t *testing.T) {
	fx := newFixture()
	fx.sessions.err = errors.New("connection refused")

	if _, err := fx.job.PurgeExpiredSessions(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(fx.pub.events) != 0 {
		t.Errorf("events should not be published on error: %+v", fx.pub.events)
	}
	if !strings.Contains(fx.logs.String(), "期限切れセッションの削除に失敗しました") {
		t.Errorf("エラーログが出力されるべき: %s", fx.logs.String())
	}
}

func TestPurgeOldNews_ExecutesDeleteQuery(t *testing.T) {
	fx := newFixture()
	fx.db.result = &fakeResult{rowsAffected: 42}

	n, err := fx.job.PurgeOldNews(context.Background())
	if err != nil {
		t.Fatalf("PurgeOldNews がエラーを返した: %v", err)
	}
	if n != 42 {
		t.Errorf("deleted = %d, want 42", n)
	}
	if !strings.Contains(fx.db.query, "DELETE FROM news_items") {
		t.Errorf("query = %q, want DELETE FROM news_items", fx.db.query)
	}
	if !strings.Contains(fx.db.query, "published_at") {
		t.Errorf("query should filter by published_at: %q", fx.db.query)
	}
	if len(fx.db.args) != 1 || fx.db.args[0] != "90 days" {
		t.Errorf("args = %v, want [90 days]", fx.db.args)
	}

	entries := logEntries(t, fx.logs)
	last := entries[len(entries)-1]
	if last["deleted_count"] != float64(42) {
		t.Errorf("deleted_count = %v, want 42", last["deleted_count"])
	}
	if last["retention_days"] != float64(90) {
		t.Errorf("retention_days = %v, want 90", last["retention_days"])
	}
	if _, ok := last["duration_ms"]; !ok {
		t.Error("duration_ms should be logged")
	}
}

func TestPurgeOldNews_CustomRetentionDays(t *testing.T) {
	fx := newFixture()
	fx.job.NewsRetentionDays = 7

	if _, err := fx.job.PurgeOldNews(context.Background()); err != nil {
		t.Fatalf("PurgeOldNews がエラーを返した: %v", err)
	}
	if fx.db.args[0] != "7 days" {
		t.Errorf("args[0] = %v, want 7 days", fx.db.args[0])
	}
}

func TestPurgeOldNews_DBFailure(t *testing.T) {
	fx := newFixture()
	fx.db.err = errors.New("database connection lost")

	if _, err := fx.job.PurgeOldNews(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(fx.logs.String(), "database connection lost") {
		t.Errorf("エラー内容がログに出力されるべき: %s", fx.logs.String())
	}
}

func TestRun_ContinuesAfterSessionFailure(t *testing.T) {
	fx := newFixture()
	fx.sessions.err = errors.New("boom")

	err := fx.job.Run(context.Background())
	if err == nil {
		t.Fatal("expected joined error")
	}
	if !fx.db.execCalled {
		t.Error("news purge should run even if session purge fails")
	}
}

func TestRun_Scope(t *testing.T) {
	tests := []struct {
		name         string
		scope        Scope
		wantSessions bool
		wantNews     bool
	}{
		{"all", ScopeAll, true, true},
		{"sessions only", ScopeSessions, true, false},
		{"news only", ScopeNews, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture()
			fx.job.Scope = tt.scope

			if err := fx.job.Run(context.Background()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := fx.sessions.calls > 0; got != tt.wantSessions {
				t.Errorf("session purge ran = %v, want %v", got, tt.wantSessions)
			}
			if fx.db.execCalled != tt.wantNews {
				t.Errorf("news purge ran = %v, want %v", fx.db.execCalled, tt.wantNews)
			}
		})
	}
}

func TestStart_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	fx := newFixture()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		fx.job.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		fx.db.mu.Lock()
		called := fx.db.execCalled
		fx.db.mu.Unlock()
		if called {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Start should run the job immediately")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
