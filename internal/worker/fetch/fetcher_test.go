package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/skillnest/internal/model"
)

// mockIngester はIngesterのテスト用モック。
type mockIngester struct {
	calledWith []model.ParsedNewsItem
	inserted   int
	err        error
}

func (m *mockIngester) Ingest(_ context.Context, _ *model.NewsFeed, items []model.ParsedNewsItem) (int, int, error) {
	m.calledWith = items
	return m.inserted, len(items) - m.inserted, m.err
}

// mockGuard はURLValidatorのテスト用モック。
type mockGuard struct {
	validateErr error
}

func (m *mockGuard) ValidateURL(_ string) error {
	return m.validateErr
}

type recordedFetch struct {
	mu       sync.Mutex
	results  []string
	inserted int
	updated  int
}

func (r *recordedFetch) RecordNewsItems(inserted, updated int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserted += inserted
	r.updated += updated
}

func (r *recordedFetch) RecordNewsFetch(result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <image><url>https://example.com/logo.png</url><title>t</title><link>https://example.com</link></image>
    <item>
      <title>Article 1</title>
      <link>https://example.com/article1</link>
      <guid>guid-1</guid>
      <description>Summary 1</description>
    </item>
    <item>
      <title>Article 2</title>
      <link>https://example.com/article2</link>
      <guid>guid-2</guid>
      <description><![CDATA[<img src="https://cdn.example.com/2.png">text]]></description>
    </item>
  </channel>
</rss>`

type fetcherFixture struct {
	fetcher  *Fetcher
	repo     *mockFeedRepo
	ingester *mockIngester
	recorder *recordedFetch
	logs     *bytes.Buffer
}

func newFetcherFixture(t *testing.T, guard *mockGuard, cfg FetcherConfig) *fetcherFixture {
	t.Helper()
	fx := &fetcherFixture{
		repo:     &mockFeedRepo{},
		ingester: &mockIngester{inserted: 1},
		recorder: &recordedFetch{},
		logs:     &bytes.Buffer{},
	}
	if guard == nil {
		guard = &mockGuard{}
	}
	fx.fetcher = NewFetcher(fx.repo, fx.ingester, guard, &http.Client{Timeout: 5 * time.Second},
		fx.recorder, newTestLogger(fx.logs), cfg)
	return fx
}

func TestFetcher_Fetch_Success200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "SkillNest/") {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("Last-Modified", "Wed, 01 Jan 2025 00:00:00 GMT")
		fmt.Fprint(w, sampleRSS)
	}))
	defer server.Close()

	fx := newFetcherFixture(t, nil, FetcherConfig{Interval: time.Hour})
	feed := &model.NewsFeed{ID: "feed-1", FeedURL: server.URL, FetchStatus: model.FetchStatusActive, ConsecutiveErrors: 3}

	if err := fx.fetcher.Fetch(context.Background(), feed); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}

	if feed.ETag != `"abc123"` || feed.LastModified != "Wed, 01 Jan 2025 00:00:00 GMT" {
		t.Errorf("validators = %q / %q", feed.ETag, feed.LastModified)
	}
	if feed.Title != "Test Feed" {
		t.Errorf("Title = %q, want %q", feed.Title, "Test Feed")
	}
	if feed.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", feed.ConsecutiveErrors)
	}
	if d := time.Until(feed.NextFetchAt); d < 59*time.Minute || d > time.Hour {
		t.Errorf("NextFetchAt in %v, want about 1h", d)
	}

	items := fx.ingester.calledWith
	if len(items) != 2 {
		t.Fatalf("Ingest に渡された記事数 = %d, want 2", len(items))
	}
	if items[0].ImageURL != "https://example.com/logo.png" {
		t.Errorf("items[0].ImageURL = %q, want feed image fallback", items[0].ImageURL)
	}
	if items[1].ImageURL != "https://cdn.example.com/2.png" {
		t.Errorf("items[1].ImageURL = %q, want first <img>", items[1].ImageURL)
	}
	if len(fx.repo.updated) != 1 {
		t.Errorf("UpdateFetchState 呼び出し回数 = %d, want 1", len(fx.repo.updated))
	}
	if fx.recorder.results[0] != "ok" {
		t.Errorf("recorded = %v", fx.recorder.results)
	}
	if fx.recorder.inserted != 1 {
		t.Errorf("recorded inserted = %d, want 1", fx.recorder.inserted)
	}
	if !strings.Contains(fx.logs.String(), "フィードフェッチが完了しました") {
		t.Errorf("完了ログが出力されるべき: %s", fx.logs.String())
	}
}

func TestFetcher_Fetch_ConditionalGET(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != `"etag-1"` {
			t.Errorf("If-None-Match = %q", r.Header.Get("If-None-Match"))
		}
		if r.Header.Get("If-Modified-Since") != "Wed, 01 Jan 2025 00:00:00 GMT" {
			t.Errorf("If-Modified-Since = %q", r.Header.Get("If-Modified-Since"))
		}
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	fx := newFetcherFixture(t, nil, FetcherConfig{})
	feed := &model.NewsFeed{
		ID: "feed-1", FeedURL: server.URL, FetchStatus: model.FetchStatusActive,
		ETag: `"etag-1"`, LastModified: "Wed, 01 Jan 2025 00:00:00 GMT", ConsecutiveErrors: 2,
	}

	if err := fx.fetcher.Fetch(context.Background(), feed); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}
	if fx.ingester.calledWith != nil {
		t.Error("304では記事を保存しない")
	}
	if feed.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", feed.ConsecutiveErrors)
	}
	if fx.recorder.results[0] != "not_modified" {
		t.Errorf("recorded = %v", fx.recorder.results)
	}
}

func TestFetcher_Fetch_StatusHandling(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus model.FetchStatus
		wantErrors int
	}{
		{"404 stops", http.StatusNotFound, model.FetchStatusStopped, 0},
		{"410 stops", http.StatusGone, model.FetchStatusStopped, 0},
		{"403 stops", http.StatusForbidden, model.FetchStatusStopped, 0},
		{"429 backs off", http.StatusTooManyRequests, model.FetchStatusActive, 1},
		{"500 backs off", http.StatusInternalServerError, model.FetchStatusActive, 1},
		{"unexpected status backs off", http.StatusTeapot, model.FetchStatusActive, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			fx := newFetcherFixture(t, nil, FetcherConfig{})
			feed := &model.NewsFeed{ID: "feed-1", FeedURL: server.URL, FetchStatus: model.FetchStatusActive}

			if err := fx.fetcher.Fetch(context.Background(), feed); err != nil {
				t.Fatalf("Fetch() がエラーを返した: %v", err)
			}
			if feed.FetchStatus != tt.wantStatus {
				t.Errorf("FetchStatus = %q, want %q", feed.FetchStatus, tt.wantStatus)
			}
			if feed.ConsecutiveErrors != tt.wantErrors {
				t.Errorf("ConsecutiveErrors = %d, want %d", feed.ConsecutiveErrors, tt.wantErrors)
			}
			if len(fx.repo.updated) != 1 {
				t.Errorf("UpdateFetchState 呼び出し回数 = %d, want 1", len(fx.repo.updated))
			}
		})
	}
}

func TestFetcher_Fetch_URLValidationStopsFeed(t *testing.T) {
	fx := newFetcherFixture(t, &mockGuard{validateErr: errors.New("blocked IP address: 10.0.0.1")}, FetcherConfig{})
	feed := &model.NewsFeed{ID: "feed-1", FeedURL: "http://10.0.0.1/rss", FetchStatus: model.FetchStatusActive}

	if err := fx.fetcher.Fetch(context.Background(), feed); err == nil {
		t.Fatal("URL検証失敗時はエラーを返すべき")
	}
	if feed.FetchStatus != model.FetchStatusStopped {
		t.Errorf("FetchStatus = %q, want stopped", feed.FetchStatus)
	}
	if len(fx.repo.updated) != 1 {
		t.Error("停止状態が保存されるべき")
	}
}

func TestFetcher_Fetch_ParseFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not a feed")
	}))
	defer server.Close()

	fx := newFetcherFixture(t, nil, FetcherConfig{})
	feed := &model.NewsFeed{ID: "feed-1", FeedURL: server.URL, FetchStatus: model.FetchStatusActive, ConsecutiveErrors: 9}

	if err := fx.fetcher.Fetch(context.Background(), feed); err != nil {
		t.Fatalf("パース失敗はエラーを返さない: %v", err)
	}
	if feed.ConsecutiveErrors != 10 || feed.FetchStatus != model.FetchStatusStopped {
		t.Errorf("feed = %+v, want stopped after 10 failures", feed)
	}
	if fx.recorder.results[0] != "parse_error" {
		t.Errorf("recorded = %v", fx.recorder.results)
	}
}

func TestFetcher_Fetch_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleRSS)
	}))
	defer server.Close()

	fx := newFetcherFixture(t, nil, FetcherConfig{MaxBodySize: 64})
	feed := &model.NewsFeed{ID: "feed-1", FeedURL: server.URL, FetchStatus: model.FetchStatusActive}

	if err := fx.fetcher.Fetch(context.Background(), feed); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}
	if feed.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", feed.ConsecutiveErrors)
	}
	if fx.ingester.calledWith != nil {
		t.Error("サイズ超過時は記事を保存しない")
	}
}

func TestFetcher_Fetch_IngestErrorBacksOff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleRSS)
	}))
	defer server.Close()

	fx := newFetcherFixture(t, nil, FetcherConfig{})
	fx.ingester.err = errors.New("db down")
	feed := &model.NewsFeed{ID: "feed-1", FeedURL: server.URL, FetchStatus: model.FetchStatusActive}

	if err := fx.fetcher.Fetch(context.Background(), feed); err == nil {
		t.Fatal("保存失敗時はエラーを返すべき")
	}
	if feed.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", feed.ConsecutiveErrors)
	}
}

func TestFetcher_Fetch_ConnectionError(t *testing.T) {
	fx := newFetcherFixture(t, nil, FetcherConfig{})
	feed := &model.NewsFeed{ID: "feed-1", FeedURL: "http://127.0.0.1:1/rss", FetchStatus: model.FetchStatusActive}

	if err := fx.fetcher.Fetch(context.Background(), feed); err == nil {
		t.Fatal("接続失敗時はエラーを返すべき")
	}
	if feed.ConsecutiveErrors != 1 || feed.NextFetchAt.Before(time.Now().Add(29*time.Minute)) {
		t.Errorf("feed = %+v, want 30min backoff", feed)
	}
	if fx.recorder.results[0] != "error" {
		t.Errorf("recorded = %v", fx.recorder.results)
	}
}
