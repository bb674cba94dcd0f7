package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hitoshi/skillnest/internal/session"
)

// eventsPingInterval は接続維持のためのping間隔。
const eventsPingInterval = 30 * time.Second

// EventSubscriber はユーザー単位のセッションイベント購読インターフェース。
type EventSubscriber interface {
	Subscribe(userID string) (<-chan session.Event, func())
}

// ConnTracker はWebSocket接続数の計測インターフェース。
// TrackWebSocketは接続数を増やし、切断時に呼ぶ関数を返す。
type ConnTracker interface {
	TrackWebSocket(channel string) func()
}

// EventsHandler はセッションイベントをWebSocketで配信する。
type EventsHandler struct {
	subscriber     EventSubscriber
	tracker        ConnTracker
	originPatterns []string
	pingInterval   time.Duration
}

// NewEventsHandler はEventsHandlerを生成する。
// allowedOriginはCORSと同じ許可オリジン（例: http://localhost:3000）。trackerはnilでもよい。
func NewEventsHandler(subscriber EventSubscriber, tracker ConnTracker, allowedOrigin string) *EventsHandler {
	return &EventsHandler{
		subscriber:     subscriber,
		tracker:        tracker,
		originPatterns: originPatterns(allowedOrigin),
		pingInterval:   eventsPingInterval,
	}
}

// originPatterns は許可オリジンからwebsocket.AcceptOptions用のホストパターンを作る。
func originPatterns(allowedOrigin string) []string {
	if allowedOrigin == "" {
		return nil
	}
	u, err := url.Parse(allowedOrigin)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

// ServeHTTP はログイン中ユーザーのセッションイベントを配信する。
// サインアウトまたは期限切れを送った後に接続を閉じる。
// GET /auth/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Warn("failed to accept websocket",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	if h.tracker != nil {
		done := h.tracker.TrackWebSocket("session_events")
		defer done()
	}

	events, cancel := h.subscriber.Subscribe(userID)
	defer cancel()

	// クライアントからのメッセージは読み捨てる。切断時にctxがキャンセルされる
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		case e, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "subscription closed")
				return
			}
			if err := writeEvent(ctx, conn, e); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("failed to write session event",
						slog.String("user_id", userID),
						slog.String("error", err.Error()),
					)
				}
				return
			}
			if e.Type == session.EventSignedOut || e.Type == session.EventExpired {
				conn.Close(websocket.StatusNormalClosure, string(e.Type))
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, e session.Event) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}
