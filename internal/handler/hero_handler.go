package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hitoshi/skillnest/internal/model"
	"github.com/hitoshi/skillnest/internal/typewriter"
)

// HeroHandler はトップページのヒーローセクション用のハンドラー。
type HeroHandler struct {
	config         typewriter.Config
	tracker        ConnTracker
	originPatterns []string
}

// NewHeroHandler はHeroHandlerを生成する。trackerはnilでもよい。
func NewHeroHandler(config typewriter.Config, tracker ConnTracker, allowedOrigin string) *HeroHandler {
	return &HeroHandler{
		config:         config,
		tracker:        tracker,
		originPatterns: originPatterns(allowedOrigin),
	}
}

type heroResponse struct {
	Texts           []string `json:"texts"`
	TypingSpeedMs   int64    `json:"typingSpeedMs"`
	DeletingSpeedMs int64    `json:"deletingSpeedMs"`
	PauseTimeMs     int64    `json:"pauseTimeMs"`
	Loop            bool     `json:"loop"`
}

type frameMessage struct {
	Text    string `json:"text"`
	Index   int    `json:"index"`
	Phase   string `json:"phase"`
	DelayMs int64  `json:"delayMs"`
}

// Get はキャッチコピーと表示タイミングを返す。クライアント側でアニメーションする場合に使う。
// GET /api/hero
func (h *HeroHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, heroResponse{
		Texts:           h.config.Texts,
		TypingSpeedMs:   h.config.TypingSpeed.Milliseconds(),
		DeletingSpeedMs: h.config.DeletingSpeed.Milliseconds(),
		PauseTimeMs:     h.config.PauseTime.Milliseconds(),
		Loop:            h.config.Loop,
	})
}

// Typewriter はタイプライター表示のフレームをWebSocketで配信する。
// loop=falseの場合は最初の文字列を消し終えた時点で接続を閉じる。
// GET /api/hero/typewriter?loop=true
func (h *HeroHandler) Typewriter(w http.ResponseWriter, r *http.Request) {
	cfg := h.config
	if v := r.URL.Query().Get("loop"); v != "" {
		loop, err := strconv.ParseBool(v)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidFilterError("loop", v))
			return
		}
		cfg.Loop = loop
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
		done := h.tracker.TrackWebSocket("typewriter")
		defer done()
	}

	ctx := conn.CloseRead(r.Context())

	err = typewriter.Play(ctx, typewriter.New(cfg), func(f typewriter.Frame) error {
		return writeFrame(ctx, conn, f)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("typewriter stream ended", slog.String("error", err.Error()))
		return
	}
	conn.Close(websocket.StatusNormalClosure, "done")
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f typewriter.Frame) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, frameMessage{
		Text:    f.Text,
		Index:   f.Index,
		Phase:   string(f.Phase),
		DelayMs: f.Delay.Milliseconds(),
	})
}
