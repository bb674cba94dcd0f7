// Package gemini はGemini generateContent APIのクライアントを提供する。
// プロンプトやチャット履歴をリクエスト形式に変換し、最初の候補のテキストを取り出す。
// 失敗時の自動リトライは行わない。
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/skillnest/internal/model"
)

const (
	// DefaultBaseURL はGemini APIのモデルエンドポイント。
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	// DefaultModel はテキスト生成に使うモデル名。
	DefaultModel = "gemini-pro"

	// maxResponseSize はレスポンスボディの読み取り上限。
	maxResponseSize = 4 << 20
)

// ErrEmptyResponse は候補が1件も返らなかった場合のエラー。
var ErrEmptyResponse = errors.New("gemini returned no candidates")

// UpstreamError はGemini APIが2xx以外を返した場合のエラー。
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return e.Message
}

// BlockedError は安全性ポリシーにより応答がブロックされた場合のエラー。
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return "Response blocked: " + e.Reason
}

// Recorder はAPI呼び出し結果の計測先。
type Recorder interface {
	RecordAIRequest(operation, outcome string, duration time.Duration)
}

// Config はClientの接続設定を表す。
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Client はGemini APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	recorder   Recorder
	apiKey     string
	model      string
	baseURL    string // テスト用に差し替え可能
}

// NewClient はClientを生成する。recorderはnilでもよい。
func NewClient(httpClient *http.Client, logger *slog.Logger, recorder Recorder, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		recorder:   recorder,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}
}

type request struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	SafetySettings   []safetySetting  `json:"safetySettings"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type response struct {
	Candidates []struct {
		Content *content `json:"content"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type errorBody struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var defaultGenerationConfig = generationConfig{
	Temperature:     0.7,
	TopK:            40,
	TopP:            0.95,
	MaxOutputTokens: 2048,
}

var defaultSafetySettings = []safetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
}

// GenerateText は単一プロンプトからテキストを生成する。
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, "generate_text", []content{{Parts: []part{{Text: prompt}}}}, "Failed to generate text")
}

// Chat はチャット履歴全体を送信して次の応答を生成する。
// role が model 以外のメッセージはすべて user として送る。
func (c *Client) Chat(ctx context.Context, messages []model.ChatMessage) (string, error) {
	contents := make([]content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == model.RoleModel {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	return c.generate(ctx, "chat", contents, "Failed to generate chat response")
}

func (c *Client) generate(ctx context.Context, operation string, contents []content, fallbackMsg string) (string, error) {
	start := time.Now()
	text, err := c.do(ctx, contents, fallbackMsg)
	c.record(operation, err, time.Since(start))
	if err != nil {
		c.logger.Warn("Gemini APIの呼び出しに失敗しました",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
		return "", err
	}
	return text, nil
}

func (c *Client) do(ctx context.Context, contents []content, fallbackMsg string) (string, error) {
	body, err := json.Marshal(request{
		Contents:         contents,
		GenerationConfig: defaultGenerationConfig,
		SafetySettings:   defaultSafetySettings,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error はAPIキーを含むURLを持つため、原因のみを返す。
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read gemini response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fallbackMsg
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error != nil && eb.Error.Message != "" {
			msg = eb.Error.Message
		}
		return "", &UpstreamError{StatusCode: resp.StatusCode, Message: msg}
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode gemini response: %w", err)
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", &BlockedError{Reason: out.PromptFeedback.BlockReason}
	}
	if len(out.Candidates) == 0 || out.Candidates[0].Content == nil || len(out.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func (c *Client) record(operation string, err error, d time.Duration) {
	if c.recorder == nil {
		return
	}
	outcome := "success"
	var blocked *BlockedError
	switch {
	case err == nil:
	case errors.As(err, &blocked):
		outcome = "blocked"
	default:
		outcome = "error"
	}
	c.recorder.RecordAIRequest(operation, outcome, d)
}
