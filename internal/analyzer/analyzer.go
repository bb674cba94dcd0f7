// Package analyzer はAIによるコードのデバッグ、改善、変換、生成を提供する。
// 応答のMarkdownはHTMLに変換し、サニタイズしてから返す。
package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hitoshi/skillnest/internal/gemini"
	"github.com/hitoshi/skillnest/internal/model"
	"github.com/hitoshi/skillnest/internal/security"
)

// Action はコード解析の種類を表す。
type Action string

const (
	ActionDebug    Action = "debug"
	ActionEnhance  Action = "enhance"
	ActionConvert  Action = "convert"
	ActionGenerate Action = "generate"
)

// MaxCodeLength は1回の解析で受け付けるコード・指示文の最大文字数。
const MaxCodeLength = 20000

// Gateway は解析に使うAIゲートウェイ。*gemini.Client が実装する。
type Gateway interface {
	AnalyzeCode(ctx context.Context, code string, action gemini.Action, targetLanguage string) (string, error)
	GenerateCode(ctx context.Context, prompt, language string) (string, error)
}

// Request は解析リクエストを表す。
type Request struct {
	Action         Action
	Code           string // debug, enhance, convert の対象
	Prompt         string // generate の指示文
	TargetLanguage string // convert の変換先
	Language       string // generate の出力言語（省略可）
}

// Result は解析結果を表す。TextはAIの応答そのもの、HTMLは表示用に変換したもの。
type Result struct {
	Action Action
	Text   string
	HTML   string
}

// Service はコード解析を提供する。
type Service struct {
	gateway   Gateway
	markdown  goldmark.Markdown
	sanitizer security.Sanitizer
}

// NewService はServiceを生成する。
func NewService(gateway Gateway, sanitizer security.Sanitizer) *Service {
	return &Service{
		gateway:   gateway,
		markdown:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
		sanitizer: sanitizer,
	}
}

// Validate はAIを呼び出す前にリクエストを検証する。
func Validate(req Request) error {
	switch req.Action {
	case ActionDebug, ActionEnhance, ActionConvert:
		if strings.TrimSpace(req.Code) == "" {
			return model.NewEmptyCodeError()
		}
		if utf8.RuneCountInString(req.Code) > MaxCodeLength {
			return model.NewValidationError(map[string]string{
				"code": fmt.Sprintf("Code must be at most %d characters", MaxCodeLength),
			})
		}
		if req.Action == ActionConvert && strings.TrimSpace(req.TargetLanguage) == "" {
			return model.NewTargetLanguageRequiredError()
		}
	case ActionGenerate:
		if strings.TrimSpace(req.Prompt) == "" {
			return model.NewEmptyPromptError()
		}
		if utf8.RuneCountInString(req.Prompt) > MaxCodeLength {
			return model.NewValidationError(map[string]string{
				"prompt": fmt.Sprintf("Prompt must be at most %d characters", MaxCodeLength),
			})
		}
	default:
		return model.NewInvalidActionError(string(req.Action))
	}
	return nil
}

// Run はリクエストを検証し、AIに解析を依頼する。失敗時の再試行は行わない。
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	var text string
	var err error
	if req.Action == ActionGenerate {
		text, err = s.gateway.GenerateCode(ctx, strings.TrimSpace(req.Prompt), strings.TrimSpace(req.Language))
	} else {
		text, err = s.gateway.AnalyzeCode(ctx, req.Code, gemini.Action(req.Action), strings.TrimSpace(req.TargetLanguage))
	}
	if err != nil {
		return nil, gemini.ToAPIError(err)
	}

	html, err := s.Render(text)
	if err != nil {
		return nil, err
	}
	return &Result{Action: req.Action, Text: text, HTML: html}, nil
}

// Render はMarkdownをサニタイズ済みのHTMLに変換する。
func (s *Service) Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return s.sanitizer.Sanitize(buf.String()), nil
}
