package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Action はコード解析の種類を表す。
type Action string

const (
	ActionDebug   Action = "debug"
	ActionEnhance Action = "enhance"
	ActionConvert Action = "convert"
)

var (
	// ErrTargetLanguageRequired は convert で変換先言語が未指定の場合のエラー。
	ErrTargetLanguageRequired = errors.New("target language is required for code conversion")
	// ErrInvalidAction は未対応の解析アクションのエラー。
	ErrInvalidAction = errors.New("invalid code analysis action")
)

// AnalyzeCode はコードのデバッグ、改善、言語変換を行う。
func (c *Client) AnalyzeCode(ctx context.Context, code string, action Action, targetLanguage string) (string, error) {
	prompt, err := analysisPrompt(code, action, targetLanguage)
	if err != nil {
		return "", err
	}
	return c.generate(ctx, "analyze_"+string(action), textContents(prompt), "Failed to generate text")
}

// GenerateCode は指示文からコードを生成する。languageは省略可能。
func (c *Client) GenerateCode(ctx context.Context, prompt, language string) (string, error) {
	full := "Generate code for the following: " + prompt
	if language != "" {
		full = fmt.Sprintf("Generate %s code for the following: %s", language, prompt)
	}
	return c.generate(ctx, "generate_code", textContents(full), "Failed to generate text")
}

// IsTechnicalQuestion は質問が技術的な内容かをモデルに判定させる。
// 判定の呼び出しに失敗した場合は、正当な質問を弾かないようtrueを返す。
func (c *Client) IsTechnicalQuestion(ctx context.Context, question string) bool {
	prompt := `Determine if the following question is related to technical topics such as programming, computer science, software development, algorithms, databases, or technology. Respond with only "true" if it's technical or "false" if it's not technical.

Question: ` + question

	answer, err := c.generate(ctx, "classify", textContents(prompt), "Failed to generate text")
	if err != nil {
		return true
	}
	return strings.ToLower(strings.TrimSpace(answer)) == "true"
}

func textContents(prompt string) []content {
	return []content{{Parts: []part{{Text: prompt}}}}
}

func analysisPrompt(code string, action Action, targetLanguage string) (string, error) {
	switch action {
	case ActionDebug:
		return "Debug the following code. Identify any errors, bugs, or potential issues, and provide a fixed version of the code:\n\n" +
			fence(code) +
			"\nPlease provide:\n1. A list of issues found\n2. The corrected code\n3. An explanation of the fixes", nil
	case ActionEnhance:
		return "Enhance the following code to improve its quality. Look for opportunities to optimize performance, improve readability, and follow best practices:\n\n" +
			fence(code) +
			"\nPlease provide:\n1. The enhanced code\n2. A list of improvements made\n3. Explanation of how these improvements help", nil
	case ActionConvert:
		if strings.TrimSpace(targetLanguage) == "" {
			return "", ErrTargetLanguageRequired
		}
		return fmt.Sprintf("Convert the following code to %s:\n\n", targetLanguage) +
			fence(code) +
			fmt.Sprintf("\nPlease provide:\n1. The converted code in %s\n2. Any notes about the conversion process or language-specific considerations", targetLanguage), nil
	default:
		return "", ErrInvalidAction
	}
}

func fence(code string) string {
	return "```\n" + code + "\n```\n"
}
