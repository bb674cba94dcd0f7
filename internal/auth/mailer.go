package auth

import (
	"context"
	"log/slog"
)

// Mailer はメールアドレス確認リンクの送信先。
type Mailer interface {
	SendVerification(ctx context.Context, to, link string) error
}

// LogMailer は確認リンクを構造化ログに出力するMailer。
// SMTP等の送信手段を持たない環境で使用する。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを生成する。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendVerification は確認リンクをinfoログとして出力する。
func (m *LogMailer) SendVerification(ctx context.Context, to, link string) error {
	m.logger.InfoContext(ctx, "verification email",
		slog.String("to", to),
		slog.String("link", link),
	)
	return nil
}

var _ Mailer = (*LogMailer)(nil)
