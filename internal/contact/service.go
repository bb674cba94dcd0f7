// Package contact はお問い合わせフォームの受付を提供する。
package contact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/skillnest/internal/auth"
	"github.com/hitoshi/skillnest/internal/model"
	"github.com/hitoshi/skillnest/internal/repository"
)

// メッセージ本文の文字数制限。
const (
	MinMessageLength = 10
	MaxMessageLength = 5000
	MaxNameLength    = 100
)

// Form はお問い合わせフォームの入力を表す。
type Form struct {
	Name     string
	Email    string
	Category string
	Message  string
}

// Validate はフォームを検証する。
func Validate(f Form) auth.FieldErrors {
	errs := auth.FieldErrors{}
	switch n := utf8.RuneCountInString(strings.TrimSpace(f.Name)); {
	case n == 0:
		errs["name"] = "Name is required"
	case n > MaxNameLength:
		errs["name"] = fmt.Sprintf("Name must be at most %d characters", MaxNameLength)
	}
	if msg, ok := auth.ValidateEmail(f.Email); !ok {
		errs["email"] = msg
	}
	if c := strings.TrimSpace(f.Category); c != "" && !validCategory(model.ContactCategory(c)) {
		errs["category"] = "Category must be general, support, feedback, or partnership"
	}
	switch n := utf8.RuneCountInString(strings.TrimSpace(f.Message)); {
	case n < MinMessageLength:
		errs["message"] = fmt.Sprintf("Message must be at least %d characters", MinMessageLength)
	case n > MaxMessageLength:
		errs["message"] = fmt.Sprintf("Message must be at most %d characters", MaxMessageLength)
	}
	return errs
}

func validCategory(c model.ContactCategory) bool {
	switch c {
	case model.ContactGeneral, model.ContactSupport, model.ContactFeedback, model.ContactPartnership:
		return true
	}
	return false
}

// Service はお問い合わせを検証して保存する。
type Service struct {
	repo   repository.ContactRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ContactRepository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Submit はフォームを検証し、メッセージを保存する。
func (s *Service) Submit(ctx context.Context, f Form) (*model.ContactMessage, error) {
	if err := Validate(f).AsError(); err != nil {
		return nil, err
	}

	category := model.ContactCategory(strings.TrimSpace(f.Category))
	if category == "" {
		category = model.ContactGeneral
	}
	msg := &model.ContactMessage{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(f.Name),
		Email:     auth.NormalizeEmail(f.Email),
		Category:  category,
		Message:   strings.TrimSpace(f.Message),
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("お問い合わせの保存に失敗しました: %w", err)
	}

	s.logger.InfoContext(ctx, "お問い合わせを受け付けました",
		slog.String("contact_id", msg.ID),
		slog.String("category", string(msg.Category)),
	)
	return msg, nil
}
