package user

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/hitoshi/skillnest/internal/model"
	"github.com/hitoshi/skillnest/internal/session"
)

// --- モック定義 ---

type mockUserStore struct {
	findByIDFn      func(ctx context.Context, id string) (*model.User, error)
	updateProfileFn func(ctx context.Context, user *model.User) error
	deleteByIDFn    func(ctx context.Context, id string) error
}

func (m *mockUserStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockUserStore) UpdateProfile(ctx context.Context, user *model.User) error {
	return m.updateProfileFn(ctx, user)
}

func (m *mockUserStore) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFn(ctx, id)
}

type mockProgressStore struct {
	listByUserIDFn   func(ctx context.Context, userID string) ([]model.ChallengeProgress, error)
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockProgressStore) ListByUserID(ctx context.Context, userID string) ([]model.ChallengeProgress, error) {
	return m.listByUserIDFn(ctx, userID)
}

func (m *mockProgressStore) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFn(ctx, userID)
}

type mockSessionDeleter struct {
	deleteByUserIDFn func(ctx context.Context, userID string) (int64, error)
}

func (m *mockSessionDeleter) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	return m.deleteByUserIDFn(ctx, userID)
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

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil))
}

func strPtr(s string) *string { return &s }

func existingUser(id string) *model.User {
	return &model.User{
		ID:         id,
		Email:      "ada@example.com",
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Profession: model.ProfessionDeveloper,
	}
}

// --- テスト ---

func TestService_GetProfile(t *testing.T) {
	users := &mockUserStore{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return existingUser(id), nil
		},
	}
	progress := &mockProgressStore{
		listByUserIDFn: func(ctx context.Context, userID string) ([]model.ChallengeProgress, error) {
			return []model.ChallengeProgress{
				{ChallengeID: "1", Percent: 100, Completed: true},
				{ChallengeID: "2", Percent: 40},
				{ChallengeID: "5", Percent: 100, Completed: true},
			}, nil
		},
	}
	svc := NewService(users, progress, nil, &recordingPublisher{}, newTestLogger())

	profile, err := svc.GetProfile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetProfile がエラーを返した: %v", err)
	}
	if profile.ID != "user-1" || profile.FirstName != "Ada" {
		t.Errorf("user = %+v", profile.User)
	}
	if profile.CompletedChallenges != 2 {
		t.Errorf("CompletedChallenges = %d, want 2", profile.CompletedChallenges)
	}
}

func TestService_GetProfile_UserNotFound(t *testing.T) {
	users := &mockUserStore{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) { return nil, nil },
	}
	progress := &mockProgressStore{
		listByUserIDFn: func(ctx context.Context, userID string) ([]model.ChallengeProgress, error) { return nil, nil },
	}
	svc := NewService(users, progress, nil, &recordingPublisher{}, newTestLogger())

	_, err := svc.GetProfile(context.Background(), "ghost")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("error = %v, want USER_NOT_FOUND", err)
	}
}

func TestService_GetProfile_RepositoryError(t *testing.T) {
	users := &mockUserStore{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) { return existingUser(id), nil },
	}
	progress := &mockProgressStore{
		listByUserIDFn: func(ctx context.Context, userID string) ([]model.ChallengeProgress, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := NewService(users, progress, nil, &recordingPublisher{}, newTestLogger())

	if _, err := svc.GetProfile(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error when progress lookup fails")
	}
}

func TestService_LoadProfile(t *testing.T) {
	users := &mockUserStore{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			if id == "user-1" {
				return existingUser(id), nil
			}
			return nil, nil
		},
	}
	svc := NewService(users, nil, nil, &recordingPublisher{}, newTestLogger())

	u, err := svc.LoadProfile(context.Background(), "user-1")
	if err != nil || u.Email != "ada@example.com" {
		t.Fatalf("LoadProfile = %+v, %v", u, err)
	}
	if _, err := svc.LoadProfile(context.Background(), "ghost"); err == nil {
		t.Error("expected error for missing user")
	}
}

func TestService_UpdateProfile_AppliesOnlyProvidedFields(t *testing.T) {
	var saved *model.User
	users := &mockUserStore{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			u := existingUser(id)
			u.Bio = "old bio"
			return u, nil
		},
		updateProfileFn: func(ctx context.Context, user *model.User) error {
			saved = user
			return nil
		},
	}
	svc := NewService(users, nil, nil, &recordingPublisher{}, newTestLogger())

	got, err := svc.UpdateProfile(context.Background(), "user-1", model.ProfileUpdate{
		FirstName:  strPtr("  Grace "),
		Profession: strPtr("teacher"),
		GitHub:     strPtr("https://github.com/grace"),
	})
	if err != nil {
		t.Fatalf("UpdateProfile がエラーを返した: %v", err)
	}
	if saved == nil {
		t.Fatal("expected UpdateProfile to be called on the store")
	}
	if got.FirstName != "Grace" {
		t.Errorf("FirstName = %q, want %q", got.FirstName, "Grace")
	}
	if got.LastName != "Lovelace" {
		t.Errorf("LastName = %q, want unchanged", got.LastName)
	}
	if got.Profession != model.ProfessionTeacher {
		t.Errorf("Profession = %q, want teacher", got.Profession)
	}
	if got.Bio != "old bio" {
		t.Errorf("Bio = %q, want unchanged", got.Bio)
	}
	if got.GitHub != "https://github.com/grace" {
		t.Errorf("GitHub = %q", got.GitHub)
	}
}

func TestService_UpdateProfile_Validation(t *testing.T) {
	tests := []struct {
		name   string
		update model.ProfileUpdate
		field  string
	}{
		{"blank first name", model.ProfileUpdate{FirstName: strPtr("   ")}, "firstName"},
		{"blank last name", model.ProfileUpdate{LastName: strPtr("")}, "lastName"},
		{"unknown profession", model.ProfileUpdate{Profession: strPtr("astronaut")}, "profession"},
		{"long bio", model.ProfileUpdate{Bio: strPtr(strings.Repeat("あ", MaxBioLength+1))}, "bio"},
		{"javascript link", model.ProfileUpdate{GitHub: strPtr("javascript://alert(1)")}, "github"},
		{"handle with spaces", model.ProfileUpdate{Twitter: strPtr("my handle")}, "twitter"},
		{"long link", model.ProfileUpdate{LinkedIn: strPtr(strings.Repeat("a", MaxLinkLength+1))}, "linkedin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			users := &mockUserStore{
				findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
					called = true
					return existingUser(id), nil
				},
			}
			svc := NewService(users, nil, nil, &recordingPublisher{}, newTestLogger())

			_, err := svc.UpdateProfile(context.Background(), "user-1", tt.update)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidationFailed {
				t.Fatalf("error = %v, want VALIDATION_FAILED", err)
			}
			if _, ok := apiErr.Fields[tt.field]; !ok {
				t.Errorf("Fields = %v, want key %q", apiErr.Fields, tt.field)
			}
			if called {
				t.Error("store should not be touched when validation fails")
			}
		})
	}
}

func TestValidateProfileUpdate_AcceptsHandlesAndClearing(t *testing.T) {
	errs := ValidateProfileUpdate(model.ProfileUpdate{
		GitHub:   strPtr("octocat"),
		Twitter:  strPtr("@ada"),
		LinkedIn: strPtr(""),
		Bio:      strPtr(""),
	})
	if len(errs) != 0 {
		t.Errorf("errors = %v, want none", errs)
	}
}

// TestService_Withdraw は退会処理が関連データを順に削除しSignedOutを発行することを検証する。
func TestService_Withdraw(t *testing.T) {
	var order []string
	users := &mockUserStore{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return existingUser(id), nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			order = append(order, "user")
			return nil
		},
	}
	progress := &mockProgressStore{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			order = append(order, "progress")
			return nil
		},
	}
	sessions := &mockSessionDeleter{
		deleteByUserIDFn: func(ctx context.Context, userID string) (int64, error) {
			order = append(order, "sessions")
			return 2, nil
		},
	}
	pub := &recordingPublisher{}
	svc := NewService(users, progress, sessions, pub, newTestLogger())

	if err := svc.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}

	want := []string{"progress", "sessions", "user"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("削除順序 = %v, want %v", order, want)
	}
	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	if e := pub.events[0]; e.Type != session.EventSignedOut || e.UserID != "user-1" {
		t.Errorf("event = %+v", e)
	}
}

// TestService_Withdraw_UserNotFound は存在しないユーザーの退会がエラーになることを検証する。
func TestService_Withdraw_UserNotFound(t *testing.T) {
	users := &mockUserStore{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}
	pub := &recordingPublisher{}
	svc := NewService(users, nil, nil, pub, newTestLogger())

	err := svc.Withdraw(context.Background(), "nonexistent-user")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("error = %v, want USER_NOT_FOUND", err)
	}
	if len(pub.events) != 0 {
		t.Errorf("published %d events, want 0", len(pub.events))
	}
}

func TestService_Withdraw_StopsOnSessionError(t *testing.T) {
	userDeleted := false
	users := &mockUserStore{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) { return existingUser(id), nil },
		deleteByIDFn: func(ctx context.Context, id string) error {
			userDeleted = true
			return nil
		},
	}
	progress := &mockProgressStore{
		deleteByUserIDFn: func(ctx context.Context, userID string) error { return nil },
	}
	sessions := &mockSessionDeleter{
		deleteByUserIDFn: func(ctx context.Context, userID string) (int64, error) {
			return 0, errors.New("db down")
		},
	}
	pub := &recordingPublisher{}
	svc := NewService(users, progress, sessions, pub, newTestLogger())

	if err := svc.Withdraw(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error")
	}
	if userDeleted {
		t.Error("user should not be deleted after session deletion failed")
	}
	if len(pub.events) != 0 {
		t.Error("SignedOut should not be published after failure")
	}
}
