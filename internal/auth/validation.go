package auth

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/skillnest/internal/model"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// MaxPasswordBytes はbcryptが扱えるパスワードの最大バイト数。
const MaxPasswordBytes = 72

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// FieldErrors は入力項目名からエラーメッセージへの対応。空なら入力は妥当。
type FieldErrors map[string]string

// Valid はエラーが1件もないかを返す。
func (f FieldErrors) Valid() bool {
	return len(f) == 0
}

// AsError はエラーがあればバリデーションエラーを返し、なければnilを返す。
func (f FieldErrors) AsError() error {
	if f.Valid() {
		return nil
	}
	return model.NewValidationError(f)
}

// SignupForm はメールアドレスによる新規登録の入力を表す。
type SignupForm struct {
	FirstName  string
	LastName   string
	Email      string
	Password   string
	Profession string
}

// ValidateSignup は新規登録フォームを検証する。
// エラーが1件でもあれば登録は行わない。
func ValidateSignup(form SignupForm) FieldErrors {
	errs := FieldErrors{}
	if strings.TrimSpace(form.FirstName) == "" {
		errs["firstName"] = "First name is required"
	}
	if strings.TrimSpace(form.LastName) == "" {
		errs["lastName"] = "Last name is required"
	}
	checkEmail(errs, form.Email)
	checkPassword(errs, form.Password)
	if p := strings.TrimSpace(form.Profession); p != "" && !model.Profession(p).Valid() {
		errs["profession"] = "Profession must be student, developer, teacher, or other"
	}
	return errs
}

// ValidateLogin はログインフォームを検証する。
func ValidateLogin(email, password string) FieldErrors {
	errs := FieldErrors{}
	checkEmail(errs, email)
	checkPassword(errs, password)
	return errs
}

// ValidateEmail はメールアドレス単体を検証し、問題があればメッセージを返す。
func ValidateEmail(email string) (string, bool) {
	errs := FieldErrors{}
	checkEmail(errs, email)
	msg, bad := errs["email"]
	return msg, !bad
}

func checkEmail(errs FieldErrors, email string) {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		errs["email"] = "Email is required"
	case !emailPattern.MatchString(email):
		errs["email"] = "Email is invalid"
	}
}

func checkPassword(errs FieldErrors, password string) {
	switch {
	case password == "":
		errs["password"] = "Password is required"
	case utf8.RuneCountInString(password) < MinPasswordLength:
		errs["password"] = "Password must be at least 6 characters"
	case len(password) > MaxPasswordBytes:
		errs["password"] = "Password must be at most 72 bytes"
	}
}

// NormalizeEmail は比較・保存用にメールアドレスを正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
