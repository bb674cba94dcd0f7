// Package model はドメインモデルを定義する。
package model

import "time"

// Profession はプロフィールの職業区分を表す。
type Profession string

const (
	ProfessionStudent   Profession = "student"
	ProfessionDeveloper Profession = "developer"
	ProfessionTeacher   Profession = "teacher"
	ProfessionOther     Profession = "other"
)

// Valid は定義済みの職業区分かどうかを返す。
func (p Profession) Valid() bool {
	switch p {
	case ProfessionStudent, ProfessionDeveloper, ProfessionTeacher, ProfessionOther:
		return true
	}
	return false
}

// Progress はカテゴリごとの学習進捗（0〜100のパーセント）を表す。
type Progress struct {
	Coding     int
	Algorithms int
	Frameworks int
}

// User はサービス利用ユーザーとそのプロフィールを表す。
// Coins と Progress はチャレンジ完了時にのみ更新される。
type User struct {
	ID              string
	Email           string
	FirstName       string
	LastName        string
	Profession      Profession
	Bio             string
	GitHub          string
	Twitter         string
	LinkedIn        string
	Coins           int
	Progress        Progress
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DisplayName は姓名を結合した表示名を返す。
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.LastName
	}
}

// ProfileUpdate はプロフィールの部分更新内容を表す。
// nilのフィールドは変更しない。
type ProfileUpdate struct {
	FirstName  *string
	LastName   *string
	Profession *string
	Bio        *string
	GitHub     *string
	Twitter    *string
	LinkedIn   *string
}

// Identity は外部IdPやパスワード認証との紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// ProviderPassword はメールアドレスとパスワードによる認証を表すプロバイダ名。
const ProviderPassword = "password"

// Credential はパスワード認証の資格情報を表す。
type Credential struct {
	UserID       string
	PasswordHash string
	UpdatedAt    time.Time
}

// EmailVerification はメールアドレス確認用の使い捨てトークンを表す。
type EmailVerification struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
