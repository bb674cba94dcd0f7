package model

import "time"

// ContactCategory は問い合わせ種別を表す。
type ContactCategory string

const (
	ContactGeneral     ContactCategory = "general"
	ContactSupport     ContactCategory = "support"
	ContactFeedback    ContactCategory = "feedback"
	ContactPartnership ContactCategory = "partnership"
)

// ContactMessage はお問い合わせフォームから送信されたメッセージを表す。
type ContactMessage struct {
	ID        string
	Name      string
	Email     string
	Category  ContactCategory
	Message   string
	CreatedAt time.Time
}
