package model

// ChatRole はチャットメッセージの話者を表す。
type ChatRole string

const (
	RoleUser  ChatRole = "user"
	RoleModel ChatRole = "model"
)

// ChatMessage は1件のチャットメッセージを表す。永続化はしない。
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}
