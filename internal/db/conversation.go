package db

import "gorm.io/gorm"

// Conversation 定义了 AI 教练会话模型
// PublicID 为对外暴露的 uuid，避免自增 ID 泄露规模
// MessageCount 为派生字段，等于 conversation_messages 子行数量
type Conversation struct {
	gorm.Model
	PublicID     string `gorm:"size:36;uniqueIndex"`
	UserID       uint   `gorm:"index"`
	Title        string
	MessageCount int `gorm:"default:0"`
}

// ConversationMessage 记录会话内的单条消息
// Role 仅使用 user/assistant；Prompt/CompletionTokens 来自模型返回的用量
type ConversationMessage struct {
	gorm.Model
	ConversationID   uint         `gorm:"index"`
	Conversation     Conversation `gorm:"constraint:OnDelete:CASCADE"`
	Role             string       `gorm:"size:16"`
	Content          string
	PromptTokens     int `gorm:"default:0"`
	CompletionTokens int `gorm:"default:0"`
}
