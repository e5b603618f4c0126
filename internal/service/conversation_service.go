package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/routinelog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrConversationNotFound 在指定会话不存在时返回
var ErrConversationNotFound = errors.New("conversation not found")

// 消息角色常量
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// ConversationService 负责教练会话及消息
// message_count 在消息写入的同一事务内按 COUNT 重算
type ConversationService struct {
	db *gorm.DB
}

// NewConversationService 构造 ConversationService
func NewConversationService(gdb *gorm.DB) *ConversationService {
	return &ConversationService{db: gdb}
}

// Start 新建会话，分配对外使用的 uuid
func (s *ConversationService) Start(userID uint, title string) (*db.Conversation, error) {
	conversation := db.Conversation{
		PublicID: uuid.NewString(),
		UserID:   userID,
		Title:    strings.TrimSpace(title),
	}

	if err := s.db.Create(&conversation).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &conversation, nil
}

// List 返回用户的会话集合
func (s *ConversationService) List(userID uint) ([]db.Conversation, error) {
	var conversations []db.Conversation
	if err := s.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return conversations, nil
}

// GetByPublicID 根据 uuid 获取会话，校验归属
func (s *ConversationService) GetByPublicID(userID uint, publicID string) (*db.Conversation, error) {
	var conversation db.Conversation
	if err := s.db.Where("user_id = ? AND public_id = ?", userID, strings.TrimSpace(publicID)).
		First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conversation, nil
}

// AppendMessage 向会话追加一条消息并重算消息计数
func (s *ConversationService) AppendMessage(conversationID uint, role, content string, promptTokens, completionTokens int) (*db.ConversationMessage, error) {
	message := db.ConversationMessage{
		ConversationID:   conversationID,
		Role:             role,
		Content:          content,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var conversation db.Conversation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&conversation, conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConversationNotFound
			}
			return fmt.Errorf("lock conversation: %w", err)
		}

		if err := tx.Create(&message).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}

		var count int64
		if err := tx.Model(&db.ConversationMessage{}).
			Where("conversation_id = ?", conversationID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("count messages: %w", err)
		}

		if err := tx.Model(&db.Conversation{}).
			Where("id = ?", conversationID).
			Update("message_count", int(count)).Error; err != nil {
			return fmt.Errorf("save message count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &message, nil
}

// Messages 返回会话内按时间升序排列的消息
func (s *ConversationService) Messages(conversationID uint) ([]db.ConversationMessage, error) {
	var messages []db.ConversationMessage
	if err := s.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}
