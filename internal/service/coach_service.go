package service

import (
	"context"
	"fmt"

	"github.com/routinelog/internal/db"
)

const (
	defaultCoachModel       = "gpt-4o-mini"
	defaultCoachMaxTokens   = 600
	defaultCoachTemperature = 0.4

	coachSystemPrompt = "你是一位习惯养成教练。基于用户的打卡情况给出简短、具体、" +
		"可执行的建议，使用用户提问的语言回答，不要编造数据。"
)

// CoachTurn 表示会话历史中的一轮消息
type CoachTurn struct {
	Role    string
	Content string
}

// CoachInput 描述生成教练回复所需的上下文
type CoachInput struct {
	History     []CoachTurn
	UserMessage string
	// MaxTokens 控制模型输出上限，0 表示使用默认值。
	MaxTokens int
}

// CoachResult 返回模型生成的回复及 token 用量
type CoachResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// CoachReplyGenerator 定义回复生成能力，便于在业务层注入不同实现
type CoachReplyGenerator interface {
	GenerateReply(ctx context.Context, input CoachInput) (CoachResult, error)
}

// CoachConfig 汇总教练客户端所需配置
type CoachConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// CoachExchange 是一次完整问答的结果
type CoachExchange struct {
	Conversation *db.Conversation
	UserMessage  *db.ConversationMessage
	Reply        *db.ConversationMessage
	ReplyHTML    string
}

// CoachService 串联配额台账、会话存储与模型调用
// 配额规则：动作前 Check，动作成功后 Increment；两次调用之间存在
// 恰好超额一次的竞态窗口，属于接受的边界（见 QuotaService）
type CoachService struct {
	conversations *ConversationService
	quotas        *QuotaService
	generator     CoachReplyGenerator
	client        *coachChatClient
}

// NewCoachService 构造默认的 CoachService
func NewCoachService(conversations *ConversationService, quotas *QuotaService, cfg CoachConfig) *CoachService {
	client := newCoachChatClient(cfg.BaseURL, cfg.Model, cfg.APIKey)
	return &CoachService{
		conversations: conversations,
		quotas:        quotas,
		generator:     client,
		client:        client,
	}
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试
func (s *CoachService) SetHTTPClient(client httpDoer) {
	if s.client != nil {
		s.client.SetHTTPClient(client)
	}
}

// SetGenerator 覆盖默认的回复生成实现，主要用于测试
func (s *CoachService) SetGenerator(generator CoachReplyGenerator) {
	if generator != nil {
		s.generator = generator
	}
}

// StartSession 在会话额度内开启一次新的教练会话
func (s *CoachService) StartSession(userID uint, title string) (*db.Conversation, error) {
	decision, err := s.quotas.Check(userID, ResourceCoachSession)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &QuotaExceededError{Resource: ResourceCoachSession, ResetAt: decision.ResetAt}
	}

	conversation, err := s.conversations.Start(userID, title)
	if err != nil {
		return nil, err
	}

	if err := s.quotas.Increment(userID, ResourceCoachSession, 0); err != nil {
		return nil, err
	}

	return conversation, nil
}

// Ask 在消息额度内完成一轮问答：记录提问、生成回复、记账用量
func (s *CoachService) Ask(ctx context.Context, userID uint, publicID, question string) (*CoachExchange, error) {
	conversation, err := s.conversations.GetByPublicID(userID, publicID)
	if err != nil {
		return nil, err
	}

	decision, err := s.quotas.Check(userID, ResourceCoachMessage)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &QuotaExceededError{Resource: ResourceCoachMessage, ResetAt: decision.ResetAt}
	}

	history, err := s.conversations.Messages(conversation.ID)
	if err != nil {
		return nil, err
	}

	turns := make([]CoachTurn, 0, len(history))
	for _, message := range history {
		turns = append(turns, CoachTurn{Role: message.Role, Content: message.Content})
	}

	userMessage, err := s.conversations.AppendMessage(conversation.ID, MessageRoleUser, question, 0, 0)
	if err != nil {
		return nil, err
	}

	logCoachExchange("ask", question)
	result, err := s.generator.GenerateReply(ctx, CoachInput{
		History:     turns,
		UserMessage: question,
	})
	if err != nil {
		return nil, fmt.Errorf("generate coach reply: %w", err)
	}
	logCoachExchange("reply", result.Content)

	reply, err := s.conversations.AppendMessage(conversation.ID, MessageRoleAssistant,
		result.Content, result.PromptTokens, result.CompletionTokens)
	if err != nil {
		return nil, err
	}

	// 回复已经落库，此时记账；失败只影响台账精度，不回滚消息
	if err := s.quotas.Increment(userID, ResourceCoachMessage,
		result.PromptTokens+result.CompletionTokens); err != nil {
		return nil, err
	}

	replyHTML, err := RenderMarkdown(result.Content)
	if err != nil {
		return nil, err
	}

	// 重新读取会话，拿到追加后的消息计数
	conversation, err = s.conversations.GetByPublicID(userID, publicID)
	if err != nil {
		return nil, err
	}

	return &CoachExchange{
		Conversation: conversation,
		UserMessage:  userMessage,
		Reply:        reply,
		ReplyHTML:    replyHTML,
	}, nil
}
