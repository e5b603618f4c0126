package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/routinelog/internal/service"
)

type startConversationPayload struct {
	Title string `json:"title"`
}

type askCoachPayload struct {
	Message string `json:"message"`
}

// StartConversation 在会话额度内开启新的教练会话
func (a *API) StartConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var payload startConversationPayload
	if !bindJSON(c, &payload, "请求格式不正确") {
		return
	}

	conversation, err := a.coach.StartSession(userID, payload.Title)
	if err != nil {
		var quotaErr *service.QuotaExceededError
		if errors.As(err, &quotaErr) {
			respondQuotaExceeded(c, quotaErr)
			return
		}
		respondError(c, http.StatusInternalServerError, "创建会话失败")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"conversation_id": conversation.PublicID,
		"title":           conversation.Title,
		"message_count":   conversation.MessageCount,
	})
}

// ListConversations 返回当前用户的会话列表
func (a *API) ListConversations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	conversations, err := a.conversations.List(userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取会话列表失败")
		return
	}

	items := make([]gin.H, 0, len(conversations))
	for _, conversation := range conversations {
		items = append(items, gin.H{
			"conversation_id": conversation.PublicID,
			"title":           conversation.Title,
			"message_count":   conversation.MessageCount,
			"updated_at":      conversation.UpdatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"conversations": items})
}

// ListConversationMessages 返回会话内的消息，正文渲染为净化后的 HTML
func (a *API) ListConversationMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	conversation, err := a.conversations.GetByPublicID(userID, c.Param("conversation_id"))
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			respondError(c, http.StatusNotFound, "会话不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "获取会话失败")
		return
	}

	messages, err := a.conversations.Messages(conversation.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取消息失败")
		return
	}

	items := make([]gin.H, 0, len(messages))
	for _, message := range messages {
		rendered, renderErr := service.RenderMarkdown(message.Content)
		if renderErr != nil {
			respondError(c, http.StatusInternalServerError, "渲染消息失败")
			return
		}
		items = append(items, gin.H{
			"role":       message.Role,
			"content":    message.Content,
			"html":       rendered,
			"created_at": message.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conversation.PublicID,
		"title":           conversation.Title,
		"message_count":   conversation.MessageCount,
		"messages":        items,
	})
}

// AskCoach 在消息额度内向教练提问
func (a *API) AskCoach(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var payload askCoachPayload
	if !bindJSON(c, &payload, "请求格式不正确") {
		return
	}
	if payload.Message == "" {
		respondError(c, http.StatusBadRequest, "消息内容不能为空")
		return
	}

	exchange, err := a.coach.Ask(c.Request.Context(), userID, c.Param("conversation_id"), payload.Message)
	if err != nil {
		var quotaErr *service.QuotaExceededError
		switch {
		case errors.As(err, &quotaErr):
			respondQuotaExceeded(c, quotaErr)
		case errors.Is(err, service.ErrConversationNotFound):
			respondError(c, http.StatusNotFound, "会话不存在")
		case errors.Is(err, service.ErrCoachAPIKeyMissing):
			respondError(c, http.StatusServiceUnavailable, "教练服务未配置")
		default:
			respondError(c, http.StatusInternalServerError, "教练回复失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": exchange.Conversation.PublicID,
		"reply":           exchange.Reply.Content,
		"reply_html":      exchange.ReplyHTML,
		"message_count":   exchange.Conversation.MessageCount,
	})
}

func respondQuotaExceeded(c *gin.Context, err *service.QuotaExceededError) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":    "额度已用完，请稍后再试",
		"resource": err.Resource,
		"reset_at": err.ResetAt.Format(time.RFC3339),
	})
}
