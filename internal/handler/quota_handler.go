package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/routinelog/internal/service"
)

// CheckQuota 返回当前用户对某类资源的剩余额度
// 响应中的 reset_at 让客户端可以展示具体的等待时间
func (a *API) CheckQuota(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	resource := c.Param("resource")
	decision, err := a.quotas.Check(userID, resource)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownResource):
			respondError(c, http.StatusBadRequest, "未知的资源类型")
		case errors.Is(err, service.ErrUserNotFound):
			respondError(c, http.StatusNotFound, "用户不存在")
		default:
			respondError(c, http.StatusInternalServerError, "查询额度失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"resource":  resource,
		"allowed":   decision.Allowed,
		"used":      decision.Used,
		"ceiling":   decision.Ceiling,
		"remaining": decision.Remaining,
		"window":    decision.Window,
		"reset_at":  decision.ResetAt.Format(time.RFC3339),
	})
}
