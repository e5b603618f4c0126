package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/routinelog/internal/service"
)

// GetProfile 返回当前用户的档案汇总
// 汇总字段由同步逻辑维护，这里直接读取，不做任何重算
func (a *API) GetProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := a.profiles.Get(userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, "用户不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "获取档案失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username":          user.Username,
		"nickname":          user.Nickname,
		"plan":              user.ActivePlan(time.Now()),
		"current_streak":    user.CurrentStreak,
		"longest_streak":    user.LongestStreak,
		"total_completions": user.TotalCompletions,
		"total_routines":    user.TotalRoutines,
	})
}

// RebuildProfile 从事件日志重建当前用户的全部派生聚合
// 供数据疑似损坏时手工触发，不在常规路径上
func (a *API) RebuildProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := a.maintenance.RebuildUser(userID); err != nil {
		respondError(c, http.StatusInternalServerError, "重建聚合失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "聚合已从日志重建"})
}
