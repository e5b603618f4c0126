package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/routinelog/internal/db"
	"github.com/routinelog/internal/service"
)

type routinePayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	TypeTag     string `json:"type_tag"`
}

type routineStatusPayload struct {
	Status string `json:"status"`
}

func routineToPayload(routine db.Routine) gin.H {
	return gin.H{
		"id":                routine.ID,
		"name":              routine.Name,
		"description":       routine.Description,
		"type_tag":          routine.TypeTag,
		"status":            routine.Status,
		"current_streak":    routine.CurrentStreak,
		"longest_streak":    routine.LongestStreak,
		"total_completions": routine.TotalCompletions,
		"last_completed_on": formatDatePtr(routine.LastCompletedOn),
	}
}

// ListRoutines 返回例行列表 JSON
func (a *API) ListRoutines(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	filter := service.RoutineFilter{
		Status:  c.Query("status"),
		TypeTag: c.Query("type_tag"),
		Search:  c.Query("search"),
	}

	routines, err := a.routines.List(userID, filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取例行列表失败")
		return
	}

	items := make([]gin.H, 0, len(routines))
	for _, routine := range routines {
		items = append(items, routineToPayload(routine))
	}

	c.JSON(http.StatusOK, gin.H{"routines": items})
}

// GetRoutine 返回单个例行
func (a *API) GetRoutine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "例行 ID 不合法")
		return
	}

	routine, err := a.routines.Get(userID, id)
	if err != nil {
		if errors.Is(err, service.ErrRoutineNotFound) {
			respondError(c, http.StatusNotFound, "例行不存在")
			return
		}
		respondError(c, http.StatusInternalServerError, "获取例行失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"routine": routineToPayload(*routine)})
}

// CreateRoutine 新建例行
func (a *API) CreateRoutine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var payload routinePayload
	if !bindJSON(c, &payload, "请求格式不正确") {
		return
	}

	routine, err := a.routines.Create(userID, service.RoutineInput{
		Name:        payload.Name,
		Description: payload.Description,
		TypeTag:     payload.TypeTag,
	})
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{"routine": routineToPayload(*routine)})
}

// UpdateRoutine 更新例行的描述性字段
func (a *API) UpdateRoutine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "例行 ID 不合法")
		return
	}

	var payload routinePayload
	if !bindJSON(c, &payload, "请求格式不正确") {
		return
	}

	routine, err := a.routines.Update(userID, id, service.RoutineInput{
		Name:        payload.Name,
		Description: payload.Description,
		TypeTag:     payload.TypeTag,
	})
	if err != nil {
		if errors.Is(err, service.ErrRoutineNotFound) {
			respondError(c, http.StatusNotFound, "例行不存在")
			return
		}
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"routine": routineToPayload(*routine)})
}

// SetRoutineStatus 归档或恢复例行
func (a *API) SetRoutineStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "例行 ID 不合法")
		return
	}

	var payload routineStatusPayload
	if !bindJSON(c, &payload, "请求格式不正确") {
		return
	}

	routine, err := a.routines.SetStatus(userID, id, payload.Status)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRoutineNotFound):
			respondError(c, http.StatusNotFound, "例行不存在")
		case errors.Is(err, service.ErrRoutineInvalidStatus):
			respondError(c, http.StatusBadRequest, "状态取值不合法")
		default:
			respondError(c, http.StatusInternalServerError, "更新状态失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"routine": routineToPayload(*routine)})
}

// DeleteRoutine 硬删除例行；仍有打卡记录时返回 409
func (a *API) DeleteRoutine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "例行 ID 不合法")
		return
	}

	if err := a.routines.Delete(userID, id); err != nil {
		switch {
		case errors.Is(err, service.ErrRoutineNotFound):
			respondError(c, http.StatusNotFound, "例行不存在")
		case errors.Is(err, service.ErrRoutineHasCompletions):
			respondError(c, http.StatusConflict, "例行仍有打卡记录，请改用归档")
		default:
			respondError(c, http.StatusInternalServerError, "删除例行失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "例行已删除"})
}
