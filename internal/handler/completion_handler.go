package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/routinelog/internal/service"
)

type completionPayload struct {
	Date   string `json:"date"`
	Source string `json:"source"`
	Note   string `json:"note"`
}

type heatmapRoutine struct {
	ID      uint   `json:"id"`
	Name    string `json:"name"`
	TypeTag string `json:"type_tag"`
}

type heatmapDay struct {
	Date     string           `json:"date"`
	Routines []heatmapRoutine `json:"routines"`
}

// RecordCompletion 记录一次打卡并返回最新聚合值
func (a *API) RecordCompletion(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	routineID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "例行 ID 不合法")
		return
	}

	// 打卡前确认归属，避免跨用户写入
	if _, err := a.routines.Get(userID, routineID); err != nil {
		respondError(c, http.StatusNotFound, "例行不存在")
		return
	}

	var payload completionPayload
	if !bindJSON(c, &payload, "请求格式不正确") {
		return
	}

	date, err := parseDate(payload.Date)
	if err != nil {
		respondError(c, http.StatusBadRequest, "日期格式不正确，应为 YYYY-MM-DD")
		return
	}

	result, err := a.completions.Record(service.CompletionInput{
		RoutineID: routineID,
		Date:      date,
		Source:    payload.Source,
		Note:      payload.Note,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCompletionExists):
			respondError(c, http.StatusConflict, "今天已经打过卡了")
		case errors.Is(err, service.ErrRoutineArchived):
			respondError(c, http.StatusConflict, "例行已归档，无法打卡")
		case errors.Is(err, service.ErrRoutineNotFound):
			respondError(c, http.StatusNotFound, "例行不存在")
		default:
			respondError(c, http.StatusInternalServerError, "打卡失败")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"streak":            result.CurrentStreak,
		"longest_streak":    result.LongestStreak,
		"total_completions": result.TotalCompletions,
		"streak_snapshot":   result.Record.StreakSnapshot,
	})
}

// RemoveCompletion 撤销指定日期的打卡
func (a *API) RemoveCompletion(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	routineID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "例行 ID 不合法")
		return
	}

	if _, err := a.routines.Get(userID, routineID); err != nil {
		respondError(c, http.StatusNotFound, "例行不存在")
		return
	}

	date, err := parseDate(c.Param("date"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "日期格式不正确，应为 YYYY-MM-DD")
		return
	}

	result, err := a.completions.Remove(routineID, date)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCompletionNotFound):
			respondError(c, http.StatusNotFound, "该日期没有可撤销的打卡")
		case errors.Is(err, service.ErrRoutineNotFound):
			respondError(c, http.StatusNotFound, "例行不存在")
		default:
			respondError(c, http.StatusInternalServerError, "撤销打卡失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"streak":            result.CurrentStreak,
		"longest_streak":    result.LongestStreak,
		"total_completions": result.TotalCompletions,
	})
}

// ListCompletions 返回指定区间内的打卡记录
func (a *API) ListCompletions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	routineID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "例行 ID 不合法")
		return
	}

	if _, err := a.routines.Get(userID, routineID); err != nil {
		respondError(c, http.StatusNotFound, "例行不存在")
		return
	}

	start, end, ok := parseRangeQuery(c)
	if !ok {
		return
	}

	records, err := a.completions.ListBetween(service.CompletionFilter{
		RoutineID: routineID,
		Start:     start,
		End:       end,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取打卡记录失败")
		return
	}

	items := make([]gin.H, 0, len(records))
	for _, record := range records {
		items = append(items, gin.H{
			"date":            formatDate(record.CompletedOn),
			"streak_snapshot": record.StreakSnapshot,
			"source":          record.Source,
			"note":            record.Note,
		})
	}

	c.JSON(http.StatusOK, gin.H{"completions": items})
}

// Heatmap 返回用户在指定区间内所有例行的打卡热力图
func (a *API) Heatmap(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	start, end, ok := parseRangeQuery(c)
	if !ok {
		return
	}

	entries, err := a.completions.HeatmapRange(userID, start, end)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取热力图数据失败")
		return
	}

	dayIndex := make(map[string]int)
	days := make([]heatmapDay, 0)
	for _, entry := range entries {
		key := formatDate(entry.CompletedOn)
		idx, exists := dayIndex[key]
		if !exists {
			days = append(days, heatmapDay{Date: key})
			idx = len(days) - 1
			dayIndex[key] = idx
		}
		days[idx].Routines = append(days[idx].Routines, heatmapRoutine{
			ID:      entry.RoutineID,
			Name:    entry.RoutineName,
			TypeTag: entry.RoutineType,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"range": gin.H{"start": formatDate(start), "end": formatDate(end)},
		"days":  days,
		"summary": gin.H{
			"total_completions": len(entries),
			"active_days":       len(days),
		},
		"generated_at": time.Now().Format(time.RFC3339),
	})
}

// parseRangeQuery 解析 start/end 查询参数，缺省为最近 30 天
func parseRangeQuery(c *gin.Context) (time.Time, time.Time, bool) {
	end, err := parseDate(c.Query("end"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "日期格式不正确，应为 YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}

	var start time.Time
	if raw := c.Query("start"); raw != "" {
		start, err = parseDate(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "日期格式不正确，应为 YYYY-MM-DD")
			return time.Time{}, time.Time{}, false
		}
	} else {
		start = end.AddDate(0, 0, -29)
	}

	if end.Before(start) {
		respondError(c, http.StatusBadRequest, "结束日期不能早于开始日期")
		return time.Time{}, time.Time{}, false
	}

	return start, end, true
}
