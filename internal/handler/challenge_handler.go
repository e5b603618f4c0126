package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/routinelog/internal/db"
	"github.com/routinelog/internal/service"
)

type challengePayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

type checkinPayload struct {
	Date string `json:"date"`
	Note string `json:"note"`
}

func challengeToPayload(challenge db.Challenge) gin.H {
	return gin.H{
		"id":                challenge.ID,
		"name":              challenge.Name,
		"description":       challenge.Description,
		"start_date":        formatDatePtr(challenge.StartDate),
		"end_date":          formatDatePtr(challenge.EndDate),
		"participant_count": challenge.ParticipantCount,
	}
}

func participantToPayload(participant db.ChallengeParticipant) gin.H {
	return gin.H{
		"challenge_id":    participant.ChallengeID,
		"user_id":         participant.UserID,
		"checkin_count":   participant.CheckinCount,
		"current_streak":  participant.CurrentStreak,
		"last_checkin_on": formatDatePtr(participant.LastCheckinOn),
	}
}

// ListChallenges 返回挑战列表
func (a *API) ListChallenges(c *gin.Context) {
	challenges, err := a.challenges.List()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取挑战列表失败")
		return
	}

	items := make([]gin.H, 0, len(challenges))
	for _, challenge := range challenges {
		items = append(items, challengeToPayload(challenge))
	}

	c.JSON(http.StatusOK, gin.H{"challenges": items})
}

// CreateChallenge 新建挑战
func (a *API) CreateChallenge(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}

	var payload challengePayload
	if !bindJSON(c, &payload, "请求格式不正确") {
		return
	}

	input := service.ChallengeInput{
		Name:        payload.Name,
		Description: payload.Description,
	}
	if payload.StartDate != "" {
		start, err := parseDate(payload.StartDate)
		if err != nil {
			respondError(c, http.StatusBadRequest, "日期格式不正确，应为 YYYY-MM-DD")
			return
		}
		input.StartDate = &start
	}
	if payload.EndDate != "" {
		end, err := parseDate(payload.EndDate)
		if err != nil {
			respondError(c, http.StatusBadRequest, "日期格式不正确，应为 YYYY-MM-DD")
			return
		}
		input.EndDate = &end
	}

	challenge, err := a.challenges.Create(input)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{"challenge": challengeToPayload(*challenge)})
}

// JoinChallenge 加入挑战
func (a *API) JoinChallenge(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	challengeID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "挑战 ID 不合法")
		return
	}

	participant, err := a.challenges.Join(challengeID, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrChallengeNotFound):
			respondError(c, http.StatusNotFound, "挑战不存在")
		case errors.Is(err, service.ErrAlreadyParticipant):
			respondError(c, http.StatusConflict, "已经加入了该挑战")
		default:
			respondError(c, http.StatusInternalServerError, "加入挑战失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"participant": participantToPayload(*participant)})
}

// LeaveChallenge 退出挑战
func (a *API) LeaveChallenge(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	challengeID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "挑战 ID 不合法")
		return
	}

	if err := a.challenges.Leave(challengeID, userID); err != nil {
		switch {
		case errors.Is(err, service.ErrChallengeNotFound):
			respondError(c, http.StatusNotFound, "挑战不存在")
		case errors.Is(err, service.ErrNotParticipant):
			respondError(c, http.StatusNotFound, "尚未加入该挑战")
		default:
			respondError(c, http.StatusInternalServerError, "退出挑战失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "已退出挑战"})
}

// CheckInChallenge 记录挑战打卡
func (a *API) CheckInChallenge(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	challengeID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "挑战 ID 不合法")
		return
	}

	var payload checkinPayload
	if !bindJSON(c, &payload, "请求格式不正确") {
		return
	}

	date, err := parseDate(payload.Date)
	if err != nil {
		respondError(c, http.StatusBadRequest, "日期格式不正确，应为 YYYY-MM-DD")
		return
	}

	participant, err := a.challenges.CheckIn(challengeID, userID, date, payload.Note)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotParticipant):
			respondError(c, http.StatusNotFound, "尚未加入该挑战")
		case errors.Is(err, service.ErrCheckinExists):
			respondError(c, http.StatusConflict, "今天已经打过卡了")
		default:
			respondError(c, http.StatusInternalServerError, "挑战打卡失败")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"participant": participantToPayload(*participant)})
}

// RemoveChallengeCheckIn 撤销挑战打卡
func (a *API) RemoveChallengeCheckIn(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	challengeID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "挑战 ID 不合法")
		return
	}

	date, err := parseDate(c.Param("date"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "日期格式不正确，应为 YYYY-MM-DD")
		return
	}

	participant, err := a.challenges.RemoveCheckIn(challengeID, userID, date)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotParticipant):
			respondError(c, http.StatusNotFound, "尚未加入该挑战")
		case errors.Is(err, service.ErrCheckinNotFound):
			respondError(c, http.StatusNotFound, "该日期没有可撤销的打卡")
		default:
			respondError(c, http.StatusInternalServerError, "撤销挑战打卡失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"participant": participantToPayload(*participant)})
}
