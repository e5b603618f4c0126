package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/routinelog/internal/db"
	"github.com/routinelog/internal/service"
)

type groupPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func groupToPayload(group db.Group) gin.H {
	return gin.H{
		"id":           group.ID,
		"name":         group.Name,
		"description":  group.Description,
		"owner_id":     group.OwnerID,
		"member_count": group.MemberCount,
	}
}

// ListGroups 返回小组列表
func (a *API) ListGroups(c *gin.Context) {
	groups, err := a.groups.List()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取小组列表失败")
		return
	}

	items := make([]gin.H, 0, len(groups))
	for _, group := range groups {
		items = append(items, groupToPayload(group))
	}

	c.JSON(http.StatusOK, gin.H{"groups": items})
}

// CreateGroup 新建小组，创建者自动入组
func (a *API) CreateGroup(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var payload groupPayload
	if !bindJSON(c, &payload, "请求格式不正确") {
		return
	}

	group, err := a.groups.Create(userID, service.GroupInput{
		Name:        payload.Name,
		Description: payload.Description,
	})
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{"group": groupToPayload(*group)})
}

// JoinGroup 加入小组
func (a *API) JoinGroup(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	groupID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "小组 ID 不合法")
		return
	}

	group, err := a.groups.Join(groupID, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGroupNotFound):
			respondError(c, http.StatusNotFound, "小组不存在")
		case errors.Is(err, service.ErrAlreadyGroupMember):
			respondError(c, http.StatusConflict, "已经是小组成员")
		default:
			respondError(c, http.StatusInternalServerError, "加入小组失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"group": groupToPayload(*group)})
}

// LeaveGroup 退出小组
func (a *API) LeaveGroup(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	groupID, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "小组 ID 不合法")
		return
	}

	group, err := a.groups.Leave(groupID, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGroupNotFound):
			respondError(c, http.StatusNotFound, "小组不存在")
		case errors.Is(err, service.ErrNotGroupMember):
			respondError(c, http.StatusNotFound, "不是小组成员")
		default:
			respondError(c, http.StatusInternalServerError, "退出小组失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"group": groupToPayload(*group)})
}
