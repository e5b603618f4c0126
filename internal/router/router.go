package router

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/routinelog/internal/config"
	"github.com/routinelog/internal/db"
	"github.com/routinelog/internal/handler"
	"github.com/routinelog/internal/service"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(cfg config.AppConfig) (*gin.Engine, *handler.API) {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	r := gin.Default()

	// 配置会话中间件
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions("routinelog_session", store))

	api := handler.NewAPI(db.DB, service.CoachConfig{
		BaseURL: cfg.CoachAPIBaseURL,
		Model:   cfg.CoachModel,
		APIKey:  cfg.CoachAPIKey,
	})

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	r.POST("/api/login", handler.Login)
	r.GET("/api/logout", handler.Logout)

	// 需要认证的业务路由
	auth := r.Group("/api")
	auth.Use(handler.AuthRequired())
	{
		auth.GET("/profile", api.GetProfile)
		auth.POST("/profile/rebuild", api.RebuildProfile)
		auth.GET("/quota/:resource", api.CheckQuota)

		auth.GET("/routines", api.ListRoutines)
		auth.POST("/routines", api.CreateRoutine)
		auth.GET("/routines/:id", api.GetRoutine)
		auth.PUT("/routines/:id", api.UpdateRoutine)
		auth.PUT("/routines/:id/status", api.SetRoutineStatus)
		auth.DELETE("/routines/:id", api.DeleteRoutine)

		auth.POST("/routines/:id/completions", api.RecordCompletion)
		auth.GET("/routines/:id/completions", api.ListCompletions)
		auth.DELETE("/routines/:id/completions/:date", api.RemoveCompletion)
		auth.GET("/heatmap", api.Heatmap)

		auth.GET("/groups", api.ListGroups)
		auth.POST("/groups", api.CreateGroup)
		auth.POST("/groups/:id/join", api.JoinGroup)
		auth.POST("/groups/:id/leave", api.LeaveGroup)

		auth.GET("/challenges", api.ListChallenges)
		auth.POST("/challenges", api.CreateChallenge)
		auth.POST("/challenges/:id/join", api.JoinChallenge)
		auth.POST("/challenges/:id/leave", api.LeaveChallenge)
		auth.POST("/challenges/:id/checkins", api.CheckInChallenge)
		auth.DELETE("/challenges/:id/checkins/:date", api.RemoveChallengeCheckIn)

		auth.GET("/conversations", api.ListConversations)
		auth.POST("/conversations", api.StartConversation)
		auth.GET("/conversations/:conversation_id/messages", api.ListConversationMessages)
		auth.POST("/conversations/:conversation_id/messages", api.AskCoach)
	}

	return r, api
}
