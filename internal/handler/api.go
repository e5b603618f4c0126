package handler

import (
	"github.com/routinelog/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	routines      *service.RoutineService
	completions   *service.CompletionService
	profiles      *service.ProfileService
	quotas        *service.QuotaService
	groups        *service.GroupService
	challenges    *service.ChallengeService
	conversations *service.ConversationService
	coach         *service.CoachService
	maintenance   *service.MaintenanceService
}

// NewAPI constructs a handler set with shared services.
func NewAPI(db *gorm.DB, coachCfg service.CoachConfig) *API {
	conversations := service.NewConversationService(db)
	quotas := service.NewQuotaService(db)

	return &API{
		routines:      service.NewRoutineService(db),
		completions:   service.NewCompletionService(db),
		profiles:      service.NewProfileService(db),
		quotas:        quotas,
		groups:        service.NewGroupService(db),
		challenges:    service.NewChallengeService(db),
		conversations: conversations,
		coach:         service.NewCoachService(conversations, quotas, coachCfg),
		maintenance:   service.NewMaintenanceService(db),
	}
}

// Coach 暴露教练服务，便于测试替换生成实现
func (a *API) Coach() *service.CoachService {
	return a.coach
}

// Quotas 暴露配额服务，便于测试固定时钟
func (a *API) Quotas() *service.QuotaService {
	return a.quotas
}
