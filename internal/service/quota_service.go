package service

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/routinelog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 资源类型常量，配额按资源独立计数
const (
	ResourceCoachSession = "coach_session"
	ResourceCoachMessage = "coach_message"
)

// ErrUnknownResource 在资源类型未注册时返回
var ErrUnknownResource = errors.New("unknown quota resource")

// quotaRule 描述某类资源在两个档位下的窗口上限
// free 档按自然日计，pro 档按自然月计
type quotaRule struct {
	FreeDaily  int
	ProMonthly int
}

var quotaRules = map[string]quotaRule{
	ResourceCoachSession: {FreeDaily: 3, ProMonthly: 500},
	ResourceCoachMessage: {FreeDaily: 30, ProMonthly: 5000},
}

// QuotaDecision 是一次配额检查的结果
// ResetAt 为窗口重置时刻：日窗口是次日零点，月窗口是下月一号零点
type QuotaDecision struct {
	Allowed   bool
	Used      int
	Ceiling   int
	Remaining int
	Window    string
	ResetAt   time.Time
}

// QuotaExceededError 携带重置时刻，便于调用方给出具体等待时间
type QuotaExceededError struct {
	Resource string
	ResetAt  time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s, resets at %s", e.Resource, e.ResetAt.Format(time.RFC3339))
}

// QuotaService 维护按 (用户, 资源, 日) 记账的用量台账
// Check 只读，Increment 为原子 upsert；两者分离意味着并发下
// 可能出现恰好超额一次的竞态，这是有意接受的边界，而非静默缺陷。
// 档位在每次 Check 时根据用户当前的到期时间重新判定，
// 订阅过期会立即落回更严格的日窗口，已有的用量行无需迁移。
type QuotaService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewQuotaService 构造 QuotaService
func NewQuotaService(gdb *gorm.DB) *QuotaService {
	return &QuotaService{db: gdb, now: time.Now}
}

// WithNow 允许在测试中固定时钟
func (s *QuotaService) WithNow(now func() time.Time) *QuotaService {
	if now != nil {
		s.now = now
	}
	return s
}

// Check 判定用户对某类资源是否还有剩余额度
func (s *QuotaService) Check(userID uint, resource string) (*QuotaDecision, error) {
	rule, ok := quotaRules[resource]
	if !ok {
		return nil, ErrUnknownResource
	}

	var user db.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	now := s.now()
	today := normalizeToDate(now)

	var (
		windowStart time.Time
		resetAt     time.Time
		ceiling     int
		window      string
	)
	if user.ActivePlan(now) == db.PlanPro {
		windowStart = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		resetAt = windowStart.AddDate(0, 1, 0)
		ceiling = rule.ProMonthly
		window = "monthly"
	} else {
		windowStart = today
		resetAt = today.AddDate(0, 0, 1)
		ceiling = rule.FreeDaily
		window = "daily"
	}

	var used sql.NullInt64
	if err := s.db.Model(&db.QuotaUsage{}).
		Select("COALESCE(SUM(count), 0)").
		Where("user_id = ? AND resource_type = ?", userID, resource).
		Where("usage_date >= ? AND usage_date < ?", windowStart, resetAt).
		Row().Scan(&used); err != nil {
		return nil, fmt.Errorf("sum quota usage: %w", err)
	}

	usedCount := int(used.Int64)
	remaining := ceiling - usedCount
	if remaining < 0 {
		remaining = 0
	}

	return &QuotaDecision{
		Allowed:   usedCount < ceiling,
		Used:      usedCount,
		Ceiling:   ceiling,
		Remaining: remaining,
		Window:    window,
		ResetAt:   resetAt,
	}, nil
}

// Increment 原子地为 (用户, 资源, 今日) 的台账行加一并累计 token 用量。
// 必须是单条 upsert 而非先查后写，否则并发请求会互相丢失更新。
// 台账自身不校验上限，调用方需在动作前 Check、动作成功后 Increment。
func (s *QuotaService) Increment(userID uint, resource string, tokens int) error {
	if _, ok := quotaRules[resource]; !ok {
		return ErrUnknownResource
	}
	if tokens < 0 {
		tokens = 0
	}

	usage := db.QuotaUsage{
		UserID:       userID,
		ResourceType: resource,
		UsageDate:    normalizeToDate(s.now()),
		Count:        1,
		Tokens:       tokens,
	}

	if err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "resource_type"}, {Name: "usage_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":      gorm.Expr("count + 1"),
			"tokens":     gorm.Expr("tokens + ?", tokens),
			"updated_at": s.now(),
		}),
	}).Create(&usage).Error; err != nil {
		return fmt.Errorf("increment quota usage: %w", err)
	}

	return nil
}
