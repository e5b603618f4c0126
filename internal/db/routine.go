package db

import (
	"time"

	"gorm.io/gorm"
)

// Routine 定义了用户日常打卡的例行习惯模型
// CurrentStreak/LongestStreak/TotalCompletions 为派生字段，
// 只允许完成记录同步逻辑在事务内更新，客户端请求不得直接写入
// Status 仅使用 active/archived，存在完成记录时不允许硬删除
type Routine struct {
	gorm.Model
	UserID           uint `gorm:"index"`
	User             User `gorm:"constraint:OnDelete:CASCADE"`
	Name             string
	Description      string
	TypeTag          string
	Status           string
	CurrentStreak    int `gorm:"default:0"`
	LongestStreak    int `gorm:"default:0"`
	TotalCompletions int `gorm:"default:0"`
	LastCompletedOn  *time.Time
}

// RoutineStatusActive/Archived 约束 Routine.Status 的取值
const (
	RoutineStatusActive   = "active"
	RoutineStatusArchived = "archived"
)

// CompletionRecord 记录单次打卡事件，是连胜与计数的事实来源
// RoutineID + CompletedOn 采用唯一索引，保证同一天至多一条记录
// StreakSnapshot 保存插入时刻计算的连胜值，仅用于展示/分析，不参与状态推导
type CompletionRecord struct {
	gorm.Model
	RoutineID      uint      `gorm:"index;index:idx_completion_unique,unique"`
	Routine        Routine   `gorm:"constraint:OnDelete:CASCADE"`
	CompletedOn    time.Time `gorm:"index:idx_completion_unique,unique"`
	StreakSnapshot int
	Source         string
	Note           string
}

// TableName 重写确保唯一索引作用到 routine_id + completed_on
func (CompletionRecord) TableName() string {
	return "completion_records"
}
