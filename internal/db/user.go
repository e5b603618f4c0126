package db

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// PlanFree/PlanPro 约束 User.Plan 的取值
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// User 定义了用户模型，同时承载档案层级的汇总字段
// CurrentStreak 取所有 active 例行的最大值；LongestStreak 取全部例行的历史最大值
// TotalCompletions 为各例行完成数之和；TotalRoutines 统计 active 例行数量
// 这些字段均为派生值，只允许同步逻辑在事务内更新
// Plan/PlanExpiresAt 决定配额档位，档位在查询时计算而非写入时固化
type User struct {
	gorm.Model
	Username         string `gorm:"unique;not null"`
	Password         string `gorm:"not null"`
	Nickname         string
	Plan             string `gorm:"default:free"`
	PlanExpiresAt    *time.Time
	CurrentStreak    int `gorm:"default:0"`
	LongestStreak    int `gorm:"default:0"`
	TotalCompletions int `gorm:"default:0"`
	TotalRoutines    int `gorm:"default:0"`
}

// ActivePlan 返回当前生效的档位：pro 档位过期后立即回落到 free。
func (u User) ActivePlan(now time.Time) string {
	if u.Plan != PlanPro {
		return PlanFree
	}
	if u.PlanExpiresAt != nil && !now.Before(*u.PlanExpiresAt) {
		return PlanFree
	}
	return PlanPro
}

// EnsureUser 存在性检查：若提供的用户名与密码均非空且不存在对应账号，则创建一个 bcrypt 哈希的用户。
func EnsureUser(username, password string) error {
	trimmedUser := strings.TrimSpace(username)
	trimmedPassword := strings.TrimSpace(password)
	if trimmedUser == "" || trimmedPassword == "" {
		return nil
	}

	if DB == nil {
		return errors.New("database not initialized")
	}

	var existing User
	if err := DB.Where("username = ?", trimmedUser).First(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(trimmedPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		return DB.Create(&User{Username: trimmedUser, Password: string(hashed), Plan: PlanFree}).Error
	}

	return nil
}
