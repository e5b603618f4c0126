package service

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/routinelog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUserNotFound 在指定用户不存在时返回
var ErrUserNotFound = errors.New("user not found")

// ProfileService 提供档案层级汇总字段的读取与刷新
// 汇总是"聚合之上的聚合"：由例行层派生字段推导，而非扫描原始打卡日志
type ProfileService struct {
	db *gorm.DB
}

// NewProfileService 构造 ProfileService
func NewProfileService(gdb *gorm.DB) *ProfileService {
	return &ProfileService{db: gdb}
}

// Get 返回带汇总字段的用户档案
func (s *ProfileService) Get(userID uint) (*db.User, error) {
	var user db.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// Refresh 在独立事务内重算指定用户的汇总字段
func (s *ProfileService) Refresh(userID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return refreshUserRollups(tx, userID)
	})
}

// refreshUserRollups 重算用户档案的汇总字段，必须在触发变更的同一事务内调用。
// current_streak 只看 active 例行；longest_streak 取全部例行（含已归档）
// 的历史最大值，归档不会抹掉既有成绩；total_completions 为全部例行之和。
func refreshUserRollups(tx *gorm.DB, userID uint) error {
	var user db.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lock user: %w", err)
	}

	currentStreak, err := routineAggregate(tx, userID,
		"COALESCE(MAX(current_streak), 0)", true)
	if err != nil {
		return err
	}

	longestStreak, err := routineAggregate(tx, userID,
		"COALESCE(MAX(longest_streak), 0)", false)
	if err != nil {
		return err
	}

	totalCompletions, err := routineAggregate(tx, userID,
		"COALESCE(SUM(total_completions), 0)", false)
	if err != nil {
		return err
	}

	var totalRoutines int64
	if err := tx.Model(&db.Routine{}).
		Where("user_id = ? AND status = ?", userID, db.RoutineStatusActive).
		Count(&totalRoutines).Error; err != nil {
		return fmt.Errorf("count routines: %w", err)
	}

	if err := tx.Model(&db.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"current_streak":    currentStreak,
			"longest_streak":    longestStreak,
			"total_completions": totalCompletions,
			"total_routines":    int(totalRoutines),
		}).Error; err != nil {
		return fmt.Errorf("save user rollups: %w", err)
	}

	return nil
}

// routineAggregate 对用户名下的例行执行单值聚合查询
func routineAggregate(tx *gorm.DB, userID uint, selectExpr string, activeOnly bool) (int, error) {
	query := tx.Model(&db.Routine{}).
		Select(selectExpr).
		Where("user_id = ?", userID)
	if activeOnly {
		query = query.Where("status = ?", db.RoutineStatusActive)
	}

	var value sql.NullInt64
	if err := query.Row().Scan(&value); err != nil {
		return 0, fmt.Errorf("aggregate routines: %w", err)
	}
	if !value.Valid {
		return 0, nil
	}
	return int(value.Int64), nil
}
