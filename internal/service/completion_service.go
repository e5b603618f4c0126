package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/routinelog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrCompletionExists 在同一天重复打卡时返回
	ErrCompletionExists = errors.New("completion already recorded for this date")
	// ErrCompletionNotFound 在撤销不存在的打卡时返回
	ErrCompletionNotFound = errors.New("completion not found")
	// ErrRoutineArchived 在向已归档例行打卡时返回
	ErrRoutineArchived = errors.New("routine is archived")
)

// CompletionService 负责打卡事件及其派生聚合的同步
// 所有聚合更新与事件日志写入处于同一事务内，失败则整体回滚；
// 连胜一律通过回溯日志重新推导，绝不做增量加减，保证撤销路径正确
type CompletionService struct {
	db *gorm.DB
}

// NewCompletionService 构造 CompletionService
func NewCompletionService(gdb *gorm.DB) *CompletionService {
	return &CompletionService{db: gdb}
}

// CompletionInput 定义打卡时的输入对象
type CompletionInput struct {
	RoutineID uint
	Date      time.Time
	Source    string
	Note      string
}

// CompletionResult 返回打卡后的最新聚合值，供展示层直接使用
type CompletionResult struct {
	Record           *db.CompletionRecord
	CurrentStreak    int
	LongestStreak    int
	TotalCompletions int
}

// CompletionFilter 指定查询区间
type CompletionFilter struct {
	RoutineID uint
	Start     time.Time
	End       time.Time
}

// HeatmapEntry 表示热力图中的单日打卡数据
type HeatmapEntry struct {
	CompletedOn time.Time
	RoutineID   uint
	RoutineName string
	RoutineType string
}

// Record 写入一条打卡记录并同步例行/档案聚合。
// 重复日期返回 ErrCompletionExists 且不触碰任何聚合。
func (s *CompletionService) Record(input CompletionInput) (*CompletionResult, error) {
	date := normalizeToDate(input.Date)

	var result CompletionResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var routine db.Routine
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&routine, input.RoutineID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoutineNotFound
			}
			return fmt.Errorf("find routine: %w", err)
		}

		if routine.Status != db.RoutineStatusActive {
			return ErrRoutineArchived
		}

		record := db.CompletionRecord{
			RoutineID:   routine.ID,
			CompletedOn: date,
			Source:      input.Source,
			Note:        input.Note,
		}

		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "routine_id"}, {Name: "completed_on"}},
			DoNothing: true,
		}).Create(&record)
		if insert.Error != nil {
			return fmt.Errorf("create completion: %w", insert.Error)
		}
		if insert.RowsAffected == 0 {
			return ErrCompletionExists
		}

		// 展示用快照：以本次打卡日期为锚点
		snapshot, err := routineStreakAt(tx, routine.ID, date)
		if err != nil {
			return fmt.Errorf("compute streak snapshot: %w", err)
		}
		if err := tx.Model(&db.CompletionRecord{}).
			Where("id = ?", record.ID).
			Update("streak_snapshot", snapshot).Error; err != nil {
			return fmt.Errorf("save streak snapshot: %w", err)
		}
		record.StreakSnapshot = snapshot

		// 当前连胜以最近一次打卡为锚点重新推导，兼容补卡写入历史日期
		if err := s.syncRoutineAggregates(tx, &routine); err != nil {
			return err
		}

		if err := refreshUserRollups(tx, routine.UserID); err != nil {
			return err
		}

		result = CompletionResult{
			Record:           &record,
			CurrentStreak:    routine.CurrentStreak,
			LongestStreak:    routine.LongestStreak,
			TotalCompletions: routine.TotalCompletions,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// Remove 撤销指定日期的打卡并向后重算聚合。
// 删除的未必是最近一条记录，因此连胜必须从剩余日志重新推导。
func (s *CompletionService) Remove(routineID uint, date time.Time) (*CompletionResult, error) {
	day := normalizeToDate(date)

	var result CompletionResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var routine db.Routine
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&routine, routineID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoutineNotFound
			}
			return fmt.Errorf("find routine: %w", err)
		}

		var record db.CompletionRecord
		if err := tx.Where("routine_id = ? AND completed_on = ?", routineID, day).
			First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCompletionNotFound
			}
			return fmt.Errorf("find completion: %w", err)
		}

		// 事件日志按 (routine_id, completed_on) 唯一，撤销必须物理删除，
		// 软删除残留会让同日重新打卡命中唯一索引
		if err := tx.Unscoped().Delete(&record).Error; err != nil {
			return fmt.Errorf("delete completion: %w", err)
		}

		if err := s.syncRoutineAggregates(tx, &routine); err != nil {
			return err
		}

		if err := refreshUserRollups(tx, routine.UserID); err != nil {
			return err
		}

		result = CompletionResult{
			CurrentStreak:    routine.CurrentStreak,
			LongestStreak:    routine.LongestStreak,
			TotalCompletions: routine.TotalCompletions,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// syncRoutineAggregates 以事件日志为准重算例行聚合并保存。
// longest_streak 是历史高水位，只升不降；其余字段全部重新推导，
// 因而崩溃后重试是幂等的。
func (s *CompletionService) syncRoutineAggregates(tx *gorm.DB, routine *db.Routine) error {
	var latest db.CompletionRecord
	err := tx.Where("routine_id = ?", routine.ID).
		Order("completed_on DESC").
		First(&latest).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		routine.CurrentStreak = 0
		routine.LastCompletedOn = nil
	case err != nil:
		return fmt.Errorf("find latest completion: %w", err)
	default:
		streak, walkErr := routineStreakAt(tx, routine.ID, latest.CompletedOn)
		if walkErr != nil {
			return fmt.Errorf("compute streak: %w", walkErr)
		}
		routine.CurrentStreak = streak
		anchor := latest.CompletedOn
		routine.LastCompletedOn = &anchor
	}

	if routine.CurrentStreak > routine.LongestStreak {
		routine.LongestStreak = routine.CurrentStreak
	}

	var total int64
	if err := tx.Model(&db.CompletionRecord{}).
		Where("routine_id = ?", routine.ID).
		Count(&total).Error; err != nil {
		return fmt.Errorf("count completions: %w", err)
	}
	routine.TotalCompletions = int(total)

	if err := tx.Save(routine).Error; err != nil {
		return fmt.Errorf("save routine aggregates: %w", err)
	}
	return nil
}

// ListBetween 返回指定区间内的打卡记录
func (s *CompletionService) ListBetween(filter CompletionFilter) ([]db.CompletionRecord, error) {
	if filter.RoutineID == 0 {
		return nil, fmt.Errorf("routine id is required")
	}

	start := normalizeToDate(filter.Start)
	end := normalizeToDate(filter.End)

	var records []db.CompletionRecord
	if err := s.db.Where("routine_id = ?", filter.RoutineID).
		Where("completed_on BETWEEN ? AND ?", start, end).
		Order("completed_on ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}

	return records, nil
}

// HeatmapRange 返回用户在指定区间内所有例行的打卡数据
func (s *CompletionService) HeatmapRange(userID uint, start, end time.Time) ([]HeatmapEntry, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid range: end before start")
	}

	normalizedStart := normalizeToDate(start)
	normalizedEnd := normalizeToDate(end)

	var rows []HeatmapEntry
	if err := s.db.Model(&db.CompletionRecord{}).
		Select("completion_records.completed_on AS completed_on, completion_records.routine_id AS routine_id, routines.name AS routine_name, routines.type_tag AS routine_type").
		Joins("JOIN routines ON routines.id = completion_records.routine_id").
		Where("routines.user_id = ?", userID).
		Where("completion_records.completed_on BETWEEN ? AND ?", normalizedStart, normalizedEnd).
		Order("completion_records.completed_on ASC, routines.name ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list heatmap completions: %w", err)
	}

	return rows, nil
}
