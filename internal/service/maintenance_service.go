package service

import (
	"fmt"
	"time"

	"github.com/routinelog/internal/db"
	"gorm.io/gorm"
)

// MaintenanceService 提供从事件日志全量重建派生聚合的能力
// 所有计数器都只是日志的物化视图，任何疑似损坏都可以通过回放修复；
// 该路径不在请求热路径上，允许线性扫描
type MaintenanceService struct {
	db *gorm.DB
}

// NewMaintenanceService 构造 MaintenanceService
func NewMaintenanceService(gdb *gorm.DB) *MaintenanceService {
	return &MaintenanceService{db: gdb}
}

// RebuildRoutine 重放单个例行的打卡日志，重建连胜与完成数。
// 重建后 longest_streak 等于日志中最长的连续区段；增量路径只维护
// 高水位，两者在日志未被破坏时一致。
func (s *MaintenanceService) RebuildRoutine(routineID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var routine db.Routine
		if err := tx.First(&routine, routineID).Error; err != nil {
			return ErrRoutineNotFound
		}

		dates, err := completionDates(tx, routineID)
		if err != nil {
			return err
		}

		current, longest := scanRunStreaks(dates)
		routine.CurrentStreak = current
		routine.LongestStreak = longest
		routine.TotalCompletions = len(dates)
		if len(dates) > 0 {
			anchor := dates[len(dates)-1]
			routine.LastCompletedOn = &anchor
		} else {
			routine.LastCompletedOn = nil
		}

		if err := tx.Save(&routine).Error; err != nil {
			return fmt.Errorf("save rebuilt routine: %w", err)
		}

		return refreshUserRollups(tx, routine.UserID)
	})
}

// RebuildUser 重建用户名下所有例行及档案汇总
func (s *MaintenanceService) RebuildUser(userID uint) error {
	var routineIDs []uint
	if err := s.db.Model(&db.Routine{}).
		Where("user_id = ?", userID).
		Pluck("id", &routineIDs).Error; err != nil {
		return fmt.Errorf("list routines: %w", err)
	}

	for _, id := range routineIDs {
		if err := s.RebuildRoutine(id); err != nil {
			return err
		}
	}

	if len(routineIDs) == 0 {
		return s.db.Transaction(func(tx *gorm.DB) error {
			return refreshUserRollups(tx, userID)
		})
	}
	return nil
}

// RebuildCounters 重建所有父实体上的成员/参与/消息计数
func (s *MaintenanceService) RebuildCounters() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.Group{}).
			Where("1 = 1").
			Update("member_count", gorm.Expr(
				"(SELECT COUNT(*) FROM group_members WHERE group_members.group_id = groups.id AND group_members.deleted_at IS NULL)",
			)).Error; err != nil {
			return fmt.Errorf("rebuild group member counts: %w", err)
		}

		if err := tx.Model(&db.Challenge{}).
			Where("1 = 1").
			Update("participant_count", gorm.Expr(
				"(SELECT COUNT(*) FROM challenge_participants WHERE challenge_participants.challenge_id = challenges.id AND challenge_participants.deleted_at IS NULL)",
			)).Error; err != nil {
			return fmt.Errorf("rebuild participant counts: %w", err)
		}

		if err := tx.Model(&db.Conversation{}).
			Where("1 = 1").
			Update("message_count", gorm.Expr(
				"(SELECT COUNT(*) FROM conversation_messages WHERE conversation_messages.conversation_id = conversations.id AND conversation_messages.deleted_at IS NULL)",
			)).Error; err != nil {
			return fmt.Errorf("rebuild message counts: %w", err)
		}

		return nil
	})
}

// RebuildParticipants 重放挑战打卡日志，重建所有参与者统计
func (s *MaintenanceService) RebuildParticipants(challengeID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var participants []db.ChallengeParticipant
		if err := tx.Where("challenge_id = ?", challengeID).
			Find(&participants).Error; err != nil {
			return fmt.Errorf("list participants: %w", err)
		}

		for i := range participants {
			if err := syncParticipantStats(tx, &participants[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// RebuildAll 重建库内全部派生聚合
func (s *MaintenanceService) RebuildAll() error {
	var userIDs []uint
	if err := s.db.Model(&db.User{}).Pluck("id", &userIDs).Error; err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, id := range userIDs {
		if err := s.RebuildUser(id); err != nil {
			return err
		}
	}

	var challengeIDs []uint
	if err := s.db.Model(&db.Challenge{}).Pluck("id", &challengeIDs).Error; err != nil {
		return fmt.Errorf("list challenges: %w", err)
	}
	for _, id := range challengeIDs {
		if err := s.RebuildParticipants(id); err != nil {
			return err
		}
	}

	return s.RebuildCounters()
}

func completionDates(tx *gorm.DB, routineID uint) ([]time.Time, error) {
	var dates []time.Time
	if err := tx.Model(&db.CompletionRecord{}).
		Where("routine_id = ?", routineID).
		Order("completed_on ASC").
		Pluck("completed_on", &dates).Error; err != nil {
		return nil, fmt.Errorf("list completion dates: %w", err)
	}

	normalized := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		normalized = append(normalized, normalizeToDate(d))
	}
	return normalized, nil
}
