package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/routinelog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrChallengeNotFound 在指定挑战不存在时返回
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrAlreadyParticipant 在重复加入挑战时返回
	ErrAlreadyParticipant = errors.New("already a challenge participant")
	// ErrNotParticipant 在未加入挑战时返回
	ErrNotParticipant = errors.New("not a challenge participant")
	// ErrCheckinExists 在同一天重复打卡时返回
	ErrCheckinExists = errors.New("checkin already recorded for this date")
	// ErrCheckinNotFound 在撤销不存在的打卡时返回
	ErrCheckinNotFound = errors.New("checkin not found")
)

// ChallengeService 负责限时挑战、参与关系及挑战打卡
// participant_count 与参与者的 checkin_count/current_streak 遵循
// 与例行打卡相同的同步规则：同一事务、按日志重算、绝不增量加减
type ChallengeService struct {
	db *gorm.DB
}

// ChallengeInput 定义创建挑战时可配置字段
type ChallengeInput struct {
	Name        string
	Description string
	StartDate   *time.Time
	EndDate     *time.Time
}

// NewChallengeService 构造 ChallengeService
func NewChallengeService(gdb *gorm.DB) *ChallengeService {
	return &ChallengeService{db: gdb}
}

// Create 新建挑战
func (s *ChallengeService) Create(input ChallengeInput) (*db.Challenge, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("challenge name is required")
	}

	challenge := db.Challenge{
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
	}

	if err := s.db.Create(&challenge).Error; err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}
	return &challenge, nil
}

// List 返回全部挑战
func (s *ChallengeService) List() ([]db.Challenge, error) {
	var challenges []db.Challenge
	if err := s.db.Order("created_at DESC").Find(&challenges).Error; err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	return challenges, nil
}

// Get 根据 ID 获取挑战
func (s *ChallengeService) Get(id uint) (*db.Challenge, error) {
	var challenge db.Challenge
	if err := s.db.First(&challenge, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return &challenge, nil
}

// Join 加入挑战并重算参与人数
func (s *ChallengeService) Join(challengeID, userID uint) (*db.ChallengeParticipant, error) {
	var participant db.ChallengeParticipant
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var challenge db.Challenge
		if err := lockChallenge(tx, challengeID, &challenge); err != nil {
			return err
		}

		participant = db.ChallengeParticipant{ChallengeID: challengeID, UserID: userID}
		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "challenge_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&participant)
		if insert.Error != nil {
			return fmt.Errorf("create participant: %w", insert.Error)
		}
		if insert.RowsAffected == 0 {
			return ErrAlreadyParticipant
		}

		return syncParticipantCount(tx, challengeID)
	})
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

// Leave 退出挑战；保留已有打卡日志，仅移除参与关系并重算人数
func (s *ChallengeService) Leave(challengeID, userID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var challenge db.Challenge
		if err := lockChallenge(tx, challengeID, &challenge); err != nil {
			return err
		}

		var participant db.ChallengeParticipant
		if err := tx.Where("challenge_id = ? AND user_id = ?", challengeID, userID).
			First(&participant).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotParticipant
			}
			return fmt.Errorf("find participant: %w", err)
		}

		// 参与关系按 (challenge_id, user_id) 唯一，退出后重新加入需要物理删除
		if err := tx.Unscoped().Delete(&participant).Error; err != nil {
			return fmt.Errorf("delete participant: %w", err)
		}

		return syncParticipantCount(tx, challengeID)
	})
}

// CheckIn 记录挑战打卡并同步参与者统计；重复日期返回 ErrCheckinExists
func (s *ChallengeService) CheckIn(challengeID, userID uint, date time.Time, note string) (*db.ChallengeParticipant, error) {
	day := normalizeToDate(date)

	var participant db.ChallengeParticipant
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := lockParticipant(tx, challengeID, userID, &participant); err != nil {
			return err
		}

		checkin := db.ChallengeCheckin{
			ChallengeID: challengeID,
			UserID:      userID,
			CheckinDate: day,
			Note:        strings.TrimSpace(note),
		}
		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "challenge_id"}, {Name: "user_id"}, {Name: "checkin_date"}},
			DoNothing: true,
		}).Create(&checkin)
		if insert.Error != nil {
			return fmt.Errorf("create checkin: %w", insert.Error)
		}
		if insert.RowsAffected == 0 {
			return ErrCheckinExists
		}

		return syncParticipantStats(tx, &participant)
	})
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

// RemoveCheckIn 撤销指定日期的挑战打卡并向后重算参与者统计
func (s *ChallengeService) RemoveCheckIn(challengeID, userID uint, date time.Time) (*db.ChallengeParticipant, error) {
	day := normalizeToDate(date)

	var participant db.ChallengeParticipant
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := lockParticipant(tx, challengeID, userID, &participant); err != nil {
			return err
		}

		var checkin db.ChallengeCheckin
		if err := tx.Where("challenge_id = ? AND user_id = ? AND checkin_date = ?", challengeID, userID, day).
			First(&checkin).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCheckinNotFound
			}
			return fmt.Errorf("find checkin: %w", err)
		}

		// 打卡日志按 (challenge_id, user_id, checkin_date) 唯一，撤销必须物理删除
		if err := tx.Unscoped().Delete(&checkin).Error; err != nil {
			return fmt.Errorf("delete checkin: %w", err)
		}

		return syncParticipantStats(tx, &participant)
	})
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func lockChallenge(tx *gorm.DB, challengeID uint, challenge *db.Challenge) error {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(challenge, challengeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrChallengeNotFound
		}
		return fmt.Errorf("lock challenge: %w", err)
	}
	return nil
}

func lockParticipant(tx *gorm.DB, challengeID, userID uint, participant *db.ChallengeParticipant) error {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("challenge_id = ? AND user_id = ?", challengeID, userID).
		First(participant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotParticipant
		}
		return fmt.Errorf("lock participant: %w", err)
	}
	return nil
}

func syncParticipantCount(tx *gorm.DB, challengeID uint) error {
	var count int64
	if err := tx.Model(&db.ChallengeParticipant{}).
		Where("challenge_id = ?", challengeID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("count participants: %w", err)
	}

	if err := tx.Model(&db.Challenge{}).
		Where("id = ?", challengeID).
		Update("participant_count", int(count)).Error; err != nil {
		return fmt.Errorf("save participant count: %w", err)
	}
	return nil
}

// syncParticipantStats 以打卡日志为准重算参与者统计并保存
func syncParticipantStats(tx *gorm.DB, participant *db.ChallengeParticipant) error {
	var latest db.ChallengeCheckin
	err := tx.Where("challenge_id = ? AND user_id = ?", participant.ChallengeID, participant.UserID).
		Order("checkin_date DESC").
		First(&latest).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		participant.CurrentStreak = 0
		participant.LastCheckinOn = nil
	case err != nil:
		return fmt.Errorf("find latest checkin: %w", err)
	default:
		streak, walkErr := participantStreakAt(tx, participant.ChallengeID, participant.UserID, latest.CheckinDate)
		if walkErr != nil {
			return fmt.Errorf("compute checkin streak: %w", walkErr)
		}
		participant.CurrentStreak = streak
		anchor := latest.CheckinDate
		participant.LastCheckinOn = &anchor
	}

	var total int64
	if err := tx.Model(&db.ChallengeCheckin{}).
		Where("challenge_id = ? AND user_id = ?", participant.ChallengeID, participant.UserID).
		Count(&total).Error; err != nil {
		return fmt.Errorf("count checkins: %w", err)
	}
	participant.CheckinCount = int(total)

	if err := tx.Save(participant).Error; err != nil {
		return fmt.Errorf("save participant stats: %w", err)
	}
	return nil
}
