package db

import (
	"time"

	"gorm.io/gorm"
)

// Challenge 定义了限时挑战模型
// ParticipantCount 为派生字段，等于 challenge_participants 子行数量
type Challenge struct {
	gorm.Model
	Name             string
	Description      string
	StartDate        *time.Time
	EndDate          *time.Time
	ParticipantCount int `gorm:"default:0"`
}

// ChallengeParticipant 记录参与关系及参与者维度的派生统计
// ChallengeID + UserID 采用唯一索引；CheckinCount/CurrentStreak 由同步逻辑维护
type ChallengeParticipant struct {
	gorm.Model
	ChallengeID   uint      `gorm:"index;index:idx_challenge_participant_unique,unique"`
	Challenge     Challenge `gorm:"constraint:OnDelete:CASCADE"`
	UserID        uint      `gorm:"index:idx_challenge_participant_unique,unique"`
	CheckinCount  int       `gorm:"default:0"`
	CurrentStreak int       `gorm:"default:0"`
	LastCheckinOn *time.Time
}

// ChallengeCheckin 记录挑战打卡事件
// ChallengeID + UserID + CheckinDate 采用唯一索引，保证每天至多一条
type ChallengeCheckin struct {
	gorm.Model
	ChallengeID uint      `gorm:"index;index:idx_challenge_checkin_unique,unique"`
	Challenge   Challenge `gorm:"constraint:OnDelete:CASCADE"`
	UserID      uint      `gorm:"index:idx_challenge_checkin_unique,unique"`
	CheckinDate time.Time `gorm:"index:idx_challenge_checkin_unique,unique"`
	Note        string
}

// TableName 指定自定义表名。
func (ChallengeCheckin) TableName() string {
	return "challenge_checkins"
}
