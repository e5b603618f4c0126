package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/routinelog/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrGroupNotFound 在指定小组不存在时返回
	ErrGroupNotFound = errors.New("group not found")
	// ErrAlreadyGroupMember 在重复加入小组时返回
	ErrAlreadyGroupMember = errors.New("already a group member")
	// ErrNotGroupMember 在退出未加入的小组时返回
	ErrNotGroupMember = errors.New("not a group member")
)

// GroupService 负责习惯小组及成员关系
// member_count 在成员增删的同一事务内按 COUNT 重算而非加减一，
// 并发加入/退出互相竞争时也不会漂移
type GroupService struct {
	db *gorm.DB
}

// GroupInput 定义创建小组时可配置字段
type GroupInput struct {
	Name        string
	Description string
}

// NewGroupService 构造 GroupService
func NewGroupService(gdb *gorm.DB) *GroupService {
	return &GroupService{db: gdb}
}

// Create 新建小组，创建者自动成为 owner 成员
func (s *GroupService) Create(ownerID uint, input GroupInput) (*db.Group, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("group name is required")
	}

	group := db.Group{
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		OwnerID:     ownerID,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return fmt.Errorf("create group: %w", err)
		}

		member := db.GroupMember{GroupID: group.ID, UserID: ownerID, Role: "owner"}
		if err := tx.Create(&member).Error; err != nil {
			return fmt.Errorf("create owner membership: %w", err)
		}

		return syncGroupMemberCount(tx, &group)
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// List 返回全部小组
func (s *GroupService) List() ([]db.Group, error) {
	var groups []db.Group
	if err := s.db.Order("created_at DESC").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// Get 根据 ID 获取小组
func (s *GroupService) Get(id uint) (*db.Group, error) {
	var group db.Group
	if err := s.db.First(&group, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &group, nil
}

// Join 加入小组；重复加入返回 ErrAlreadyGroupMember 且不触碰计数
func (s *GroupService) Join(groupID, userID uint) (*db.Group, error) {
	var group db.Group
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := lockGroup(tx, groupID, &group); err != nil {
			return err
		}

		member := db.GroupMember{GroupID: groupID, UserID: userID, Role: "member"}
		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&member)
		if insert.Error != nil {
			return fmt.Errorf("create membership: %w", insert.Error)
		}
		if insert.RowsAffected == 0 {
			return ErrAlreadyGroupMember
		}

		return syncGroupMemberCount(tx, &group)
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// Leave 退出小组；未加入返回 ErrNotGroupMember
func (s *GroupService) Leave(groupID, userID uint) (*db.Group, error) {
	var group db.Group
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := lockGroup(tx, groupID, &group); err != nil {
			return err
		}

		var member db.GroupMember
		if err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).
			First(&member).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotGroupMember
			}
			return fmt.Errorf("find membership: %w", err)
		}

		// 成员关系按 (group_id, user_id) 唯一，退出后重新加入需要物理删除
		if err := tx.Unscoped().Delete(&member).Error; err != nil {
			return fmt.Errorf("delete membership: %w", err)
		}

		return syncGroupMemberCount(tx, &group)
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func lockGroup(tx *gorm.DB, groupID uint, group *db.Group) error {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGroupNotFound
		}
		return fmt.Errorf("lock group: %w", err)
	}
	return nil
}

func syncGroupMemberCount(tx *gorm.DB, group *db.Group) error {
	var count int64
	if err := tx.Model(&db.GroupMember{}).
		Where("group_id = ?", group.ID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("count members: %w", err)
	}

	group.MemberCount = int(count)
	if err := tx.Model(&db.Group{}).
		Where("id = ?", group.ID).
		Update("member_count", group.MemberCount).Error; err != nil {
		return fmt.Errorf("save member count: %w", err)
	}
	return nil
}
