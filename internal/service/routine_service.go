package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/routinelog/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrRoutineNotFound 在指定例行不存在时返回
	ErrRoutineNotFound = errors.New("routine not found")
	// ErrRoutineHasCompletions 在尝试硬删除仍有打卡记录的例行时返回
	ErrRoutineHasCompletions = errors.New("routine still has completion records")
	// ErrRoutineInvalidStatus 当状态取值异常时返回
	ErrRoutineInvalidStatus = errors.New("invalid routine status")
)

// RoutineService 负责例行数据的增删改查
// 聚合字段（连胜/完成数）由 CompletionService 独占维护，这里绝不触碰；
// 例行存在打卡记录时只能归档，不允许硬删除，以保留事件日志
type RoutineService struct {
	db *gorm.DB
}

// RoutineFilter 描述列表过滤条件
type RoutineFilter struct {
	Status  string
	TypeTag string
	Search  string
}

// RoutineInput 定义创建/更新例行时可配置字段
type RoutineInput struct {
	Name        string
	Description string
	TypeTag     string
}

// NewRoutineService 构造 RoutineService
func NewRoutineService(gdb *gorm.DB) *RoutineService {
	return &RoutineService{db: gdb}
}

// List 返回用户的例行集合，支持基本筛选
func (s *RoutineService) List(userID uint, filter RoutineFilter) ([]db.Routine, error) {
	var routines []db.Routine

	query := s.db.Model(&db.Routine{}).Where("user_id = ?", userID)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TypeTag != "" {
		query = query.Where("type_tag = ?", filter.TypeTag)
	}
	if filter.Search != "" {
		like := fmt.Sprintf("%%%s%%", strings.TrimSpace(filter.Search))
		query = query.Where("name LIKE ? OR description LIKE ?", like, like)
	}

	if err := query.Order("created_at DESC").Find(&routines).Error; err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}

	return routines, nil
}

// Get 根据 ID 获取例行，校验归属
func (s *RoutineService) Get(userID, id uint) (*db.Routine, error) {
	var routine db.Routine
	if err := s.db.Where("user_id = ?", userID).First(&routine, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoutineNotFound
		}
		return nil, fmt.Errorf("get routine: %w", err)
	}
	return &routine, nil
}

// Create 新建例行并刷新档案的例行计数
func (s *RoutineService) Create(userID uint, input RoutineInput) (*db.Routine, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("routine name is required")
	}

	routine := db.Routine{
		UserID:      userID,
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		TypeTag:     strings.TrimSpace(input.TypeTag),
		Status:      db.RoutineStatusActive,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&routine).Error; err != nil {
			return fmt.Errorf("create routine: %w", err)
		}
		return refreshUserRollups(tx, userID)
	})
	if err != nil {
		return nil, err
	}
	return &routine, nil
}

// Update 更新例行的描述性字段
func (s *RoutineService) Update(userID, id uint, input RoutineInput) (*db.Routine, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("routine name is required")
	}

	existing, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.Description = strings.TrimSpace(input.Description)
	existing.TypeTag = strings.TrimSpace(input.TypeTag)

	if err := s.db.Save(existing).Error; err != nil {
		return nil, fmt.Errorf("update routine: %w", err)
	}
	return existing, nil
}

// SetStatus 归档或恢复例行，并刷新档案汇总
// 归档会把例行移出 current_streak 的统计范围，longest_streak 不受影响
func (s *RoutineService) SetStatus(userID, id uint, status string) (*db.Routine, error) {
	status = strings.TrimSpace(strings.ToLower(status))
	if status != db.RoutineStatusActive && status != db.RoutineStatusArchived {
		return nil, ErrRoutineInvalidStatus
	}

	existing, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}

	existing.Status = status
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(existing).Error; err != nil {
			return fmt.Errorf("update routine status: %w", err)
		}
		return refreshUserRollups(tx, userID)
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete 硬删除例行；仍有打卡记录时拒绝，改用归档
func (s *RoutineService) Delete(userID, id uint) error {
	existing, err := s.Get(userID, id)
	if err != nil {
		return err
	}

	var count int64
	if err := s.db.Model(&db.CompletionRecord{}).
		Where("routine_id = ?", existing.ID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("count completions: %w", err)
	}
	if count > 0 {
		return ErrRoutineHasCompletions
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&db.Routine{}, existing.ID).Error; err != nil {
			return fmt.Errorf("delete routine: %w", err)
		}
		return refreshUserRollups(tx, userID)
	})
}
