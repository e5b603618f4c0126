package db

import "gorm.io/gorm"

// Group 定义了习惯小组模型
// MemberCount 为派生字段，必须等于 group_members 中对应子行数量，
// 由同步逻辑在成员增删的同一事务内按 COUNT 重算
type Group struct {
	gorm.Model
	Name        string
	Description string
	OwnerID     uint `gorm:"index"`
	MemberCount int  `gorm:"default:0"`
}

// GroupMember 记录小组成员关系
// GroupID + UserID 采用唯一索引，避免重复加入
type GroupMember struct {
	gorm.Model
	GroupID uint  `gorm:"index;index:idx_group_member_unique,unique"`
	Group   Group `gorm:"constraint:OnDelete:CASCADE"`
	UserID  uint  `gorm:"index:idx_group_member_unique,unique"`
	Role    string
}
