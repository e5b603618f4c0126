package db

import "time"

// QuotaUsage 记录用户在某一天对某类资源的用量
// UserID + ResourceType + UsageDate 采用唯一索引，保证每天至多一行
// Count/Tokens 只增不减，正常操作不会删除该表的行
// 窗口（日/月）与上限在查询时按档位计算，不做预聚合
type QuotaUsage struct {
	ID           uint      `gorm:"primaryKey"`
	UserID       uint      `gorm:"index:idx_quota_usage_unique,unique"`
	ResourceType string    `gorm:"size:32;index:idx_quota_usage_unique,unique"`
	UsageDate    time.Time `gorm:"index:idx_quota_usage_unique,unique"`
	Count        int       `gorm:"default:0"`
	Tokens       int       `gorm:"default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName 指定自定义表名。
func (QuotaUsage) TableName() string {
	return "quota_usages"
}
