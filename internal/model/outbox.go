package model

import "time"

const (
	OutboxPending int8 = 0
	OutboxSent    int8 = 1
	OutboxFailed  int8 = 2
)

// MembershipOutbox 成员变更事件表，与成员关系在同一事务内写入
type MembershipOutbox struct {
	ID          uint64    `gorm:"primaryKey"`
	EventType   string    `gorm:"size:16;not null"` // join / leave
	UserID      uint64    `gorm:"not null"`
	CommunityID uint64    `gorm:"not null"`
	Stage       string    `gorm:"size:64;not null;default:''"`
	Type        string    `gorm:"size:64;not null;default:''"`
	Payload     string    `gorm:"type:text;not null"`
	Status      int8      `gorm:"not null;default:0;index"`
	Retry       int       `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (MembershipOutbox) TableName() string { return "membership_outbox" }

// SchemaMigration 每个库各自记录已执行的迁移版本
type SchemaMigration struct {
	Version   int    `gorm:"primaryKey;autoIncrement:false"`
	Name      string `gorm:"size:128;not null"`
	AppliedAt time.Time
}
