package model

import "time"

type Thread struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	UserID    uint64    `gorm:"not null;index" json:"user_id"`
	Title     string    `gorm:"size:200;not null" json:"title"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ThreadCommunity 帖子与社区/子社区的关联
type ThreadCommunity struct {
	ID          uint64 `gorm:"primaryKey" json:"-"`
	ThreadID    uint64 `gorm:"not null;index;uniqueIndex:uk_thread_community,priority:1" json:"-"`
	CommunityID uint64 `gorm:"not null;index;uniqueIndex:uk_thread_community,priority:2" json:"community_id"`
	Stage       string `gorm:"size:64;not null;default:'';uniqueIndex:uk_thread_community,priority:3" json:"stage"`
	Type        string `gorm:"size:64;not null;default:'';uniqueIndex:uk_thread_community,priority:4" json:"type"`
}

// Reply ParentReplyID 为空表示直接回复帖子
type Reply struct {
	ID            uint64    `gorm:"primaryKey" json:"id"`
	ThreadID      uint64    `gorm:"not null;index" json:"thread_id"`
	UserID        uint64    `gorm:"not null;index" json:"user_id"`
	ParentReplyID *uint64   `gorm:"index" json:"parent_reply_id"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
