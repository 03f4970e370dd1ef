package model

import "time"

type GuruQuestion struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	AskerID    uint64    `gorm:"not null;index" json:"asker_id"`
	GuruID     uint64    `gorm:"not null;index" json:"guru_id"`
	Title      string    `gorm:"size:200;not null" json:"title"`
	Content    string    `gorm:"type:text" json:"content"`
	ReplyCount int64     `gorm:"not null;default:0" json:"reply_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type GuruQuestionReply struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	QuestionID uint64    `gorm:"not null;index" json:"question_id"`
	UserID     uint64    `gorm:"not null;index" json:"user_id"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}
