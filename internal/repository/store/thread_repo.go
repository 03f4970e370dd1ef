package store

import (
	"context"

	"Hope_Community/internal/model"

	"gorm.io/gorm"
)

type ThreadRepository struct {
	DB *gorm.DB
}

type ThreadQuery struct {
	CommunityID uint64
	Stage       string
	Type        string
	UserID      uint64
	Offset      int
	Limit       int
}

func (r *ThreadRepository) Create(ctx context.Context, t *model.Thread, links []model.ThreadCommunity) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(t).Error; err != nil {
			return err
		}
		return replaceLinks(tx, t.ID, links)
	})
}

func (r *ThreadRepository) FindByID(ctx context.Context, id uint64) (*model.Thread, error) {
	var t model.Thread
	err := r.DB.WithContext(ctx).First(&t, id).Error
	return &t, err
}

func (r *ThreadRepository) LinksByThreads(ctx context.Context, threadIDs []uint64) ([]model.ThreadCommunity, error) {
	var list []model.ThreadCommunity
	if len(threadIDs) == 0 {
		return list, nil
	}
	err := r.DB.WithContext(ctx).Where("thread_id IN ?", threadIDs).Order("id ASC").Find(&list).Error
	return list, err
}

// List 按社区/子社区或作者过滤，最新的在前
func (r *ThreadRepository) List(ctx context.Context, q ThreadQuery) ([]model.Thread, int64, error) {
	tx := r.DB.WithContext(ctx).Model(&model.Thread{})
	if q.CommunityID != 0 {
		sub := r.DB.WithContext(ctx).Model(&model.ThreadCommunity{}).
			Select("thread_id").
			Where("community_id = ?", q.CommunityID)
		if q.Stage != "" {
			sub = sub.Where("stage = ?", q.Stage)
		}
		if q.Type != "" {
			sub = sub.Where("type = ?", q.Type)
		}
		tx = tx.Where("id IN (?)", sub)
	}
	if q.UserID != 0 {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	var total int64
	if err := tx.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Thread
	err := tx.Order("created_at DESC, id DESC").Offset(q.Offset).Limit(q.Limit).Find(&list).Error
	return list, total, err
}

// Update links 为 nil 时保留原有关联
func (r *ThreadRepository) Update(ctx context.Context, id uint64, title, content string, links []model.ThreadCommunity) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Thread{}).Where("id = ?", id).
			Updates(map[string]any{"title": title, "content": content}).Error; err != nil {
			return err
		}
		if links == nil {
			return nil
		}
		return replaceLinks(tx, id, links)
	})
}

func (r *ThreadRepository) Delete(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("thread_id = ?", id).Delete(&model.ThreadCommunity{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Thread{}, id).Error
	})
}

func replaceLinks(tx *gorm.DB, threadID uint64, links []model.ThreadCommunity) error {
	if err := tx.Where("thread_id = ?", threadID).Delete(&model.ThreadCommunity{}).Error; err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}
	for i := range links {
		links[i].ID = 0
		links[i].ThreadID = threadID
	}
	return tx.Create(&links).Error
}
