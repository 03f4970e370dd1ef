package store

import (
	"context"

	"Hope_Community/internal/model"

	"gorm.io/gorm"
)

type ReplyRepository struct {
	DB *gorm.DB
}

func (r *ReplyRepository) Create(ctx context.Context, reply *model.Reply) error {
	return r.DB.WithContext(ctx).Create(reply).Error
}

func (r *ReplyRepository) FindByID(ctx context.Context, id uint64) (*model.Reply, error) {
	var reply model.Reply
	err := r.DB.WithContext(ctx).First(&reply, id).Error
	return &reply, err
}

func (r *ReplyRepository) ListByThread(ctx context.Context, threadID uint64) ([]model.Reply, error) {
	var list []model.Reply
	err := r.DB.WithContext(ctx).Where("thread_id = ?", threadID).Order("created_at ASC, id ASC").Find(&list).Error
	return list, err
}

// CountByThreads 列表页用，一次查询
func (r *ReplyRepository) CountByThreads(ctx context.Context, threadIDs []uint64) (map[uint64]int64, error) {
	out := make(map[uint64]int64, len(threadIDs))
	if len(threadIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ThreadID uint64
		N        int64
	}
	err := r.DB.WithContext(ctx).Model(&model.Reply{}).
		Select("thread_id, COUNT(*) AS n").
		Where("thread_id IN ?", threadIDs).
		Group("thread_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ThreadID] = row.N
	}
	return out, nil
}

func (r *ReplyRepository) UpdateContent(ctx context.Context, id uint64, content string) error {
	return r.DB.WithContext(ctx).Model(&model.Reply{}).Where("id = ?", id).Update("content", content).Error
}

func (r *ReplyRepository) DeleteByIDs(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Where("id IN ?", ids).Delete(&model.Reply{}).Error
}

func (r *ReplyRepository) DeleteByThread(ctx context.Context, threadID uint64) error {
	return r.DB.WithContext(ctx).Where("thread_id = ?", threadID).Delete(&model.Reply{}).Error
}
