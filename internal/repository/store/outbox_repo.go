package store

import (
	"context"

	"Hope_Community/internal/model"

	"gorm.io/gorm"
)

type OutboxRepository struct {
	DB *gorm.DB
}

// List 待投递与可重试的事件，按写入顺序
func (r *OutboxRepository) List(ctx context.Context, batchSize, maxRetry int) ([]model.MembershipOutbox, error) {
	var list []model.MembershipOutbox
	if err := r.DB.WithContext(ctx).
		Where("status = ? OR (status = ? AND retry < ?)", model.OutboxPending, model.OutboxFailed, maxRetry).
		Order("id ASC").
		Limit(batchSize).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// RetryUpdate 投递失败记录重试次数
func (r *OutboxRepository) RetryUpdate(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&model.MembershipOutbox{}).Where("id = ?", id).
		Updates(map[string]any{"status": model.OutboxFailed, "retry": gorm.Expr("retry + 1")}).Error
}

func (r *OutboxRepository) SuccessUpdate(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&model.MembershipOutbox{}).Where("id = ?", id).
		Update("status", model.OutboxSent).Error
}
