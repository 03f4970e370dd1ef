package store

import (
	"context"

	"Hope_Community/internal/model"

	"gorm.io/gorm"
)

type GuruRepository struct {
	DB *gorm.DB
}

func (r *GuruRepository) CreateQuestion(ctx context.Context, q *model.GuruQuestion) error {
	return r.DB.WithContext(ctx).Create(q).Error
}

func (r *GuruRepository) FindQuestion(ctx context.Context, id uint64) (*model.GuruQuestion, error) {
	var q model.GuruQuestion
	err := r.DB.WithContext(ctx).First(&q, id).Error
	return &q, err
}

func (r *GuruRepository) ListQuestionsByGuru(ctx context.Context, guruID uint64, offset, limit int) ([]model.GuruQuestion, int64, error) {
	q := r.DB.WithContext(ctx).Model(&model.GuruQuestion{}).Where("guru_id = ?", guruID)
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.GuruQuestion
	err := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

// AddReply 写回复与 reply_count+1 在同一事务
func (r *GuruRepository) AddReply(ctx context.Context, reply *model.GuruQuestionReply) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(reply).Error; err != nil {
			return err
		}
		return tx.Model(&model.GuruQuestion{}).
			Where("id = ?", reply.QuestionID).
			UpdateColumn("reply_count", gorm.Expr("reply_count + 1")).Error
	})
}

func (r *GuruRepository) ListReplies(ctx context.Context, questionID uint64) ([]model.GuruQuestionReply, error) {
	var list []model.GuruQuestionReply
	err := r.DB.WithContext(ctx).Where("question_id = ?", questionID).Order("created_at ASC, id ASC").Find(&list).Error
	return list, err
}

func (r *GuruRepository) DeleteQuestion(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ?", id).Delete(&model.GuruQuestionReply{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.GuruQuestion{}, id).Error
	})
}
