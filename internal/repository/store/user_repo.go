package store

import (
	"context"

	"Hope_Community/internal/model"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.DB.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error
	return &user, err
}

func (r *UserRepository) FindByID(ctx context.Context, id uint64) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).First(&user, id).Error
	return &user, err
}

func (r *UserRepository) FindByIDs(ctx context.Context, ids []uint64) ([]model.User, error) {
	var list []model.User
	if len(ids) == 0 {
		return list, nil
	}
	err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error
	return list, err
}

// UpdateProfile 资料字段整体覆盖；diseases/hospitals 不为 nil 时先删后插
func (r *UserRepository) UpdateProfile(ctx context.Context, userID uint64, fields map[string]any,
	diseases []model.UserDiseaseHistory, hospitals []model.UserHospital) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(fields) > 0 {
			if err := tx.Model(&model.User{}).Where("id = ?", userID).Updates(fields).Error; err != nil {
				return err
			}
		}
		if diseases != nil {
			if err := tx.Where("user_id = ?", userID).Delete(&model.UserDiseaseHistory{}).Error; err != nil {
				return err
			}
			for i := range diseases {
				diseases[i].ID = 0
				diseases[i].UserID = userID
			}
			if len(diseases) > 0 {
				if err := tx.Create(&diseases).Error; err != nil {
					return err
				}
			}
		}
		if hospitals != nil {
			if err := tx.Where("user_id = ?", userID).Delete(&model.UserHospital{}).Error; err != nil {
				return err
			}
			for i := range hospitals {
				hospitals[i].ID = 0
				hospitals[i].UserID = userID
			}
			if len(hospitals) > 0 {
				if err := tx.Create(&hospitals).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID uint64, hash string) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("password", hash).Error
}

func (r *UserRepository) DiseasesByUsers(ctx context.Context, userIDs []uint64) ([]model.UserDiseaseHistory, error) {
	var list []model.UserDiseaseHistory
	if len(userIDs) == 0 {
		return list, nil
	}
	err := r.DB.WithContext(ctx).Where("user_id IN ?", userIDs).Order("user_id ASC, id ASC").Find(&list).Error
	return list, err
}

func (r *UserRepository) HospitalsByUsers(ctx context.Context, userIDs []uint64) ([]model.UserHospital, error) {
	var list []model.UserHospital
	if len(userIDs) == 0 {
		return list, nil
	}
	err := r.DB.WithContext(ctx).Where("user_id IN ?", userIDs).Order("user_id ASC, id ASC").Find(&list).Error
	return list, err
}

func (r *UserRepository) ListGurus(ctx context.Context, offset, limit int) ([]model.User, int64, error) {
	q := r.DB.WithContext(ctx).Model(&model.User{}).Where("is_guru = ?", true)
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.User
	err := q.Order("id ASC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

func (r *UserRepository) SetGuru(ctx context.Context, userID uint64, isGuru bool, intro string) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).
		Updates(map[string]any{"is_guru": isGuru, "guru_intro": intro}).Error
}
