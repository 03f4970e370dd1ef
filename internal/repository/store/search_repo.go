package store

import (
	"context"
	"sort"
	"strings"

	"Hope_Community/internal/model"

	"gorm.io/gorm"
)

type SearchRepository struct {
	DB *gorm.DB
}

// CommunityFilter stage/type 为空表示不限该维度
type CommunityFilter struct {
	CommunityID uint64 `json:"community_id"`
	Stage       string `json:"stage"`
	Type        string `json:"type"`
}

// UserQuery 作用在 users 表上的谓词，全部以 AND 组合
type UserQuery struct {
	RestrictIDs     bool
	IDs             []uint64
	Exact           map[string]string // 列名 -> 取值
	AgeMin          *int
	AgeMax          *int
	Location        string
	Profession      string
	ExcludeUsername string
	Limit           int
	Offset          int
}

// UsersInCommunities 多个社区条件之间为 OR
func (r *SearchRepository) UsersInCommunities(ctx context.Context, filters []CommunityFilter) ([]uint64, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	parts := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters)*3)
	for _, f := range filters {
		cond := "(community_id = ?"
		args = append(args, f.CommunityID)
		if f.Stage != "" {
			cond += " AND stage = ?"
			args = append(args, f.Stage)
		}
		if f.Type != "" {
			cond += " AND type = ?"
			args = append(args, f.Type)
		}
		parts = append(parts, cond+")")
	}
	var ids []uint64
	err := r.DB.WithContext(ctx).Model(&model.UserCommunityMembership{}).
		Where(strings.Join(parts, " OR "), args...).
		Distinct().
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *SearchRepository) UsersWithDisease(ctx context.Context, term string) ([]uint64, error) {
	var ids []uint64
	err := r.DB.WithContext(ctx).Model(&model.UserDiseaseHistory{}).
		Where("disease LIKE ?", "%"+term+"%").
		Distinct().
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *SearchRepository) UsersWithHospital(ctx context.Context, term string) ([]uint64, error) {
	var ids []uint64
	err := r.DB.WithContext(ctx).Model(&model.UserHospital{}).
		Where("hospital LIKE ?", "%"+term+"%").
		Distinct().
		Pluck("user_id", &ids).Error
	return ids, err
}

// FindUsers total 与分页共用同一组条件
func (r *SearchRepository) FindUsers(ctx context.Context, q UserQuery) ([]model.User, int64, error) {
	tx := r.DB.WithContext(ctx).Model(&model.User{})
	if q.RestrictIDs {
		if len(q.IDs) == 0 {
			return []model.User{}, 0, nil
		}
		tx = tx.Where("id IN ?", q.IDs)
	}

	cols := make([]string, 0, len(q.Exact))
	for col := range q.Exact {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		tx = tx.Where(col+" = ?", q.Exact[col])
	}

	if q.AgeMin != nil {
		tx = tx.Where("age >= ?", *q.AgeMin)
	}
	if q.AgeMax != nil {
		tx = tx.Where("age <= ?", *q.AgeMax)
	}
	if q.Location != "" {
		like := "%" + q.Location + "%"
		tx = tx.Where("(birth_location LIKE ? OR residence_location LIKE ?)", like, like)
	}
	if q.Profession != "" {
		tx = tx.Where("profession LIKE ?", "%"+q.Profession+"%")
	}
	if q.ExcludeUsername != "" {
		tx = tx.Where("username <> ?", q.ExcludeUsername)
	}

	var total int64
	if err := tx.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []model.User
	err := tx.Order("id ASC").Offset(q.Offset).Limit(q.Limit).Find(&users).Error
	return users, total, err
}
