package store

import (
	"context"

	"Hope_Community/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CommunityRepository struct {
	DB *gorm.DB
}

// CountDelta 对某个（子）社区人数的增减，stage/type 都为空时作用于 communities.member_count
type CountDelta struct {
	CommunityID uint64
	Stage       string
	Type        string
	Delta       int64
}

func (r *CommunityRepository) Create(ctx context.Context, c *model.Community) error {
	return r.DB.WithContext(ctx).Create(c).Error
}

func (r *CommunityRepository) FindByID(ctx context.Context, id uint64) (*model.Community, error) {
	var community model.Community
	err := r.DB.WithContext(ctx).First(&community, id).Error
	return &community, err
}

func (r *CommunityRepository) FindByIDs(ctx context.Context, ids []uint64) ([]model.Community, error) {
	var list []model.Community
	if len(ids) == 0 {
		return list, nil
	}
	err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error
	return list, err
}

// Search 名称或简介模糊匹配，q 为空时列出全部
func (r *CommunityRepository) Search(ctx context.Context, q string, offset, limit int) ([]model.Community, int64, error) {
	query := r.DB.WithContext(ctx).Model(&model.Community{})
	if q != "" {
		like := "%" + q + "%"
		query = query.Where("name LIKE ? OR description LIKE ?", like, like)
	}
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Community
	err := query.Order("member_count DESC, id ASC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

func (r *CommunityRepository) SubCounts(ctx context.Context, communityID uint64) ([]model.SubCommunityMember, error) {
	var list []model.SubCommunityMember
	err := r.DB.WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("stage ASC, type ASC").
		Find(&list).Error
	return list, err
}

// ApplyDeltas 在 communities 库的一个事务内应用全部计数变化，人数不会减到负数
func (r *CommunityRepository) ApplyDeltas(ctx context.Context, deltas []CountDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, d := range deltas {
			if err := applyDelta(tx, d); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyDelta(tx *gorm.DB, d CountDelta) error {
	if d.Delta == 0 {
		return nil
	}
	if d.Stage == "" && d.Type == "" {
		return tx.Model(&model.Community{}).
			Where("id = ?", d.CommunityID).
			UpdateColumn("member_count", countExpr(d.Delta)).Error
	}
	if d.Delta > 0 {
		// 子社区行不存在时插入
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "community_id"}, {Name: "stage"}, {Name: "type"}},
			DoUpdates: clause.Assignments(map[string]any{
				"member_count": gorm.Expr("member_count + ?", d.Delta),
			}),
		}).Create(&model.SubCommunityMember{
			CommunityID: d.CommunityID,
			Stage:       d.Stage,
			Type:        d.Type,
			MemberCount: d.Delta,
		}).Error
	}
	return tx.Model(&model.SubCommunityMember{}).
		Where("community_id = ? AND stage = ? AND type = ?", d.CommunityID, d.Stage, d.Type).
		UpdateColumn("member_count", countExpr(d.Delta)).Error
}

func countExpr(delta int64) clause.Expr {
	if delta > 0 {
		return gorm.Expr("member_count + ?", delta)
	}
	return gorm.Expr("CASE WHEN member_count > ? THEN member_count - ? ELSE 0 END", -delta, -delta)
}

// ListAfter 对账用：按 id 游标分批读取
func (r *CommunityRepository) ListAfter(ctx context.Context, lastID uint64, limit int) ([]model.Community, error) {
	var list []model.Community
	err := r.DB.WithContext(ctx).
		Where("id > ?", lastID).
		Order("id ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *CommunityRepository) SetMemberCount(ctx context.Context, communityID uint64, n int64) error {
	return r.DB.WithContext(ctx).Model(&model.Community{}).
		Where("id = ?", communityID).
		UpdateColumn("member_count", n).Error
}

// ReplaceSubCounts 用真实值覆盖某社区全部子社区计数，缺失的置 0
func (r *CommunityRepository) ReplaceSubCounts(ctx context.Context, communityID uint64, counts map[SubKey]int64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.SubCommunityMember{}).
			Where("community_id = ?", communityID).
			UpdateColumn("member_count", 0).Error; err != nil {
			return err
		}
		for k, n := range counts {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "community_id"}, {Name: "stage"}, {Name: "type"}},
				DoUpdates: clause.AssignmentColumns([]string{"member_count"}),
			}).Create(&model.SubCommunityMember{
				CommunityID: communityID,
				Stage:       k.Stage,
				Type:        k.Type,
				MemberCount: n,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SubKey 子社区标识
type SubKey struct {
	Stage string
	Type  string
}
