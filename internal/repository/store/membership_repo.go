package store

import (
	"context"
	"encoding/json"
	"time"

	"Hope_Community/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MembershipRepository struct {
	DB *gorm.DB
}

// MembershipKey 一行成员关系在某社区内的位置
type MembershipKey struct {
	Stage string
	Type  string
}

func (k MembershipKey) Level() model.Level { return model.LevelOf(k.Stage, k.Type) }

// InsertIgnore 按顺序幂等插入，返回真正新增的行；新增行同时写 outbox
func (r *MembershipRepository) InsertIgnore(ctx context.Context, userID, communityID uint64, keys []MembershipKey) ([]MembershipKey, error) {
	var inserted []MembershipKey
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted = inserted[:0]
		for _, k := range keys {
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "community_id"}, {Name: "stage"}, {Name: "type"}},
				DoNothing: true,
			}).Create(&model.UserCommunityMembership{
				UserID:      userID,
				CommunityID: communityID,
				Stage:       k.Stage,
				Type:        k.Type,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			inserted = append(inserted, k)
			if err := insertOutbox(tx, "join", userID, communityID, k); err != nil {
				return err
			}
		}
		return nil
	})
	return inserted, err
}

// Delete 按目标层级级联删除，返回被删除的全部行
//   - 一级：删除该社区下该用户的所有行
//   - 二级：先删共享该维度值的三级行，再删目标行
//   - 三级：只删目标行
func (r *MembershipRepository) Delete(ctx context.Context, userID, communityID uint64, target MembershipKey) ([]MembershipKey, error) {
	var removed []MembershipKey
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		removed = removed[:0]
		q := tx.Where("user_id = ? AND community_id = ?", userID, communityID)
		switch {
		case target.Stage == "" && target.Type == "":
			// 一级：全部
		case target.Type == "":
			q = q.Where("stage = ?", target.Stage)
		case target.Stage == "":
			q = q.Where("type = ?", target.Type)
		default:
			q = q.Where("stage = ? AND type = ?", target.Stage, target.Type)
		}

		var rows []model.UserCommunityMembership
		if err := q.Order("id ASC").Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]uint64, 0, len(rows))
		for _, m := range rows {
			ids = append(ids, m.ID)
		}
		if err := tx.Where("id IN ?", ids).Delete(&model.UserCommunityMembership{}).Error; err != nil {
			return err
		}
		for _, m := range rows {
			k := MembershipKey{Stage: m.Stage, Type: m.Type}
			removed = append(removed, k)
			if err := insertOutbox(tx, "leave", userID, communityID, k); err != nil {
				return err
			}
		}
		return nil
	})
	return removed, err
}

func (r *MembershipRepository) IsMember(ctx context.Context, userID, communityID uint64, key MembershipKey) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.UserCommunityMembership{}).
		Where("user_id = ? AND community_id = ? AND stage = ? AND type = ?", userID, communityID, key.Stage, key.Type).
		Count(&count).Error
	return count > 0, err
}

// ListByUser communityID 为 0 时不过滤社区
func (r *MembershipRepository) ListByUser(ctx context.Context, userID, communityID uint64) ([]model.UserCommunityMembership, error) {
	q := r.DB.WithContext(ctx).Where("user_id = ?", userID)
	if communityID != 0 {
		q = q.Where("community_id = ?", communityID)
	}
	var list []model.UserCommunityMembership
	err := q.Order("community_id ASC, stage ASC, type ASC").Find(&list).Error
	return list, err
}

func (r *MembershipRepository) ListByUsers(ctx context.Context, userIDs []uint64) ([]model.UserCommunityMembership, error) {
	var list []model.UserCommunityMembership
	if len(userIDs) == 0 {
		return list, nil
	}
	err := r.DB.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("user_id ASC, community_id ASC, stage ASC, type ASC").
		Find(&list).Error
	return list, err
}

// GroupCounts 对账用：某社区每个 (stage, type) 的真实成员数
func (r *MembershipRepository) GroupCounts(ctx context.Context, communityID uint64) (map[SubKey]int64, error) {
	var rows []struct {
		Stage string
		Type  string
		N     int64
	}
	err := r.DB.WithContext(ctx).Model(&model.UserCommunityMembership{}).
		Select("stage, type, COUNT(*) AS n").
		Where("community_id = ?", communityID).
		Group("stage, type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[SubKey]int64, len(rows))
	for _, row := range rows {
		out[SubKey{Stage: row.Stage, Type: row.Type}] = row.N
	}
	return out, nil
}

func insertOutbox(tx *gorm.DB, event string, userID, communityID uint64, k MembershipKey) error {
	payload, _ := json.Marshal(map[string]any{
		"event":        event,
		"event_time":   time.Now().UTC().Format(time.RFC3339Nano),
		"user_id":      userID,
		"community_id": communityID,
		"stage":        k.Stage,
		"type":         k.Type,
		"level":        int(k.Level()),
	})
	return tx.Create(&model.MembershipOutbox{
		EventType:   event,
		UserID:      userID,
		CommunityID: communityID,
		Stage:       k.Stage,
		Type:        k.Type,
		Payload:     string(payload),
		Status:      model.OutboxPending,
	}).Error
}
