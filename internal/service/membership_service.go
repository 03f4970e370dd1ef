package service

import (
	"context"
	"fmt"
	"time"

	"Hope_Community/internal/model"
	"Hope_Community/internal/pkg"
	"Hope_Community/internal/repository/store"

	"go.uber.org/zap"
)

// MembershipService 三级社区成员关系：加入/退出时级联并维护人数
type MembershipService struct {
	communities *store.CommunityRepository
	memberships *store.MembershipRepository
	log         *zap.Logger
}

type JoinResult struct {
	Level   model.Level `json:"level"`
	Changed bool        `json:"changed"`
}

// MembershipView 用户的一条成员关系，details 时附带社区信息
type MembershipView struct {
	CommunityID   uint64      `json:"community_id"`
	Stage         string      `json:"stage"`
	Type          string      `json:"type"`
	Level         model.Level `json:"level"`
	JoinedAt      time.Time   `json:"joined_at"`
	CommunityName string      `json:"community_name,omitempty"`
	Description   string      `json:"description,omitempty"`
}

func NewMembershipService(communities *store.CommunityRepository, memberships *store.MembershipRepository, log *zap.Logger) *MembershipService {
	return &MembershipService{communities: communities, memberships: memberships, log: log}
}

// Join 先保证一级成员，三级时补齐两个二级，最后插入目标行；只有新插入的行才计数
func (s *MembershipService) Join(ctx context.Context, userID, communityID uint64, stage, typ string) (JoinResult, error) {
	stage, typ = normalizeKey(stage, typ)
	community, err := s.communities.FindByID(ctx, communityID)
	if err != nil {
		return JoinResult{}, notFound(err, "社区不存在")
	}
	if err = validateKey(community.Dims(), stage, typ); err != nil {
		return JoinResult{}, err
	}

	level := model.LevelOf(stage, typ)
	plan := []store.MembershipKey{{}}
	if level == model.LevelIII {
		plan = append(plan, store.MembershipKey{Stage: stage}, store.MembershipKey{Type: typ})
	}
	if level != model.LevelI {
		plan = append(plan, store.MembershipKey{Stage: stage, Type: typ})
	}

	inserted, err := s.memberships.InsertIgnore(ctx, userID, communityID, plan)
	if err != nil {
		return JoinResult{}, fmt.Errorf("insert memberships: %w", err)
	}
	if err = s.applyCounts(ctx, communityID, inserted, 1); err != nil {
		return JoinResult{}, err
	}
	return JoinResult{Level: level, Changed: len(inserted) > 0}, nil
}

// Leave 一级退出删除该社区全部行；二级连带删除共享该维度值的三级行；三级只删自身
// 返回目标行本身是否被删除
func (s *MembershipService) Leave(ctx context.Context, userID, communityID uint64, stage, typ string) (bool, error) {
	stage, typ = normalizeKey(stage, typ)
	if _, err := s.communities.FindByID(ctx, communityID); err != nil {
		return false, notFound(err, "社区不存在")
	}
	target := store.MembershipKey{Stage: stage, Type: typ}
	removed, err := s.memberships.Delete(ctx, userID, communityID, target)
	if err != nil {
		return false, fmt.Errorf("delete memberships: %w", err)
	}
	if err = s.applyCounts(ctx, communityID, removed, -1); err != nil {
		return false, err
	}
	for _, k := range removed {
		if k == target {
			return true, nil
		}
	}
	return false, nil
}

func (s *MembershipService) IsMember(ctx context.Context, userID, communityID uint64, stage, typ string) (bool, error) {
	stage, typ = normalizeKey(stage, typ)
	return s.memberships.IsMember(ctx, userID, communityID, store.MembershipKey{Stage: stage, Type: typ})
}

// ListUserMemberships communityID 为 0 时返回全部社区
func (s *MembershipService) ListUserMemberships(ctx context.Context, userID, communityID uint64, details bool) ([]MembershipView, error) {
	rows, err := s.memberships.ListByUser(ctx, userID, communityID)
	if err != nil {
		return nil, err
	}
	views := make([]MembershipView, 0, len(rows))
	for _, m := range rows {
		views = append(views, MembershipView{
			CommunityID: m.CommunityID,
			Stage:       m.Stage,
			Type:        m.Type,
			Level:       model.LevelOf(m.Stage, m.Type),
			JoinedAt:    m.CreatedAt,
		})
	}
	if !details || len(views) == 0 {
		return views, nil
	}

	communities, err := s.communities.FindByIDs(ctx, distinctCommunityIDs(rows))
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]model.Community, len(communities))
	for _, c := range communities {
		byID[c.ID] = c
	}
	for i := range views {
		if c, ok := byID[views[i].CommunityID]; ok {
			views[i].CommunityName = c.Name
			views[i].Description = c.Description
		}
	}
	return views, nil
}

// applyCounts 成员行已在 users 库提交，这里在 communities 库单独提交；失败时由对账任务修复
func (s *MembershipService) applyCounts(ctx context.Context, communityID uint64, keys []store.MembershipKey, sign int64) error {
	if len(keys) == 0 {
		return nil
	}
	deltas := make([]store.CountDelta, 0, len(keys))
	for _, k := range keys {
		deltas = append(deltas, store.CountDelta{
			CommunityID: communityID,
			Stage:       k.Stage,
			Type:        k.Type,
			Delta:       sign,
		})
	}
	if err := s.communities.ApplyDeltas(ctx, deltas); err != nil {
		s.log.Error("apply member count deltas failed",
			zap.Uint64("community_id", communityID),
			zap.Int("deltas", len(deltas)),
			zap.Error(err))
		return fmt.Errorf("apply count deltas: %w", err)
	}
	return nil
}

// validateKey 非空的 stage/type 必须是社区定义过的取值
func validateKey(dims model.Dimensions, stage, typ string) error {
	if stage != "" && !dims.AllowsStage(stage) {
		return pkg.InvalidInput("无效的分期: " + stage)
	}
	if typ != "" && !dims.AllowsType(typ) {
		return pkg.InvalidInput("无效的分型: " + typ)
	}
	return nil
}

func distinctCommunityIDs(rows []model.UserCommunityMembership) []uint64 {
	seen := make(map[uint64]struct{}, len(rows))
	ids := make([]uint64, 0, len(rows))
	for _, m := range rows {
		if _, ok := seen[m.CommunityID]; ok {
			continue
		}
		seen[m.CommunityID] = struct{}{}
		ids = append(ids, m.CommunityID)
	}
	return ids
}
