package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"Hope_Community/internal/model"
	"Hope_Community/internal/pkg"
	"Hope_Community/internal/repository/store"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CommunityService struct {
	communities *store.CommunityRepository
	memberships *store.MembershipRepository
}

type CommunityPage struct {
	Items []model.Community `json:"items"`
	Total int64             `json:"total"`
}

// SubCount 子社区人数矩阵里的一格
type SubCount struct {
	Stage       string      `json:"stage"`
	Type        string      `json:"type"`
	Level       model.Level `json:"level"`
	MemberCount int64       `json:"member_count"`
}

type CommunityDetail struct {
	*model.Community
	// Matrix 覆盖维度定义的全部取值组合，没有成员的格子为 0
	Matrix      []SubCount `json:"sub_communities"`
	Selected    *SubCount  `json:"selected,omitempty"`
	Memberships []SubCount `json:"my_memberships"`
	IsMember    bool       `json:"is_member"`
}

func NewCommunityService(communities *store.CommunityRepository, memberships *store.MembershipRepository) *CommunityService {
	return &CommunityService{communities: communities, memberships: memberships}
}

func (s *CommunityService) Create(ctx context.Context, name, description string, dims model.Dimensions) (*model.Community, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > 64 {
		return nil, pkg.InvalidInput("社区名称长度需在 1-64 之间")
	}
	if utf8.RuneCountInString(description) > 2000 {
		return nil, pkg.InvalidInput("社区简介过长")
	}
	var err error
	if dims.Stage, err = cleanDimension(dims.Stage, "分期"); err != nil {
		return nil, err
	}
	if dims.Type, err = cleanDimension(dims.Type, "分型"); err != nil {
		return nil, err
	}

	c := &model.Community{
		Name:        name,
		Description: strings.TrimSpace(description),
		Dimensions:  datatypes.NewJSONType(dims),
	}
	if err = s.communities.Create(ctx, c); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, pkg.Duplicate("社区名称已存在")
		}
		return nil, fmt.Errorf("create community: %w", err)
	}
	return c, nil
}

func (s *CommunityService) List(ctx context.Context, q string, page, size int) (*CommunityPage, error) {
	limit, offset := PageToOffset(page, size)
	items, total, err := s.communities.Search(ctx, strings.TrimSpace(q), offset, limit)
	if err != nil {
		return nil, err
	}
	return &CommunityPage{Items: items, Total: total}, nil
}

// Detail viewerID 为 0 表示未登录；stage/type 非空时额外返回该子社区
func (s *CommunityService) Detail(ctx context.Context, id, viewerID uint64, stage, typ string) (*CommunityDetail, error) {
	stage, typ = normalizeKey(stage, typ)
	c, err := s.communities.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "社区不存在")
	}
	dims := c.Dims()
	if err = validateKey(dims, stage, typ); err != nil {
		return nil, err
	}
	subs, err := s.communities.SubCounts(ctx, id)
	if err != nil {
		return nil, err
	}
	counts := make(map[store.SubKey]int64, len(subs))
	for _, sc := range subs {
		counts[store.SubKey{Stage: sc.Stage, Type: sc.Type}] = sc.MemberCount
	}

	detail := &CommunityDetail{Community: c, Matrix: buildMatrix(dims, counts), Memberships: []SubCount{}}
	if stage != "" || typ != "" {
		detail.Selected = &SubCount{
			Stage:       stage,
			Type:        typ,
			Level:       model.LevelOf(stage, typ),
			MemberCount: counts[store.SubKey{Stage: stage, Type: typ}],
		}
	}
	if viewerID == 0 {
		return detail, nil
	}

	rows, err := s.memberships.ListByUser(ctx, viewerID, id)
	if err != nil {
		return nil, err
	}
	for _, m := range rows {
		lvl := model.LevelOf(m.Stage, m.Type)
		if lvl == model.LevelI {
			detail.IsMember = true
		}
		detail.Memberships = append(detail.Memberships, SubCount{
			Stage:       m.Stage,
			Type:        m.Type,
			Level:       lvl,
			MemberCount: counts[store.SubKey{Stage: m.Stage, Type: m.Type}],
		})
	}
	return detail, nil
}

// buildMatrix 先列二级（分期、分型），再列三级组合
func buildMatrix(dims model.Dimensions, counts map[store.SubKey]int64) []SubCount {
	var out []SubCount
	add := func(stage, typ string) {
		out = append(out, SubCount{
			Stage:       stage,
			Type:        typ,
			Level:       model.LevelOf(stage, typ),
			MemberCount: counts[store.SubKey{Stage: stage, Type: typ}],
		})
	}
	var stages, types []string
	if dims.Stage != nil {
		stages = dims.Stage.Values
	}
	if dims.Type != nil {
		types = dims.Type.Values
	}
	for _, st := range stages {
		add(st, "")
	}
	for _, ty := range types {
		add("", ty)
	}
	for _, st := range stages {
		for _, ty := range types {
			add(st, ty)
		}
	}
	if out == nil {
		out = []SubCount{}
	}
	return out
}

func cleanDimension(d *model.Dimension, defaultLabel string) (*model.Dimension, error) {
	if d == nil {
		return nil, nil
	}
	label := strings.TrimSpace(d.Label)
	if label == "" {
		label = defaultLabel
	}
	seen := make(map[string]struct{}, len(d.Values))
	values := make([]string, 0, len(d.Values))
	for _, v := range d.Values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if utf8.RuneCountInString(v) > 64 {
			return nil, pkg.InvalidInput(defaultLabel + "取值过长: " + v)
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return &model.Dimension{Label: label, Values: values}, nil
}
