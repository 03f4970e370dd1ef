package service

import (
	"context"
	"strings"

	"Hope_Community/internal/model"
	"Hope_Community/internal/pkg"
	"Hope_Community/internal/repository/store"
)

type SearchService struct {
	search      *store.SearchRepository
	users       *store.UserRepository
	memberships *store.MembershipRepository
	communities *store.CommunityRepository
}

// SearchFilters 全部可选；ExcludeUsername 单独出现不算过滤条件
type SearchFilters struct {
	CommunityFilters   []store.CommunityFilter
	DiseaseTag         string
	Hospital           string
	Gender             string
	Hukou              string
	Education          string
	IncomeIndividual   string
	IncomeFamily       string
	Housing            string
	EconomicDependency string
	MaritalStatus      string
	FertilityStatus    string
	AgeMin             *int
	AgeMax             *int
	Location           string
	Profession         string
	ExcludeUsername    string
}

type CommunityTag struct {
	CommunityID   uint64 `json:"community_id"`
	CommunityName string `json:"community_name"`
	Stage         string `json:"stage"`
	Type          string `json:"type"`
}

// UserCard 搜索结果里的一个用户，邮箱不对外
type UserCard struct {
	model.User
	Communities    []CommunityTag             `json:"communities"`
	DiseaseHistory []model.UserDiseaseHistory `json:"disease_history"`
	Hospitals      []string                   `json:"hospitals"`
}

type SearchResult struct {
	Users []UserCard `json:"users"`
	Total int64      `json:"total"`
}

func NewSearchService(search *store.SearchRepository, users *store.UserRepository,
	memberships *store.MembershipRepository, communities *store.CommunityRepository) *SearchService {
	return &SearchService{search: search, users: users, memberships: memberships, communities: communities}
}

func (f *SearchFilters) normalize() {
	for _, p := range []*string{
		&f.DiseaseTag, &f.Hospital, &f.Gender, &f.Hukou, &f.Education, &f.IncomeIndividual,
		&f.IncomeFamily, &f.Housing, &f.EconomicDependency, &f.MaritalStatus, &f.FertilityStatus,
		&f.Location, &f.Profession, &f.ExcludeUsername,
	} {
		*p = strings.TrimSpace(*p)
	}
	for i := range f.CommunityFilters {
		f.CommunityFilters[i].Stage, f.CommunityFilters[i].Type =
			normalizeKey(f.CommunityFilters[i].Stage, f.CommunityFilters[i].Type)
	}
}

func (f *SearchFilters) exact() map[string]string {
	out := make(map[string]string)
	for col, v := range map[string]string{
		"gender":              f.Gender,
		"hukou":               f.Hukou,
		"education":           f.Education,
		"income_individual":   f.IncomeIndividual,
		"income_family":       f.IncomeFamily,
		"housing":             f.Housing,
		"economic_dependency": f.EconomicDependency,
		"marital_status":      f.MaritalStatus,
		"fertility_status":    f.FertilityStatus,
	} {
		if v != "" {
			out[col] = v
		}
	}
	return out
}

// Empty 没有任何过滤条件
func (f *SearchFilters) Empty() bool {
	return len(f.CommunityFilters) == 0 && f.DiseaseTag == "" && f.Hospital == "" &&
		len(f.exact()) == 0 && f.AgeMin == nil && f.AgeMax == nil &&
		f.Location == "" && f.Profession == ""
}

// Search 社区/疾病/医院三个来源各产出一个用户集合并求交，其余字段作为 users 表上的 AND 谓词
func (s *SearchService) Search(ctx context.Context, f SearchFilters, limit, offset int) (*SearchResult, error) {
	f.normalize()
	limit, offset = NormalizeLimit(limit, offset)
	empty := &SearchResult{Users: []UserCard{}, Total: 0}
	if f.Empty() {
		return empty, nil
	}
	for _, cf := range f.CommunityFilters {
		if cf.CommunityID == 0 {
			return nil, pkg.InvalidInput("community_filters 中缺少 community_id")
		}
	}

	var candidates map[uint64]struct{}
	restrict := false
	sources := []struct {
		active bool
		load   func() ([]uint64, error)
	}{
		{len(f.CommunityFilters) > 0, func() ([]uint64, error) { return s.search.UsersInCommunities(ctx, f.CommunityFilters) }},
		{f.DiseaseTag != "", func() ([]uint64, error) { return s.search.UsersWithDisease(ctx, f.DiseaseTag) }},
		{f.Hospital != "", func() ([]uint64, error) { return s.search.UsersWithHospital(ctx, f.Hospital) }},
	}
	for _, src := range sources {
		if !src.active {
			continue
		}
		ids, err := src.load()
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return empty, nil
		}
		candidates = intersect(candidates, ids, restrict)
		restrict = true
		if len(candidates) == 0 {
			return empty, nil
		}
	}

	q := store.UserQuery{
		RestrictIDs:     restrict,
		Exact:           f.exact(),
		AgeMin:          f.AgeMin,
		AgeMax:          f.AgeMax,
		Location:        f.Location,
		Profession:      f.Profession,
		ExcludeUsername: f.ExcludeUsername,
		Limit:           limit,
		Offset:          offset,
	}
	for id := range candidates {
		q.IDs = append(q.IDs, id)
	}
	users, total, err := s.search.FindUsers(ctx, q)
	if err != nil {
		return nil, err
	}
	cards, err := s.enrich(ctx, users)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Users: cards, Total: total}, nil
}

// enrich 每张关联表只查一次
func (s *SearchService) enrich(ctx context.Context, users []model.User) ([]UserCard, error) {
	cards := make([]UserCard, len(users))
	if len(users) == 0 {
		return cards, nil
	}
	ids := make([]uint64, len(users))
	index := make(map[uint64]int, len(users))
	for i, u := range users {
		u.Email = ""
		cards[i] = UserCard{
			User:           u,
			Communities:    []CommunityTag{},
			DiseaseHistory: []model.UserDiseaseHistory{},
			Hospitals:      []string{},
		}
		ids[i] = u.ID
		index[u.ID] = i
	}

	memberships, err := s.memberships.ListByUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	communities, err := s.communities.FindByIDs(ctx, distinctCommunityIDs(memberships))
	if err != nil {
		return nil, err
	}
	names := make(map[uint64]string, len(communities))
	for _, c := range communities {
		names[c.ID] = c.Name
	}
	for _, m := range memberships {
		i := index[m.UserID]
		cards[i].Communities = append(cards[i].Communities, CommunityTag{
			CommunityID:   m.CommunityID,
			CommunityName: names[m.CommunityID],
			Stage:         m.Stage,
			Type:          m.Type,
		})
	}

	diseases, err := s.users.DiseasesByUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, d := range diseases {
		i := index[d.UserID]
		cards[i].DiseaseHistory = append(cards[i].DiseaseHistory, d)
	}

	hospitals, err := s.users.HospitalsByUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, h := range hospitals {
		i := index[h.UserID]
		cards[i].Hospitals = append(cards[i].Hospitals, h.Hospital)
	}
	return cards, nil
}

// intersect restrict 为 false 时 acc 还未初始化，直接取 ids
func intersect(acc map[uint64]struct{}, ids []uint64, restrict bool) map[uint64]struct{} {
	next := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if !restrict {
			next[id] = struct{}{}
			continue
		}
		if _, ok := acc[id]; ok {
			next[id] = struct{}{}
		}
	}
	return next
}
