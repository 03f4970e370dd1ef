package service

import (
	"context"
	"fmt"
	"testing"

	"Hope_Community/internal/model"
	"Hope_Community/internal/pkg"
	"Hope_Community/internal/repository/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setDiseases(t *testing.T, e *testEnv, userID uint64, diseases ...string) {
	t.Helper()
	rows := make([]model.UserDiseaseHistory, 0, len(diseases))
	for _, d := range diseases {
		rows = append(rows, model.UserDiseaseHistory{Disease: d})
	}
	require.NoError(t, e.userRepo.UpdateProfile(context.Background(), userID, nil, rows, nil))
}

func usernames(res *SearchResult) []string {
	out := make([]string, 0, len(res.Users))
	for _, u := range res.Users {
		out = append(out, u.Username)
	}
	return out
}

func TestSearchWithoutFiltersIsEmpty(t *testing.T) {
	e := newTestEnv(t)
	e.user(t, "alice")

	res, err := e.search.Search(context.Background(), SearchFilters{}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Users)
	assert.Equal(t, int64(0), res.Total)

	res, err = e.search.Search(context.Background(), SearchFilters{ExcludeUsername: "bob"}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Users)
	assert.Equal(t, int64(0), res.Total)
}

func TestSearchIntersectsCommunityAndDisease(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.breastCancer(t)
	u1 := e.user(t, "user1")
	u2 := e.user(t, "user2")
	u3 := e.user(t, "user3")

	_, err := e.memberships.Join(ctx, u1.ID, a.ID, "0期", "")
	require.NoError(t, err)
	_, err = e.memberships.Join(ctx, u2.ID, a.ID, "", "")
	require.NoError(t, err)
	setDiseases(t, e, u1.ID, "早期X型糖尿病")
	setDiseases(t, e, u3.ID, "早期X型糖尿病")

	res, err := e.search.Search(ctx, SearchFilters{
		CommunityFilters: []store.CommunityFilter{{CommunityID: a.ID}},
		DiseaseTag:       "X",
	}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"user1"}, usernames(res))
	assert.Equal(t, int64(1), res.Total)

	card := res.Users[0]
	assert.Empty(t, card.Email)
	require.Len(t, card.DiseaseHistory, 1)
	assert.Equal(t, "早期X型糖尿病", card.DiseaseHistory[0].Disease)
	require.Len(t, card.Communities, 2)
	assert.Equal(t, "乳腺癌", card.Communities[0].CommunityName)
}

func TestSearchEmptySourceShortCircuits(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.user(t, "alice", func(u *model.User) { u.Gender = "女" })

	res, err := e.search.Search(ctx, SearchFilters{Gender: "女", Hospital: "协和"}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Users)
	assert.Equal(t, int64(0), res.Total)
}

func TestSearchPredicates(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.user(t, "a30", func(u *model.User) {
		u.Age = intPtr(30)
		u.Gender = "女"
		u.BirthLocation = "上海市"
		u.Profession = "软件工程师"
	})
	e.user(t, "a40", func(u *model.User) {
		u.Age = intPtr(40)
		u.Gender = "女"
		u.ResidenceLocation = "上海市浦东"
	})
	e.user(t, "a50", func(u *model.User) {
		u.Age = intPtr(50)
		u.Gender = "男"
		u.BirthLocation = "北京"
	})
	e.user(t, "noage", func(u *model.User) { u.Gender = "女" })

	res, err := e.search.Search(ctx, SearchFilters{AgeMin: intPtr(30), AgeMax: intPtr(40)}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a30", "a40"}, usernames(res))

	res, err = e.search.Search(ctx, SearchFilters{AgeMin: intPtr(40)}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a40", "a50"}, usernames(res))

	res, err = e.search.Search(ctx, SearchFilters{Location: "上海"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a30", "a40"}, usernames(res))

	res, err = e.search.Search(ctx, SearchFilters{Gender: "女", ExcludeUsername: "a30"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a40", "noage"}, usernames(res))
	assert.Equal(t, int64(2), res.Total)

	res, err = e.search.Search(ctx, SearchFilters{Profession: "工程"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a30"}, usernames(res))
}

func TestSearchPagination(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		e.user(t, fmt.Sprintf("user%02d", i), func(u *model.User) { u.Hukou = "城镇" })
	}
	f := SearchFilters{Hukou: "城镇"}

	first, err := e.search.Search(ctx, f, 10, 0)
	require.NoError(t, err)
	second, err := e.search.Search(ctx, f, 10, 10)
	require.NoError(t, err)

	assert.Equal(t, int64(25), first.Total)
	assert.Equal(t, first.Total, second.Total)
	require.Len(t, first.Users, 10)
	require.Len(t, second.Users, 10)

	seen := make(map[uint64]bool)
	for _, u := range first.Users {
		seen[u.ID] = true
	}
	for _, u := range second.Users {
		assert.False(t, seen[u.ID], "user %d on both pages", u.ID)
	}

	// limit 超过上限被截断，offset 为负视为 0
	all, err := e.search.Search(ctx, f, 1000, -5)
	require.NoError(t, err)
	assert.Len(t, all.Users, 25)
	assert.Equal(t, first.Users[0].ID, all.Users[0].ID)
}

func TestSearchRejectsCommunityFilterWithoutID(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.search.Search(context.Background(), SearchFilters{
		CommunityFilters: []store.CommunityFilter{{Stage: "0期"}},
	}, 10, 0)
	assert.True(t, pkg.IsErrorCode(err, pkg.ErrInvalidInput))
}

func TestNormalizeLimit(t *testing.T) {
	cases := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, 20, 0},
		{-1, -3, 20, 0},
		{5, 7, 5, 7},
		{101, 0, 100, 0},
	}
	for _, tc := range cases {
		l, o := NormalizeLimit(tc.limit, tc.offset)
		assert.Equal(t, tc.wantLimit, l)
		assert.Equal(t, tc.wantOffset, o)
	}
}
