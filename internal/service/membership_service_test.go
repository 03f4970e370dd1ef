package service

import (
	"context"
	"testing"

	"Hope_Community/internal/model"
	"Hope_Community/internal/pkg"
	"Hope_Community/internal/repository/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinLevelIIICascades(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.breastCancer(t)
	u := e.user(t, "alice")

	res, err := e.memberships.Join(ctx, u.ID, c.ID, "0期", "三阴性")
	require.NoError(t, err)
	assert.Equal(t, model.LevelIII, res.Level)
	assert.True(t, res.Changed)

	for _, k := range [][2]string{{"", ""}, {"0期", ""}, {"", "三阴性"}, {"0期", "三阴性"}} {
		ok, err := e.memberships.IsMember(ctx, u.ID, c.ID, k[0], k[1])
		require.NoError(t, err)
		assert.True(t, ok, "missing membership %v", k)
	}

	main, subs := e.counts(t, c.ID)
	assert.Equal(t, int64(1), main)
	assert.Equal(t, map[store.SubKey]int64{
		{Stage: "0期"}:              1,
		{Type: "三阴性"}:              1,
		{Stage: "0期", Type: "三阴性"}: 1,
	}, subs)
}

func TestJoinTwiceLeavesCountsUnchanged(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.breastCancer(t)
	u := e.user(t, "alice")

	_, err := e.memberships.Join(ctx, u.ID, c.ID, "I期", "")
	require.NoError(t, err)
	res, err := e.memberships.Join(ctx, u.ID, c.ID, "I期", "")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, model.LevelII, res.Level)

	res, err = e.memberships.Join(ctx, u.ID, c.ID, "", "")
	require.NoError(t, err)
	assert.False(t, res.Changed)

	main, subs := e.counts(t, c.ID)
	assert.Equal(t, int64(1), main)
	assert.Equal(t, int64(1), subs[store.SubKey{Stage: "I期"}])
}

func TestJoinValidatesDimensions(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.breastCancer(t)
	plain := e.community(t, "糖尿病", model.Dimensions{})
	u := e.user(t, "alice")

	_, err := e.memberships.Join(ctx, u.ID, c.ID, "IV期", "")
	assert.True(t, pkg.IsErrorCode(err, pkg.ErrInvalidInput))

	_, err = e.memberships.Join(ctx, u.ID, plain.ID, "", "1型")
	assert.True(t, pkg.IsErrorCode(err, pkg.ErrInvalidInput))

	_, err = e.memberships.Join(ctx, u.ID, 9999, "", "")
	assert.True(t, pkg.IsErrorCode(err, pkg.ErrNotFound))

	res, err := e.memberships.Join(ctx, u.ID, plain.ID, " ", "")
	require.NoError(t, err)
	assert.Equal(t, model.LevelI, res.Level)
}

func TestLeaveLevelIRemovesEverything(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.breastCancer(t)
	u := e.user(t, "alice")
	other := e.user(t, "bob")

	_, err := e.memberships.Join(ctx, u.ID, c.ID, "0期", "三阴性")
	require.NoError(t, err)
	_, err = e.memberships.Join(ctx, other.ID, c.ID, "0期", "")
	require.NoError(t, err)

	left, err := e.memberships.Leave(ctx, u.ID, c.ID, "", "")
	require.NoError(t, err)
	assert.True(t, left)

	rows, err := e.memberships.ListUserMemberships(ctx, u.ID, c.ID, false)
	require.NoError(t, err)
	assert.Empty(t, rows)

	main, subs := e.counts(t, c.ID)
	assert.Equal(t, int64(1), main)
	assert.Equal(t, int64(1), subs[store.SubKey{Stage: "0期"}])
	assert.Equal(t, int64(0), subs[store.SubKey{Type: "三阴性"}])
	assert.Equal(t, int64(0), subs[store.SubKey{Stage: "0期", Type: "三阴性"}])
}

func TestLeaveStageOnlyCascadesToMatchingLevelIII(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.breastCancer(t)
	u := e.user(t, "alice")

	_, err := e.memberships.Join(ctx, u.ID, c.ID, "0期", "三阴性")
	require.NoError(t, err)
	_, err = e.memberships.Join(ctx, u.ID, c.ID, "I期", "HER2阳性")
	require.NoError(t, err)

	left, err := e.memberships.Leave(ctx, u.ID, c.ID, "0期", "")
	require.NoError(t, err)
	assert.True(t, left)

	check := func(stage, typ string, want bool) {
		ok, err := e.memberships.IsMember(ctx, u.ID, c.ID, stage, typ)
		require.NoError(t, err)
		assert.Equal(t, want, ok, "(%q, %q)", stage, typ)
	}
	check("0期", "", false)
	check("0期", "三阴性", false)
	check("", "", true)
	check("", "三阴性", true)
	check("I期", "", true)
	check("I期", "HER2阳性", true)

	_, subs := e.counts(t, c.ID)
	assert.Equal(t, int64(0), subs[store.SubKey{Stage: "0期"}])
	assert.Equal(t, int64(0), subs[store.SubKey{Stage: "0期", Type: "三阴性"}])
	assert.Equal(t, int64(1), subs[store.SubKey{Type: "三阴性"}])
}

func TestLeaveTypeOnlyRemovesAnyStageRows(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.breastCancer(t)
	u := e.user(t, "alice")

	_, err := e.memberships.Join(ctx, u.ID, c.ID, "0期", "三阴性")
	require.NoError(t, err)
	_, err = e.memberships.Join(ctx, u.ID, c.ID, "I期", "三阴性")
	require.NoError(t, err)
	_, err = e.memberships.Join(ctx, u.ID, c.ID, "I期", "HER2阳性")
	require.NoError(t, err)

	left, err := e.memberships.Leave(ctx, u.ID, c.ID, "", "三阴性")
	require.NoError(t, err)
	assert.True(t, left)

	rows, err := e.memberships.ListUserMemberships(ctx, u.ID, c.ID, false)
	require.NoError(t, err)
	var keys [][2]string
	for _, r := range rows {
		keys = append(keys, [2]string{r.Stage, r.Type})
	}
	assert.ElementsMatch(t, [][2]string{
		{"", ""}, {"0期", ""}, {"I期", ""}, {"", "HER2阳性"}, {"I期", "HER2阳性"},
	}, keys)
}

func TestLeaveLevelIIIOnlyRemovesTarget(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.breastCancer(t)
	u := e.user(t, "alice")

	_, err := e.memberships.Join(ctx, u.ID, c.ID, "0期", "三阴性")
	require.NoError(t, err)

	left, err := e.memberships.Leave(ctx, u.ID, c.ID, "0期", "三阴性")
	require.NoError(t, err)
	assert.True(t, left)

	left, err = e.memberships.Leave(ctx, u.ID, c.ID, "0期", "三阴性")
	require.NoError(t, err)
	assert.False(t, left)

	main, subs := e.counts(t, c.ID)
	assert.Equal(t, int64(1), main)
	assert.Equal(t, int64(1), subs[store.SubKey{Stage: "0期"}])
	assert.Equal(t, int64(0), subs[store.SubKey{Stage: "0期", Type: "三阴性"}])
}

func TestListUserMembershipsWithDetails(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	c := e.breastCancer(t)
	d := e.community(t, "糖尿病", model.Dimensions{})
	u := e.user(t, "alice")

	_, err := e.memberships.Join(ctx, u.ID, c.ID, "0期", "")
	require.NoError(t, err)
	_, err = e.memberships.Join(ctx, u.ID, d.ID, "", "")
	require.NoError(t, err)

	all, err := e.memberships.ListUserMemberships(ctx, u.ID, 0, true)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, v := range all {
		assert.NotEmpty(t, v.CommunityName)
	}

	only, err := e.memberships.ListUserMemberships(ctx, u.ID, d.ID, false)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, model.LevelI, only[0].Level)
	assert.Empty(t, only[0].CommunityName)
}
