package store

import (
	"context"
	"path/filepath"
	"testing"

	"Hope_Community/internal/config"
	"Hope_Community/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func openTestStores(t *testing.T) *Stores {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(config.DatabaseConfig{
		Driver:      "sqlite",
		Communities: filepath.Join(dir, "communities.db"),
		Users:       filepath.Join(dir, "users.db"),
		Threads:     filepath.Join(dir, "threads.db"),
		Replies:     filepath.Join(dir, "replies.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(zap.NewNop()))
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStores(t)

	applied, err := Migrate(s.Users, userMigrations)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	var versions []int
	require.NoError(t, s.Users.Model(&model.SchemaMigration{}).Order("version").Pluck("version", &versions).Error)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, versions)

	assert.True(t, s.Communities.Migrator().HasColumn(&model.Community{}, "Dimensions"))
	assert.True(t, s.Users.Migrator().HasTable(&model.MembershipOutbox{}))
	assert.True(t, s.Replies.Migrator().HasTable(&model.Reply{}))
}

func TestMigrateAppliesOnlyNewVersions(t *testing.T) {
	s := openTestStores(t)
	ran := 0
	extra := append(append([]Migration(nil), replyMigrations...), Migration{
		Version: 2,
		Name:    "noop",
		Up: func(tx *gorm.DB) error {
			ran++
			return nil
		},
	})

	applied, err := Migrate(s.Replies, extra)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, ran)

	applied, err = Migrate(s.Replies, extra)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Equal(t, 1, ran)
}

func TestInsertIgnoreAndCascadeDelete(t *testing.T) {
	s := openTestStores(t)
	ctx := context.Background()
	repo := &MembershipRepository{DB: s.Users}

	keys := []MembershipKey{{}, {Stage: "0期"}, {Type: "三阴性"}, {Stage: "0期", Type: "三阴性"}}
	inserted, err := repo.InsertIgnore(ctx, 1, 10, keys)
	require.NoError(t, err)
	assert.Equal(t, keys, inserted)

	inserted, err = repo.InsertIgnore(ctx, 1, 10, keys)
	require.NoError(t, err)
	assert.Empty(t, inserted)

	var outbox int64
	require.NoError(t, s.Users.Model(&model.MembershipOutbox{}).Count(&outbox).Error)
	assert.Equal(t, int64(4), outbox)

	removed, err := repo.Delete(ctx, 1, 10, MembershipKey{Stage: "0期"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []MembershipKey{{Stage: "0期"}, {Stage: "0期", Type: "三阴性"}}, removed)

	left, err := repo.ListByUser(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "", left[0].Stage)
	assert.Equal(t, "", left[1].Stage)
}

func TestApplyDeltasNeverNegative(t *testing.T) {
	s := openTestStores(t)
	ctx := context.Background()
	repo := &CommunityRepository{DB: s.Communities}

	c := &model.Community{Name: "乳腺癌", Dimensions: datatypes.NewJSONType(model.Dimensions{})}
	require.NoError(t, repo.Create(ctx, c))

	require.NoError(t, repo.ApplyDeltas(ctx, []CountDelta{
		{CommunityID: c.ID, Delta: 1},
		{CommunityID: c.ID, Stage: "I期", Delta: 1},
	}))
	require.NoError(t, repo.ApplyDeltas(ctx, []CountDelta{
		{CommunityID: c.ID, Delta: -1},
		{CommunityID: c.ID, Delta: -1},
		{CommunityID: c.ID, Stage: "I期", Delta: -1},
		{CommunityID: c.ID, Stage: "I期", Delta: -1},
		{CommunityID: c.ID, Type: "HER2", Delta: -1},
	}))

	got, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.MemberCount)

	subs, err := repo.SubCounts(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "I期", subs[0].Stage)
	assert.Equal(t, int64(0), subs[0].MemberCount)
}

func TestSearchRepositoryCommunitySources(t *testing.T) {
	s := openTestStores(t)
	ctx := context.Background()
	members := &MembershipRepository{DB: s.Users}
	search := &SearchRepository{DB: s.Users}

	_, err := members.InsertIgnore(ctx, 1, 10, []MembershipKey{{}, {Stage: "0期"}})
	require.NoError(t, err)
	_, err = members.InsertIgnore(ctx, 2, 10, []MembershipKey{{}})
	require.NoError(t, err)
	_, err = members.InsertIgnore(ctx, 3, 20, []MembershipKey{{}})
	require.NoError(t, err)

	ids, err := search.UsersInCommunities(ctx, []CommunityFilter{{CommunityID: 10}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{1, 2}, ids)

	ids, err = search.UsersInCommunities(ctx, []CommunityFilter{{CommunityID: 10, Stage: "0期"}, {CommunityID: 20}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{1, 3}, ids)
}
