package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"Hope_Community/internal/config"
	"Hope_Community/internal/model"
	"Hope_Community/internal/pkg"
	"Hope_Community/internal/repository/redis"
	"Hope_Community/internal/repository/store"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

type testEnv struct {
	stores *store.Stores
	redis  *miniredis.Miniredis
	rdb    *goredis.Client

	communityRepo  *store.CommunityRepository
	membershipRepo *store.MembershipRepository
	userRepo       *store.UserRepository
	outboxRepo     *store.OutboxRepository

	memberships *MembershipService
	communities *CommunityService
	search      *SearchService
	users       *UserService
	threads     *ThreadService
	replies     *ReplyService
	gurus       *GuruService
	reconciler  *CountReconciler
	notifier    *recordingNotifier
}

type recordingNotifier struct {
	questions []uint64
}

func (n *recordingNotifier) NotifyQuestion(_ context.Context, _, _ *model.User, q *model.GuruQuestion) error {
	n.questions = append(n.questions, q.ID)
	return nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	stores, err := store.Open(config.DatabaseConfig{
		Driver:      "sqlite",
		Communities: filepath.Join(dir, "communities.db"),
		Users:       filepath.Join(dir, "users.db"),
		Threads:     filepath.Join(dir, "threads.db"),
		Replies:     filepath.Join(dir, "replies.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = stores.Close() })
	log := zap.NewNop()
	require.NoError(t, stores.Migrate(log))

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := &testEnv{
		stores:         stores,
		redis:          mr,
		rdb:            rdb,
		communityRepo:  &store.CommunityRepository{DB: stores.Communities},
		membershipRepo: &store.MembershipRepository{DB: stores.Users},
		userRepo:       &store.UserRepository{DB: stores.Users},
		outboxRepo:     &store.OutboxRepository{DB: stores.Users},
		notifier:       &recordingNotifier{},
	}
	threadRepo := &store.ThreadRepository{DB: stores.Threads}
	replyRepo := &store.ReplyRepository{DB: stores.Replies}

	e.memberships = NewMembershipService(e.communityRepo, e.membershipRepo, log)
	e.communities = NewCommunityService(e.communityRepo, e.membershipRepo)
	e.search = NewSearchService(&store.SearchRepository{DB: stores.Users}, e.userRepo, e.membershipRepo, e.communityRepo)
	e.users = NewUserService(e.userRepo, e.communityRepo, e.membershipRepo,
		&redis.SessionRepository{RDB: rdb, TTL: time.Hour}, pkg.NewTokenIssuer("test-secret", time.Hour))
	e.threads = NewThreadService(threadRepo, replyRepo, e.communityRepo, e.userRepo, log)
	e.replies = NewReplyService(replyRepo, threadRepo, e.userRepo)
	e.gurus = NewGuruService(&store.GuruRepository{DB: stores.Users}, e.userRepo, e.notifier, log)
	e.reconciler = NewCountReconciler(e.communityRepo, e.membershipRepo, &redis.DistLock{RDB: rdb}, 2, time.Minute, log)
	return e
}

// breastCancer 带分期与分型两个维度的社区
func (e *testEnv) breastCancer(t *testing.T) *model.Community {
	t.Helper()
	return e.community(t, "乳腺癌", model.Dimensions{
		Stage: &model.Dimension{Label: "分期", Values: []string{"0期", "I期"}},
		Type:  &model.Dimension{Label: "分型", Values: []string{"三阴性", "HER2阳性"}},
	})
}

func (e *testEnv) community(t *testing.T, name string, dims model.Dimensions) *model.Community {
	t.Helper()
	c := &model.Community{Name: name, Dimensions: datatypes.NewJSONType(dims)}
	require.NoError(t, e.communityRepo.Create(context.Background(), c))
	return c
}

// user 直接落库，跳过 bcrypt 默认成本
func (e *testEnv) user(t *testing.T, username string, mutate ...func(u *model.User)) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	u := &model.User{Username: username, Password: string(hash), Nickname: username}
	for _, m := range mutate {
		m(u)
	}
	require.NoError(t, e.userRepo.Create(context.Background(), u))
	return u
}

func (e *testEnv) counts(t *testing.T, communityID uint64) (int64, map[store.SubKey]int64) {
	t.Helper()
	ctx := context.Background()
	c, err := e.communityRepo.FindByID(ctx, communityID)
	require.NoError(t, err)
	subs, err := e.communityRepo.SubCounts(ctx, communityID)
	require.NoError(t, err)
	out := make(map[store.SubKey]int64, len(subs))
	for _, s := range subs {
		out[store.SubKey{Stage: s.Stage, Type: s.Type}] = s.MemberCount
	}
	return c.MemberCount, out
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func uintPtr(v uint64) *uint64 { return &v }
