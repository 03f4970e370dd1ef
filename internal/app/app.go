package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"Hope_Community/internal/config"
	"Hope_Community/internal/handler"
	"Hope_Community/internal/pkg"
	"Hope_Community/internal/repository/redis"
	"Hope_Community/internal/repository/store"
	"Hope_Community/internal/router"
	"Hope_Community/internal/service"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App 组装好的服务：存储、Redis、各 service 与后台任务
type App struct {
	Config *config.Config
	Log    *zap.Logger
	Stores *store.Stores
	Redis  *goredis.Client
	Kafka  *pkg.KafkaProducer

	Users       *service.UserService
	Communities *service.CommunityService
	Memberships *service.MembershipService
	Search      *service.SearchService
	Threads     *service.ThreadService
	Replies     *service.ReplyService
	Gurus       *service.GuruService
	Reconciler  *service.CountReconciler
	Relayer     *service.OutboxRelayer

	Engine *gin.Engine
}

// New 打开四个库并执行迁移，rdb 为 nil 时按配置连接 Redis
func New(cfg *config.Config, log *zap.Logger, rdb *goredis.Client) (*App, error) {
	stores, err := store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	if err = stores.Migrate(log); err != nil {
		_ = stores.Close()
		return nil, err
	}
	if rdb == nil {
		if rdb, err = redis.New(cfg.Redis); err != nil {
			_ = stores.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	a := &App{Config: cfg, Log: log, Stores: stores, Redis: rdb}

	communityRepo := &store.CommunityRepository{DB: stores.Communities}
	membershipRepo := &store.MembershipRepository{DB: stores.Users}
	userRepo := &store.UserRepository{DB: stores.Users}
	searchRepo := &store.SearchRepository{DB: stores.Users}
	guruRepo := &store.GuruRepository{DB: stores.Users}
	outboxRepo := &store.OutboxRepository{DB: stores.Users}
	threadRepo := &store.ThreadRepository{DB: stores.Threads}
	replyRepo := &store.ReplyRepository{DB: stores.Replies}
	sessions := &redis.SessionRepository{RDB: rdb, TTL: cfg.Auth.TokenTTL}
	lock := &redis.DistLock{RDB: rdb}
	tokens := pkg.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	a.Users = service.NewUserService(userRepo, communityRepo, membershipRepo, sessions, tokens)
	a.Communities = service.NewCommunityService(communityRepo, membershipRepo)
	a.Memberships = service.NewMembershipService(communityRepo, membershipRepo, log)
	a.Search = service.NewSearchService(searchRepo, userRepo, membershipRepo, communityRepo)
	a.Threads = service.NewThreadService(threadRepo, replyRepo, communityRepo, userRepo, log)
	a.Replies = service.NewReplyService(replyRepo, threadRepo, userRepo)
	notifier := service.NewEmailNotifier(pkg.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, log)
	a.Gurus = service.NewGuruService(guruRepo, userRepo, notifier, log)
	a.Reconciler = service.NewCountReconciler(communityRepo, membershipRepo, lock,
		cfg.Reconcile.BatchSize, cfg.Reconcile.Interval, log)

	sender := service.LogSender(log)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := pkg.NewKafkaProducer(pkg.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		a.Kafka = producer
		sender = service.KafkaSender(producer)
	}
	a.Relayer = service.NewOutboxRelayer(outboxRepo, sender, cfg.Outbox.BatchSize, cfg.Outbox.MaxRetry, cfg.Outbox.Interval, log)

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	a.Engine = router.InitRouter(router.Deps{
		Community:      handler.NewCommunityHandler(a.Communities, a.Memberships, log),
		User:           handler.NewUserHandler(a.Users, cfg.Auth.CookieName, cfg.Auth.CookieSecure, log),
		Search:         handler.NewSearchHandler(a.Search, log),
		Thread:         handler.NewThreadHandler(a.Threads, a.Replies, log),
		Guru:           handler.NewGuruHandler(a.Gurus, log),
		Auth:           a.Users,
		CookieName:     cfg.Auth.CookieName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Health:         a.Ping,
		Log:            log,
	})
	return a, nil
}

// Ping 检查四个库与 Redis
func (a *App) Ping(ctx context.Context) error {
	if err := a.Stores.Ping(ctx); err != nil {
		return err
	}
	return a.Redis.Ping(ctx).Err()
}

// Serve 启动 HTTP 服务和后台任务，ctx 取消后优雅退出
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.Reconciler.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		a.Relayer.Run(workerCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Log.Warn("http shutdown", zap.Error(err))
	}
	stopWorkers()
	wg.Wait()
	return serveErr
}

func (a *App) Close() error {
	var errs []error
	if a.Kafka != nil {
		errs = append(errs, a.Kafka.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Stores != nil {
		errs = append(errs, a.Stores.Close())
	}
	return errors.Join(errs...)
}
