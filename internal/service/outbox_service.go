package service

import (
	"context"
	"time"

	"Hope_Community/internal/model"
	"Hope_Community/internal/pkg"
	"Hope_Community/internal/repository/store"

	"go.uber.org/zap"
)

type Sender func(ctx context.Context, ob *model.MembershipOutbox) error

// OutboxRelayer 从 outbox 表读取成员变更事件并投递
type OutboxRelayer struct {
	repo      *store.OutboxRepository
	batchSize int
	maxRetry  int
	interval  time.Duration
	sender    Sender
	log       *zap.Logger
}

func NewOutboxRelayer(repo *store.OutboxRepository, sender Sender, batchSize, maxRetry int,
	interval time.Duration, log *zap.Logger) *OutboxRelayer {
	if batchSize <= 0 {
		batchSize = 200
	}
	if maxRetry <= 0 {
		maxRetry = 5
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &OutboxRelayer{
		repo:      repo,
		batchSize: batchSize,
		maxRetry:  maxRetry,
		interval:  interval,
		sender:    sender,
		log:       log,
	}
}

// Run outbox启动器
func (r *OutboxRelayer) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.DrainOnce(ctx)
		}
	}
}

// DrainOnce 投递一批，返回成功与失败条数
func (r *OutboxRelayer) DrainOnce(ctx context.Context) (sent, failed int) {
	rows, err := r.repo.List(ctx, r.batchSize, r.maxRetry)
	if err != nil {
		r.log.Error("outbox query failed", zap.Error(err))
		return 0, 0
	}
	for i := range rows {
		ob := rows[i]
		if err = r.sender(ctx, &ob); err != nil {
			failed++
			r.log.Warn("outbox send failed",
				zap.Uint64("outbox_id", ob.ID),
				zap.Int("retry", ob.Retry+1),
				zap.Error(err))
			if err = r.repo.RetryUpdate(ctx, ob.ID); err != nil {
				r.log.Error("outbox retry update failed", zap.Uint64("outbox_id", ob.ID), zap.Error(err))
			}
			continue
		}
		sent++
		if err = r.repo.SuccessUpdate(ctx, ob.ID); err != nil {
			r.log.Error("outbox success update failed", zap.Uint64("outbox_id", ob.ID), zap.Error(err))
		}
	}
	return sent, failed
}

// LogSender 未配置 kafka 时只记录日志
func LogSender(log *zap.Logger) Sender {
	return func(_ context.Context, ob *model.MembershipOutbox) error {
		log.Info("membership event",
			zap.String("type", ob.EventType),
			zap.Uint64("user_id", ob.UserID),
			zap.Uint64("community_id", ob.CommunityID),
			zap.String("stage", ob.Stage),
			zap.String("sub_type", ob.Type),
			zap.String("payload", ob.Payload))
		return nil
	}
}

// KafkaSender 以用户 id 作为 key，保证同一用户的事件有序
func KafkaSender(p *pkg.KafkaProducer) Sender {
	return func(ctx context.Context, ob *model.MembershipOutbox) error {
		return p.Send(ctx, pkg.MakeKeyFromID(ob.UserID), []byte(ob.Payload))
	}
}
