package service

import (
	"context"
	"errors"
	"time"

	"Hope_Community/internal/model"
	"Hope_Community/internal/repository/redis"
	"Hope_Community/internal/repository/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const reconcileLockName = "reconcile:member_count"

var ErrReconcileLocked = errors.New("reconcile already running")

// CountReconciler 用成员关系表重算社区人数与子社区人数
type CountReconciler struct {
	communities *store.CommunityRepository
	memberships *store.MembershipRepository
	lock        *redis.DistLock
	batchSize   int
	interval    time.Duration
	log         *zap.Logger
}

type ReconcileReport struct {
	Communities int `json:"communities"`
	Fixed       int `json:"fixed"`
}

func NewCountReconciler(communities *store.CommunityRepository, memberships *store.MembershipRepository,
	lock *redis.DistLock, batchSize int, interval time.Duration, log *zap.Logger) *CountReconciler {
	if batchSize <= 0 {
		batchSize = 200
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &CountReconciler{
		communities: communities,
		memberships: memberships,
		lock:        lock,
		batchSize:   batchSize,
		interval:    interval,
		log:         log,
	}
}

// Run 对账定时任务启动器
func (r *CountReconciler) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			report, err := r.ReconcileOnce(ctx)
			if errors.Is(err, ErrReconcileLocked) {
				r.log.Debug("reconcile skipped, lock held elsewhere")
				continue
			}
			if err != nil {
				r.log.Error("reconcile failed", zap.Error(err))
				continue
			}
			r.log.Info("reconcile done", zap.Int("communities", report.Communities), zap.Int("fixed", report.Fixed))
		}
	}
}

// ReconcileOnce 同一时刻只允许一个实例对账
func (r *CountReconciler) ReconcileOnce(ctx context.Context) (*ReconcileReport, error) {
	if r.lock != nil {
		token := uuid.NewString()
		ok, err := r.lock.Acquire(ctx, reconcileLockName, token, r.lockTTL())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrReconcileLocked
		}
		defer func() {
			if err := r.lock.Release(context.WithoutCancel(ctx), reconcileLockName, token); err != nil {
				r.log.Warn("release reconcile lock failed", zap.Error(err))
			}
		}()
	}

	report := &ReconcileReport{}
	var lastID uint64
	for {
		list, err := r.communities.ListAfter(ctx, lastID, r.batchSize)
		if err != nil {
			return report, err
		}
		if len(list) == 0 {
			return report, nil
		}
		for i := range list {
			fixed, err := r.reconcileCommunity(ctx, &list[i])
			if err != nil {
				return report, err
			}
			report.Communities++
			if fixed {
				report.Fixed++
			}
		}
		lastID = list[len(list)-1].ID
	}
}

// reconcileCommunity 以 users 库中的成员行为准，有差异才写 communities 库
func (r *CountReconciler) reconcileCommunity(ctx context.Context, c *model.Community) (bool, error) {
	actual, err := r.memberships.GroupCounts(ctx, c.ID)
	if err != nil {
		return false, err
	}
	mainCount := actual[store.SubKey{}]
	delete(actual, store.SubKey{})

	subs, err := r.communities.SubCounts(ctx, c.ID)
	if err != nil {
		return false, err
	}
	subsDrift := len(actual) > 0 && len(subs) == 0
	seen := 0
	for _, sc := range subs {
		n := actual[store.SubKey{Stage: sc.Stage, Type: sc.Type}]
		if n > 0 {
			seen++
		}
		if sc.MemberCount != n {
			subsDrift = true
		}
	}
	if seen != len(actual) {
		subsDrift = true
	}

	fixed := false
	if c.MemberCount != mainCount {
		r.log.Info("member_count drift",
			zap.Uint64("community_id", c.ID),
			zap.Int64("stored", c.MemberCount),
			zap.Int64("actual", mainCount))
		if err = r.communities.SetMemberCount(ctx, c.ID, mainCount); err != nil {
			return false, err
		}
		fixed = true
	}
	if subsDrift {
		r.log.Info("sub community count drift", zap.Uint64("community_id", c.ID))
		if err = r.communities.ReplaceSubCounts(ctx, c.ID, actual); err != nil {
			return false, err
		}
		fixed = true
	}
	return fixed, nil
}

func (r *CountReconciler) lockTTL() time.Duration {
	if r.interval < time.Minute {
		return time.Minute
	}
	return r.interval
}
