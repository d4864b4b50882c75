package service

import (
	"context"
	"edu_backend/internal/config"
	"edu_backend/internal/model"
	"edu_backend/internal/repository"
	"edu_backend/pkg/logger"
	"edu_backend/pkg/monitoring"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const popTimeout = 5 * time.Second

// NotificationWorker 从 Redis 队列取出通知 id 并推送，失败按退避重新入队
type NotificationWorker struct {
	Repo       *repository.NotificationRepository
	Redis      *redis.Client
	Pusher     Pusher
	QueueKey   string
	MaxRetries int
	Backoff    time.Duration
	Now        func() time.Time
}

func NewNotificationWorker(repo *repository.NotificationRepository, rdb *redis.Client, pusher Pusher, cfg config.NotificationConfig) *NotificationWorker {
	return &NotificationWorker{
		Repo:       repo,
		Redis:      rdb,
		Pusher:     pusher,
		QueueKey:   cfg.QueueKey,
		MaxRetries: cfg.MaxRetries,
		Backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		Now:        time.Now,
	}
}

// Run 阻塞直到 ctx 取消
func (w *NotificationWorker) Run(ctx context.Context) {
	w.requeuePending(ctx)
	logger.Log.Info("Notification worker started", zap.String("queue", w.QueueKey))

	for {
		if ctx.Err() != nil {
			logger.Log.Info("Notification worker stopped")
			return
		}

		res, err := w.Redis.BRPop(ctx, popTimeout, w.QueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			logger.Log.Error("Notification queue pop failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		// BRPop 返回 [key, value]
		id, err := strconv.ParseUint(res[1], 10, 64)
		if err != nil {
			logger.Log.Warn("Invalid notification id in queue", zap.String("value", res[1]))
			continue
		}
		w.Deliver(ctx, uint(id))
	}
}

// requeuePending 把进程重启前未投递的通知重新入队
func (w *NotificationWorker) requeuePending(ctx context.Context) {
	ids, err := w.Repo.PendingIDs(ctx, w.MaxRetries, 500)
	if err != nil || len(ids) == 0 {
		return
	}
	values := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		values = append(values, strconv.FormatUint(uint64(id), 10))
	}
	if err := w.Redis.LPush(ctx, w.QueueKey, values...).Err(); err != nil {
		logger.Log.Warn("Failed to requeue pending notifications", zap.Error(err))
		return
	}
	logger.Log.Info("Requeued pending notifications", zap.Int("count", len(ids)))
}

// Deliver 推送单条通知，返回是否还会重试（有 Redis 时按退避重新入队）
func (w *NotificationWorker) Deliver(ctx context.Context, id uint) bool {
	n, err := w.Repo.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Log.Error("Load notification failed", zap.Uint("notificationId", id), zap.Error(err))
		}
		return false
	}
	if n.SendStatus == model.SendSent {
		return false
	}

	err = w.Pusher.Push(ctx, n.UserID, WSMessage{Type: "NOTIFICATION", Data: n})
	if err == nil {
		if err := w.Repo.MarkSent(ctx, id, w.Now()); err != nil {
			logger.Log.Error("Mark notification sent failed", zap.Uint("notificationId", id), zap.Error(err))
		}
		monitoring.NotificationsDelivered.WithLabelValues(string(model.SendSent)).Inc()
		return false
	}

	monitoring.NotificationsDelivered.WithLabelValues(string(model.SendFailed)).Inc()
	retries, markErr := w.Repo.MarkFailed(ctx, id, err.Error())
	if markErr != nil {
		logger.Log.Error("Mark notification failed failed", zap.Uint("notificationId", id), zap.Error(markErr))
		return false
	}
	if retries >= w.MaxRetries {
		logger.Log.Warn("Notification dropped after retries",
			zap.Uint("notificationId", id),
			zap.Int("retries", retries),
			zap.Error(err),
		)
		return false
	}

	delay := w.Backoff * time.Duration(retries)
	logger.Log.Info("Notification delivery failed, retrying",
		zap.Uint("notificationId", id),
		zap.Int("retries", retries),
		zap.Duration("delay", delay),
	)
	if w.Redis != nil {
		time.AfterFunc(delay, func() {
			if ctx.Err() != nil {
				return
			}
			if err := w.Redis.LPush(ctx, w.QueueKey, strconv.FormatUint(uint64(id), 10)).Err(); err != nil {
				logger.Log.Warn("Failed to requeue notification",
					zap.Uint("notificationId", id),
					zap.Error(err),
				)
			}
		})
	}
	return true
}
