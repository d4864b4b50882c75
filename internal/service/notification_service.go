package service

import (
	"context"
	"edu_backend/internal/config"
	"edu_backend/internal/model"
	"edu_backend/internal/repository"
	"edu_backend/internal/util"
	"edu_backend/pkg/logger"
	"encoding/json"
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotifyInput 创建通知的参数
type NotifyInput struct {
	UserID   uint
	Type     model.NotificationType
	Title    string
	Message  string
	CourseID *uint
	Data     map[string]interface{}
}

type NotificationService struct {
	Repo     *repository.NotificationRepository
	Redis    *redis.Client
	QueueKey string
	enabled  atomic.Bool
}

func NewNotificationService(repo *repository.NotificationRepository, rdb *redis.Client, cfg config.NotificationConfig) *NotificationService {
	s := &NotificationService{
		Repo:     repo,
		Redis:    rdb,
		QueueKey: cfg.QueueKey,
	}
	s.enabled.Store(cfg.Enabled)
	return s
}

// SetEnabled 配置热更新时切换投递开关
func (s *NotificationService) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

func (s *NotificationService) Enabled() bool {
	return s.enabled.Load()
}

// Notify 先落库再入队；入队失败时记录保持 PENDING，由 worker 启动时补投
func (s *NotificationService) Notify(ctx context.Context, in NotifyInput) (*model.Notification, error) {
	n := &model.Notification{
		UserID:     in.UserID,
		Type:       in.Type,
		Title:      in.Title,
		Message:    in.Message,
		CourseID:   in.CourseID,
		SendStatus: model.SendPending,
	}
	if len(in.Data) > 0 {
		data, err := json.Marshal(in.Data)
		if err != nil {
			return nil, util.BadRequestError("通知附加数据无效")
		}
		n.Data = string(data)
	}

	if err := s.Repo.Create(ctx, n); err != nil {
		return nil, util.Unexpected(err)
	}

	if s.Enabled() && s.Redis != nil {
		if err := s.Redis.LPush(ctx, s.QueueKey, strconv.FormatUint(uint64(n.ID), 10)).Err(); err != nil {
			logger.Log.Warn("failed to enqueue notification",
				zap.Uint("notificationId", n.ID),
				zap.Error(err),
			)
		}
	}
	return n, nil
}

func (s *NotificationService) List(ctx context.Context, userID uint, unreadOnly bool, page, limit int) ([]model.Notification, int64, error) {
	items, total, err := s.Repo.ListByUser(ctx, userID, unreadOnly, page, limit)
	if err != nil {
		return nil, 0, util.Unexpected(err)
	}
	return items, total, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	count, err := s.Repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, util.Unexpected(err)
	}
	return count, nil
}

// MarkRead 只能标记自己的通知，他人的通知按不存在处理
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	n, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrNotificationMissing
		}
		return util.Unexpected(err)
	}
	if n.UserID != userID {
		return util.ErrNotificationMissing
	}
	if n.IsRead {
		return nil
	}
	if _, err := s.Repo.MarkRead(ctx, userID, id); err != nil {
		return util.Unexpected(err)
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	rows, err := s.Repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, util.Unexpected(err)
	}
	return rows, nil
}
