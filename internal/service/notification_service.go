package service

import (
	"strings"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/queue"
	"github.com/dujiao-next/commission-engine/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationInput 通知入队参数
type NotificationInput struct {
	Recipient string
	Template  string
	Metadata  models.JSON
}

// NotificationService 通知入队服务（只写 notification_queue，不负责发送）
type NotificationService struct {
	repo        repository.NotificationRepository
	queueClient *queue.Client
}

// NewNotificationService 创建通知入队服务
func NewNotificationService(repo repository.NotificationRepository, queueClient *queue.Client) *NotificationService {
	return &NotificationService{repo: repo, queueClient: queueClient}
}

// EnqueueTx 在事务内写入通知记录，应作为事务中最后一条写入
func (s *NotificationService) EnqueueTx(tx *gorm.DB, input NotificationInput) (*models.NotificationQueue, error) {
	recipient := strings.TrimSpace(input.Recipient)
	if recipient == "" {
		return nil, nil
	}
	row := &models.NotificationQueue{
		MessageID: uuid.NewString(),
		Channel:   constants.NotificationChannelEmail,
		Recipient: recipient,
		Template:  input.Template,
		Metadata:  input.Metadata,
		Status:    constants.NotificationStatusPending,
	}
	if err := s.repo.WithTx(tx).Create(row); err != nil {
		return nil, err
	}
	return row, nil
}

// Kick 事务提交后唤醒外部派发器，失败仅记录日志
func (s *NotificationService) Kick(rows ...*models.NotificationQueue) {
	if s == nil || !s.queueClient.Enabled() {
		return
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if row != nil && row.MessageID != "" {
			ids = append(ids, row.MessageID)
		}
	}
	if len(ids) == 0 {
		return
	}
	if err := s.queueClient.EnqueueNotificationDispatch(queue.NotificationDispatchPayload{MessageIDs: ids}); err != nil {
		logger.Warnw("notification_dispatch_enqueue_failed",
			"message_ids", ids,
			"error", err,
		)
	}
}
