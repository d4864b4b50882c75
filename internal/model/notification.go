package model

import "time"

type NotificationType string

const (
	NotifyAttemptPendingGrading NotificationType = "ATTEMPT_PENDING_GRADING"
	NotifyAttemptGraded         NotificationType = "ATTEMPT_GRADED"
	NotifyActivityPublished     NotificationType = "ACTIVITY_PUBLISHED"
	NotifyEnrollmentRequested   NotificationType = "ENROLLMENT_REQUESTED"
	NotifyEnrollmentReviewed    NotificationType = "ENROLLMENT_REVIEWED"
)

type SendStatus string

const (
	SendPending SendStatus = "PENDING"
	SendSent    SendStatus = "SENT"
	SendFailed  SendStatus = "FAILED"
)

// swagger:model Notification
type Notification struct {
	BaseModel
	UserID     uint             `gorm:"index;not null" json:"userId"`
	Type       NotificationType `gorm:"size:50;not null" json:"type"`
	Title      string           `gorm:"size:200" json:"title"`
	Message    string           `gorm:"type:text" json:"message"`
	Data       string           `gorm:"type:text" json:"data"` // JSON 附加数据
	CourseID   *uint            `gorm:"index" json:"courseId,omitempty"`
	IsRead     bool             `gorm:"default:false;index" json:"isRead"`
	SendStatus SendStatus       `gorm:"size:20;default:'PENDING'" json:"sendStatus"`
	SendError  string           `gorm:"type:text" json:"-"`
	RetryCount int              `gorm:"default:0" json:"-"`
	SentAt     *time.Time       `json:"sentAt,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}
