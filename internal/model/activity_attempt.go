package model

import "time"

type GradingStatus string

const (
	GradingPendingManual GradingStatus = "PENDING_MANUAL"
	GradingGraded        GradingStatus = "GRADED"
)

func (s GradingStatus) Valid() bool {
	return s == GradingPendingManual || s == GradingGraded
}

// 对外展示的尝试状态，IN_PROGRESS 由 completedAt 为空推导
const (
	AttemptInProgress    = "IN_PROGRESS"
	AttemptPendingManual = "PENDING_MANUAL"
	AttemptGraded        = "GRADED"
)

// swagger:model ActivityAttempt
//
// InFlight 进行中为 true，提交后置为 NULL；配合 (activity_id, student_id, in_flight)
// 唯一索引保证同一学生同一活动最多只有一个进行中的尝试
type ActivityAttempt struct {
	HardModel
	ActivityID     uint           `gorm:"not null;index;uniqueIndex:uk_attempt_number,priority:1;uniqueIndex:uk_attempt_in_flight,priority:1" json:"activityId"`
	StudentID      uint           `gorm:"not null;index;uniqueIndex:uk_attempt_number,priority:2;uniqueIndex:uk_attempt_in_flight,priority:2" json:"studentId"`
	AttemptNumber  int            `gorm:"not null;uniqueIndex:uk_attempt_number,priority:3" json:"attemptNumber"`
	InFlight       *bool          `gorm:"uniqueIndex:uk_attempt_in_flight,priority:3" json:"-"`
	StartedAt      time.Time      `gorm:"not null" json:"startedAt"`
	CompletedAt    *time.Time     `json:"completedAt"`
	Score          *float64       `json:"score"`
	GradingStatus  *GradingStatus `gorm:"size:20;index" json:"gradingStatus"`
	GraderFeedback *string        `gorm:"type:text" json:"graderFeedback"`
	GraderID       *uint          `json:"graderId"`
	GradedAt       *time.Time     `json:"gradedAt"`

	Activity *Activity       `gorm:"foreignKey:ActivityID" json:"activity,omitempty"`
	Student  *User           `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	Grader   *User           `gorm:"foreignKey:GraderID" json:"grader,omitempty"`
	Answers  []StudentAnswer `gorm:"foreignKey:ActivityAttemptID;constraint:OnDelete:CASCADE" json:"answers,omitempty"`
}

func (ActivityAttempt) TableName() string {
	return "activity_attempts"
}

func (a *ActivityAttempt) Completed() bool {
	return a.CompletedAt != nil
}

func (a *ActivityAttempt) State() string {
	if a.CompletedAt == nil {
		return AttemptInProgress
	}
	if a.GradingStatus != nil && *a.GradingStatus == GradingPendingManual {
		return AttemptPendingManual
	}
	return AttemptGraded
}

// swagger:model StudentAnswer
type StudentAnswer struct {
	HardModel
	ActivityAttemptID  uint              `gorm:"not null;index" json:"activityAttemptId"`
	ActivityQuestionID uint              `gorm:"not null;index" json:"activityQuestionId"`
	SelectedOptionID   *uint             `json:"selectedOptionId"`
	Answer             *string           `gorm:"type:text" json:"answer"`
	IsCorrect          *bool             `json:"isCorrect"`
	Score              float64           `gorm:"default:0" json:"score"`
	Feedback           *string           `gorm:"type:text" json:"feedback"`
	Question           *ActivityQuestion `gorm:"foreignKey:ActivityQuestionID" json:"question,omitempty"`
}

func (StudentAnswer) TableName() string {
	return "student_answers"
}
