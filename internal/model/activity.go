package model

import "time"

type ActivityType string

const (
	ActivityQuiz       ActivityType = "QUIZ"
	ActivityAssignment ActivityType = "ASSIGNMENT"
	ActivityDiscussion ActivityType = "DISCUSSION"
	ActivityProject    ActivityType = "PROJECT"
)

func (t ActivityType) Valid() bool {
	switch t {
	case ActivityQuiz, ActivityAssignment, ActivityDiscussion, ActivityProject:
		return true
	}
	return false
}

type ActivityStatus string

const (
	ActivityDraft     ActivityStatus = "DRAFT"
	ActivityPublished ActivityStatus = "PUBLISHED"
	ActivityArchived  ActivityStatus = "ARCHIVED"
)

func (s ActivityStatus) Valid() bool {
	switch s {
	case ActivityDraft, ActivityPublished, ActivityArchived:
		return true
	}
	return false
}

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionShortAnswer    QuestionType = "SHORT_ANSWER"
	QuestionEssay          QuestionType = "ESSAY"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionShortAnswer, QuestionEssay:
		return true
	}
	return false
}

// Objective 有固定答案、可以自动判分的题型
func (t QuestionType) Objective() bool {
	return t == QuestionMultipleChoice || t == QuestionTrueFalse
}

// swagger:model Activity
type Activity struct {
	BaseModel
	Title            string         `gorm:"size:200;not null" json:"title"`
	Description      string         `gorm:"type:text" json:"description"`
	Type             ActivityType   `gorm:"size:20;not null;index" json:"type"`
	Status           ActivityStatus `gorm:"size:20;not null;default:'DRAFT';index" json:"status"`
	TimeLimitMinutes *int           `json:"timeLimitMinutes"`
	DueDate          *time.Time     `json:"dueDate"`
	MaxAttempts      int            `gorm:"not null;default:1" json:"maxAttempts"`
	PassScore        *float64       `json:"passScore"`
	ShuffleQuestions bool           `gorm:"default:false" json:"shuffleQuestions"`
	CreatorID        uint           `gorm:"index" json:"creatorId"`

	// 二选一：挂在课程或课时下
	CourseID *uint `gorm:"index" json:"courseId"`
	LessonID *uint `gorm:"index" json:"lessonId"`

	Questions []ActivityQuestion `gorm:"foreignKey:ActivityID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
	Materials []ActivityMaterial `gorm:"foreignKey:ActivityID;constraint:OnDelete:CASCADE" json:"materials,omitempty"`
}

func (Activity) TableName() string {
	return "activities"
}

// HasTimeLimit timeLimitMinutes 为空或 0 表示不限时
func (a *Activity) HasTimeLimit() bool {
	return a.TimeLimitMinutes != nil && *a.TimeLimitMinutes > 0
}

// swagger:model ActivityQuestion
type ActivityQuestion struct {
	HardModel
	ActivityID uint             `gorm:"index;not null" json:"activityId"`
	Question   string           `gorm:"type:text;not null" json:"question"`
	Type       QuestionType     `gorm:"size:30;not null" json:"type"`
	Points     int              `gorm:"default:0" json:"points"`
	Position   int              `gorm:"default:0" json:"position"`
	Options    []QuestionOption `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"options,omitempty"`
}

func (ActivityQuestion) TableName() string {
	return "activity_questions"
}

// CorrectOption 返回第一个标记为正确的选项
func (q *ActivityQuestion) CorrectOption() *QuestionOption {
	for i := range q.Options {
		if q.Options[i].IsCorrect {
			return &q.Options[i]
		}
	}
	return nil
}

// swagger:model QuestionOption
type QuestionOption struct {
	HardModel
	QuestionID uint   `gorm:"index;not null" json:"questionId"`
	Text       string `gorm:"size:500;not null" json:"text"`
	IsCorrect  bool   `gorm:"default:false" json:"isCorrect"`
}

func (QuestionOption) TableName() string {
	return "question_options"
}

// swagger:model ActivityMaterial
type ActivityMaterial struct {
	HardModel
	ActivityID uint  `gorm:"index;not null" json:"activityId"`
	FileID     uint  `gorm:"index;not null" json:"fileId"`
	File       *File `gorm:"foreignKey:FileID" json:"file,omitempty"`
}

func (ActivityMaterial) TableName() string {
	return "activity_materials"
}
