package service

import (
	"edu_backend/internal/model"
	"time"
)

// OptionView 学生可见的选项，不含正确答案
type OptionView struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

type QuestionView struct {
	ID       uint               `json:"id"`
	Question string             `json:"question"`
	Type     model.QuestionType `json:"type"`
	Points   int                `json:"points"`
	Position int                `json:"position"`
	Options  []OptionView       `json:"options"`
}

type ActivityView struct {
	ID               uint                 `json:"id"`
	Title            string               `json:"title"`
	Description      string               `json:"description"`
	Type             model.ActivityType   `json:"type"`
	Status           model.ActivityStatus `json:"status"`
	TimeLimitMinutes *int                 `json:"timeLimitMinutes"`
	DueDate          *time.Time           `json:"dueDate"`
	MaxAttempts      int                  `json:"maxAttempts"`
	PassScore        *float64             `json:"passScore"`
	ShuffleQuestions bool                 `json:"shuffleQuestions"`
	CourseID         *uint                `json:"courseId"`
	LessonID         *uint                `json:"lessonId"`
}

func toActivityView(a *model.Activity) ActivityView {
	return ActivityView{
		ID:               a.ID,
		Title:            a.Title,
		Description:      a.Description,
		Type:             a.Type,
		Status:           a.Status,
		TimeLimitMinutes: a.TimeLimitMinutes,
		DueDate:          a.DueDate,
		MaxAttempts:      a.MaxAttempts,
		PassScore:        a.PassScore,
		ShuffleQuestions: a.ShuffleQuestions,
		CourseID:         a.CourseID,
		LessonID:         a.LessonID,
	}
}

// studentQuestions 去掉 isCorrect，保持存储顺序
func studentQuestions(questions []model.ActivityQuestion) []QuestionView {
	views := make([]QuestionView, 0, len(questions))
	for _, q := range questions {
		opts := make([]OptionView, 0, len(q.Options))
		for _, o := range q.Options {
			opts = append(opts, OptionView{ID: o.ID, Text: o.Text})
		}
		views = append(views, QuestionView{
			ID:       q.ID,
			Question: q.Question,
			Type:     q.Type,
			Points:   q.Points,
			Position: q.Position,
			Options:  opts,
		})
	}
	return views
}

// StartedAttempt 开始作答的返回，题目顺序由客户端按 ShuffleQuestions 决定是否打乱
type StartedAttempt struct {
	Attempt          *model.ActivityAttempt `json:"attempt"`
	Activity         ActivityView           `json:"activity"`
	Questions        []QuestionView         `json:"questions"`
	ShuffleQuestions bool                   `json:"shuffleQuestions"`
}

// SubmitResult 作业类活动只返回确认信息，其余返回判分后的尝试
type SubmitResult struct {
	Acknowledged bool                   `json:"acknowledged"`
	Message      string                 `json:"message,omitempty"`
	Attempt      *model.ActivityAttempt `json:"attempt,omitempty"`
}

// AttemptView 学生查看单次尝试，附带不含答案的题目
type AttemptView struct {
	*model.ActivityAttempt
	State     string         `json:"state"`
	Questions []QuestionView `json:"questions"`
}

// StudentActivityView 学生查看活动详情
type StudentActivityView struct {
	ActivityView
	Questions     []QuestionView           `json:"questions"`
	Materials     []model.ActivityMaterial `json:"materials"`
	QuestionCount int                      `json:"questionCount"`
	AttemptCount  int                      `json:"attemptCount"`
	Attempts      []model.ActivityAttempt  `json:"attempts"`
}
