package service

import (
	"context"
	"edu_backend/internal/model"
	"edu_backend/internal/repository"
	"edu_backend/internal/util"
	"edu_backend/pkg/logger"
	"edu_backend/pkg/monitoring"
	"edu_backend/pkg/tracing"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier 尝试状态变化后的通知出口，失败不影响主流程
type Notifier interface {
	Notify(ctx context.Context, in NotifyInput) (*model.Notification, error)
}

type AttemptService struct {
	DB           *gorm.DB
	ActivityRepo *repository.ActivityRepository
	AttemptRepo  *repository.AttemptRepository
	Notifier     Notifier
	Now          func() time.Time
}

func NewAttemptService(
	db *gorm.DB,
	activityRepo *repository.ActivityRepository,
	attemptRepo *repository.AttemptRepository,
	notifier Notifier,
) *AttemptService {
	return &AttemptService{
		DB:           db,
		ActivityRepo: activityRepo,
		AttemptRepo:  attemptRepo,
		Notifier:     notifier,
		Now:          time.Now,
	}
}

// GradeInput 人工评分请求
type GradeInput struct {
	OverallFeedback *string       `json:"overallFeedback"`
	Answers         []AnswerGrade `json:"answers" binding:"dive"`
}

type AnswerGrade struct {
	ID       uint    `json:"id" binding:"required"`
	Score    float64 `json:"score"`
	Feedback *string `json:"feedback"`
}

func (s *AttemptService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// lookupErr 记录不存在转换为对应的业务错误，其余视为非预期错误
func lookupErr(err error, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return util.Unexpected(err)
}

// finish 统一处理 span 状态、拒绝指标和非预期错误日志
func (s *AttemptService) finish(span trace.Span, op string, err error, fields ...zap.Field) error {
	if err == nil {
		return nil
	}
	kind := util.KindOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, kind.String())

	if kind == util.KindUnexpected {
		logger.Log.Error(op+" failed", append(fields, zap.Error(err))...)
	} else {
		monitoring.AttemptRejections.WithLabelValues(kind.String()).Inc()
		logger.Log.Debug(op+" rejected", append(fields, zap.String("kind", kind.String()), zap.Error(err))...)
	}
	return err
}

// StartAttempt 开始一次新的作答
func (s *AttemptService) StartAttempt(ctx context.Context, activityID, studentID uint) (*StartedAttempt, error) {
	ctx, span := tracing.Tracer().Start(ctx, "attempt.start")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("activity.id", int64(activityID)),
		attribute.Int64("student.id", int64(studentID)),
	)

	var (
		attempt   *model.ActivityAttempt
		activity  *model.Activity
		questions []model.ActivityQuestion
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := s.ActivityRepo.FindByIDForUpdate(ctx, tx, activityID)
		if err != nil {
			return lookupErr(err, util.ErrActivityNotFound)
		}
		if a.Status != model.ActivityPublished {
			return util.ErrActivityNotActive
		}

		count, err := s.AttemptRepo.CountByStudent(ctx, tx, activityID, studentID)
		if err != nil {
			return util.Unexpected(err)
		}
		if count >= int64(a.MaxAttempts) {
			return util.QuotaExceededError("已达到最大作答次数 (%d)", a.MaxAttempts)
		}

		inFlight, err := s.AttemptRepo.HasInFlight(ctx, tx, activityID, studentID)
		if err != nil {
			return util.Unexpected(err)
		}
		if inFlight {
			return util.ErrAttemptInProgress
		}

		flag := true
		attempt = &model.ActivityAttempt{
			ActivityID:    activityID,
			StudentID:     studentID,
			AttemptNumber: int(count) + 1,
			InFlight:      &flag,
			StartedAt:     s.now(),
		}
		if err := s.AttemptRepo.Create(ctx, tx, attempt); err != nil {
			// 唯一索引兜底：并发请求抢先插入了进行中的尝试
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return util.ErrAttemptInProgress
			}
			return util.Unexpected(err)
		}

		questions, err = s.ActivityRepo.FindQuestions(ctx, tx, activityID)
		if err != nil {
			return util.Unexpected(err)
		}
		activity = a
		return nil
	})
	if err != nil {
		return nil, s.finish(span, "start attempt", err,
			zap.Uint("activityId", activityID), zap.Uint("studentId", studentID))
	}

	monitoring.AttemptsStarted.Inc()
	logger.Log.Info("attempt started",
		zap.Uint("attemptId", attempt.ID),
		zap.Uint("activityId", activityID),
		zap.Uint("studentId", studentID),
		zap.Int("attemptNumber", attempt.AttemptNumber),
	)

	return &StartedAttempt{
		Attempt:          attempt,
		Activity:         toActivityView(activity),
		Questions:        studentQuestions(questions),
		ShuffleQuestions: activity.ShuffleQuestions,
	}, nil
}

// SubmitAttempt 提交作答并自动判分；含主观题时进入待人工评分
func (s *AttemptService) SubmitAttempt(ctx context.Context, attemptID, studentID uint, raw []AnswerInput) (*SubmitResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "attempt.submit")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("attempt.id", int64(attemptID)),
		attribute.Int64("student.id", int64(studentID)),
	)

	parsed, err := ParseAnswers(raw)
	if err != nil {
		return nil, s.finish(span, "submit attempt", err, zap.Uint("attemptId", attemptID))
	}

	var (
		activity    *model.Activity
		status      model.GradingStatus
		totalScore  float64
		needsManual bool
	)

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempt, err := s.AttemptRepo.FindByIDForUpdate(ctx, tx, attemptID)
		if err != nil {
			return lookupErr(err, util.ErrAttemptNotFound)
		}
		if attempt.StudentID != studentID {
			return util.ErrNotYourAttempt
		}
		if attempt.Completed() {
			return util.ErrAttemptSubmitted
		}

		activity, err = s.ActivityRepo.FindByID(ctx, tx, attempt.ActivityID)
		if err != nil {
			return lookupErr(err, util.ErrActivityNotFound)
		}

		now := s.now()
		if activity.HasTimeLimit() {
			elapsed := now.Sub(attempt.StartedAt).Minutes()
			if elapsed > float64(*activity.TimeLimitMinutes) {
				return util.ErrTimeLimitExceeded
			}
		}

		questions, err := s.ActivityRepo.FindQuestions(ctx, tx, activity.ID)
		if err != nil {
			return util.Unexpected(err)
		}
		byID := make(map[uint]*model.ActivityQuestion, len(questions))
		for i := range questions {
			byID[questions[i].ID] = &questions[i]
		}

		answers := make([]model.StudentAnswer, 0, len(parsed))
		for _, p := range parsed {
			q, ok := byID[p.QuestionID]
			if !ok {
				return util.NotFoundError("题目 %d 不存在", p.QuestionID)
			}

			sc := ScoreAnswer(activity.Type, q, p)
			totalScore += sc.Score
			if sc.NeedsManual {
				needsManual = true
			}

			answers = append(answers, model.StudentAnswer{
				ActivityAttemptID:  attemptID,
				ActivityQuestionID: q.ID,
				SelectedOptionID:   p.SelectedOptionID,
				Answer:             p.Text,
				IsCorrect:          sc.IsCorrect,
				Score:              sc.Score,
			})
		}

		if err := s.AttemptRepo.CreateAnswers(ctx, tx, answers); err != nil {
			return util.Unexpected(err)
		}

		status = model.GradingGraded
		if needsManual {
			status = model.GradingPendingManual
		}

		rows, err := s.AttemptRepo.Complete(ctx, tx, attemptID, now, totalScore, status)
		if err != nil {
			return util.Unexpected(err)
		}
		if rows == 0 {
			return util.ErrAttemptSubmitted
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(span, "submit attempt", err,
			zap.Uint("attemptId", attemptID), zap.Uint("studentId", studentID))
	}

	monitoring.AttemptsSubmitted.WithLabelValues(string(status)).Inc()
	logger.Log.Info("attempt submitted",
		zap.Uint("attemptId", attemptID),
		zap.Uint("studentId", studentID),
		zap.Float64("score", totalScore),
		zap.String("gradingStatus", string(status)),
	)

	if needsManual {
		s.notify(ctx, NotifyInput{
			UserID:   activity.CreatorID,
			Type:     model.NotifyAttemptPendingGrading,
			Title:    "有新的作答待批改",
			Message:  fmt.Sprintf("「%s」收到一份需要人工评分的作答", activity.Title),
			CourseID: activity.CourseID,
			Data: map[string]interface{}{
				"attemptId":  attemptID,
				"activityId": activity.ID,
				"studentId":  studentID,
			},
		})
	}

	if activity.Type == model.ActivityAssignment {
		return &SubmitResult{Acknowledged: true, Message: "提交成功"}, nil
	}

	detail, err := s.AttemptRepo.FindDetail(ctx, nil, attemptID, false)
	if err != nil {
		return nil, s.finish(span, "submit attempt", util.Unexpected(err), zap.Uint("attemptId", attemptID))
	}
	return &SubmitResult{Acknowledged: true, Attempt: detail}, nil
}

// GradeAttempt 人工评分；允许重复评分，以最后一次为准
func (s *AttemptService) GradeAttempt(ctx context.Context, attemptID, graderID uint, in GradeInput) (*model.ActivityAttempt, error) {
	ctx, span := tracing.Tracer().Start(ctx, "attempt.grade")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("attempt.id", int64(attemptID)),
		attribute.Int64("grader.id", int64(graderID)),
	)

	seen := make(map[uint]bool, len(in.Answers))
	for _, g := range in.Answers {
		if g.Score < 0 {
			return nil, s.finish(span, "grade attempt", util.BadRequestError("答案 %d 的分数不能为负", g.ID))
		}
		if seen[g.ID] {
			return nil, s.finish(span, "grade attempt", util.BadRequestError("答案 %d 重复评分", g.ID))
		}
		seen[g.ID] = true
	}

	var (
		studentID  uint
		totalScore float64
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempt, err := s.AttemptRepo.FindByIDForUpdate(ctx, tx, attemptID)
		if err != nil {
			return lookupErr(err, util.ErrAttemptNotFound)
		}
		if !attempt.Completed() {
			return util.InvalidStateError("作答尚未提交")
		}
		studentID = attempt.StudentID

		ids, err := s.AttemptRepo.AnswerIDs(ctx, tx, attemptID)
		if err != nil {
			return util.Unexpected(err)
		}
		owned := make(map[uint]bool, len(ids))
		for _, id := range ids {
			owned[id] = true
		}

		totalScore = 0
		for _, g := range in.Answers {
			if !owned[g.ID] {
				return util.NotFoundError("答案 %d 不属于作答记录 %d", g.ID, attemptID)
			}
			if err := s.AttemptRepo.GradeAnswer(ctx, tx, attemptID, g.ID, g.Score, g.Feedback); err != nil {
				return util.Unexpected(err)
			}
			totalScore += g.Score
		}

		if err := s.AttemptRepo.ApplyGrade(ctx, tx, attemptID, totalScore, in.OverallFeedback, graderID, s.now()); err != nil {
			return util.Unexpected(err)
		}
		return nil
	})
	if err != nil {
		return nil, s.finish(span, "grade attempt", err,
			zap.Uint("attemptId", attemptID), zap.Uint("graderId", graderID))
	}

	monitoring.AttemptsGraded.Inc()
	logger.Log.Info("attempt graded",
		zap.Uint("attemptId", attemptID),
		zap.Uint("graderId", graderID),
		zap.Float64("score", totalScore),
	)

	detail, err := s.AttemptRepo.FindDetail(ctx, nil, attemptID, true)
	if err != nil {
		return nil, s.finish(span, "grade attempt", util.Unexpected(err), zap.Uint("attemptId", attemptID))
	}

	var (
		title    string
		courseID *uint
	)
	if detail.Activity != nil {
		title = detail.Activity.Title
		courseID = detail.Activity.CourseID
	}
	s.notify(ctx, NotifyInput{
		UserID:   studentID,
		Type:     model.NotifyAttemptGraded,
		Title:    "作答已批改",
		Message:  fmt.Sprintf("「%s」已完成评分，得分 %.1f", title, totalScore),
		CourseID: courseID,
		Data: map[string]interface{}{
			"attemptId":  attemptID,
			"activityId": detail.ActivityID,
			"score":      totalScore,
		},
	})

	return detail, nil
}

// notify 通知失败只记录日志
func (s *AttemptService) notify(ctx context.Context, in NotifyInput) {
	if s.Notifier == nil || in.UserID == 0 {
		return
	}
	if _, err := s.Notifier.Notify(ctx, in); err != nil {
		logger.Log.Warn("failed to create notification",
			zap.Uint("userId", in.UserID),
			zap.String("type", string(in.Type)),
			zap.Error(err),
		)
	}
}

// GetAttempts 学生自己的作答列表
func (s *AttemptService) GetAttempts(ctx context.Context, studentID uint, filter repository.AttemptFilter) ([]model.ActivityAttempt, int64, error) {
	filter.StudentID = &studentID
	attempts, total, err := s.AttemptRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, util.Unexpected(err)
	}
	return attempts, total, nil
}

// GetAttempt 学生查看自己的某次作答，题目不带答案
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID, studentID uint) (*AttemptView, error) {
	attempt, err := s.AttemptRepo.FindDetail(ctx, nil, attemptID, false)
	if err != nil {
		return nil, lookupErr(err, util.ErrAttemptNotFound)
	}
	if attempt.StudentID != studentID {
		return nil, util.ErrNotYourAttempt
	}

	questions, err := s.ActivityRepo.FindQuestions(ctx, nil, attempt.ActivityID)
	if err != nil {
		return nil, util.Unexpected(err)
	}

	return &AttemptView{
		ActivityAttempt: attempt,
		State:           attempt.State(),
		Questions:       studentQuestions(questions),
	}, nil
}

// GetAttemptResult 作答结果；提交后才带出正确答案
func (s *AttemptService) GetAttemptResult(ctx context.Context, attemptID, studentID uint) (*model.ActivityAttempt, error) {
	attempt, err := s.AttemptRepo.FindByID(ctx, nil, attemptID)
	if err != nil {
		return nil, lookupErr(err, util.ErrAttemptNotFound)
	}
	if attempt.StudentID != studentID {
		return nil, util.ErrNotYourAttempt
	}

	detail, err := s.AttemptRepo.FindDetail(ctx, nil, attemptID, attempt.Completed())
	if err != nil {
		return nil, lookupErr(err, util.ErrAttemptNotFound)
	}
	return detail, nil
}

// AdminGetAttempts 教师/管理员查看作答列表，不做归属过滤
func (s *AttemptService) AdminGetAttempts(ctx context.Context, filter repository.AttemptFilter) ([]model.ActivityAttempt, int64, error) {
	attempts, total, err := s.AttemptRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, util.Unexpected(err)
	}
	return attempts, total, nil
}

func (s *AttemptService) AdminGetAttemptDetail(ctx context.Context, attemptID uint) (*model.ActivityAttempt, error) {
	attempt, err := s.AttemptRepo.FindDetail(ctx, nil, attemptID, true)
	if err != nil {
		return nil, lookupErr(err, util.ErrAttemptNotFound)
	}
	return attempt, nil
}
