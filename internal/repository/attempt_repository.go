package repository

import (
	"context"
	"edu_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

// AttemptFilter 尝试列表筛选条件，指针字段为空表示不过滤
type AttemptFilter struct {
	ActivityID    *uint
	StudentID     *uint
	GradingStatus model.GradingStatus
	InProgress    *bool
	Page          int
	Limit         int
}

func (r *AttemptRepository) Create(ctx context.Context, tx *gorm.DB, attempt *model.ActivityAttempt) error {
	return pick(ctx, r.DB, tx).Create(attempt).Error
}

func (r *AttemptRepository) CountByStudent(ctx context.Context, tx *gorm.DB, activityID, studentID uint) (int64, error) {
	var count int64
	err := pick(ctx, r.DB, tx).Model(&model.ActivityAttempt{}).
		Where("activity_id = ? AND student_id = ?", activityID, studentID).
		Count(&count).Error
	return count, err
}

func (r *AttemptRepository) HasInFlight(ctx context.Context, tx *gorm.DB, activityID, studentID uint) (bool, error) {
	var count int64
	err := pick(ctx, r.DB, tx).Model(&model.ActivityAttempt{}).
		Where("activity_id = ? AND student_id = ? AND completed_at IS NULL", activityID, studentID).
		Count(&count).Error
	return count > 0, err
}

func (r *AttemptRepository) FindByID(ctx context.Context, tx *gorm.DB, id uint) (*model.ActivityAttempt, error) {
	var attempt model.ActivityAttempt
	if err := pick(ctx, r.DB, tx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *AttemptRepository) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*model.ActivityAttempt, error) {
	var attempt model.ActivityAttempt
	err := pick(ctx, r.DB, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&attempt, id).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

// FindDetail withKey 为 true 时带出题目选项（含正确答案）
func (r *AttemptRepository) FindDetail(ctx context.Context, tx *gorm.DB, id uint, withKey bool) (*model.ActivityAttempt, error) {
	var attempt model.ActivityAttempt
	query := pick(ctx, r.DB, tx).
		Preload("Activity").
		Preload("Student").
		Preload("Grader").
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Answers.Question")
	if withKey {
		query = query.Preload("Answers.Question.Options", orderedOptions)
	}
	if err := query.First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *AttemptRepository) List(ctx context.Context, filter AttemptFilter) ([]model.ActivityAttempt, int64, error) {
	var attempts []model.ActivityAttempt
	var total int64

	query := r.DB.WithContext(ctx).Model(&model.ActivityAttempt{})
	if filter.ActivityID != nil {
		query = query.Where("activity_id = ?", *filter.ActivityID)
	}
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.GradingStatus != "" {
		query = query.Where("grading_status = ?", filter.GradingStatus)
	}
	if filter.InProgress != nil {
		if *filter.InProgress {
			query = query.Where("completed_at IS NULL")
		} else {
			query = query.Where("completed_at IS NOT NULL")
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Activity").
		Preload("Student").
		Order("started_at DESC, id DESC").
		Scopes(paginate(filter.Page, filter.Limit)).
		Find(&attempts).Error
	return attempts, total, err
}

func (r *AttemptRepository) ListByStudentAndActivity(ctx context.Context, activityID, studentID uint) ([]model.ActivityAttempt, error) {
	var attempts []model.ActivityAttempt
	err := r.DB.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("activity_id = ? AND student_id = ?", activityID, studentID).
		Order("attempt_number ASC").
		Find(&attempts).Error
	return attempts, err
}

func (r *AttemptRepository) CreateAnswers(ctx context.Context, tx *gorm.DB, answers []model.StudentAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	return pick(ctx, r.DB, tx).Create(&answers).Error
}

// Complete 只对未提交的尝试生效，返回受影响行数；0 表示已被其他请求提交
func (r *AttemptRepository) Complete(ctx context.Context, tx *gorm.DB, id uint, completedAt time.Time, score float64, status model.GradingStatus) (int64, error) {
	res := pick(ctx, r.DB, tx).Model(&model.ActivityAttempt{}).
		Where("id = ? AND completed_at IS NULL", id).
		Updates(map[string]interface{}{
			"completed_at":   completedAt,
			"score":          score,
			"grading_status": status,
			"in_flight":      gorm.Expr("NULL"),
		})
	return res.RowsAffected, res.Error
}

func (r *AttemptRepository) AnswerIDs(ctx context.Context, tx *gorm.DB, attemptID uint) ([]uint, error) {
	var ids []uint
	err := pick(ctx, r.DB, tx).Model(&model.StudentAnswer{}).
		Where("activity_attempt_id = ?", attemptID).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *AttemptRepository) GradeAnswer(ctx context.Context, tx *gorm.DB, attemptID, answerID uint, score float64, feedback *string) error {
	return pick(ctx, r.DB, tx).Model(&model.StudentAnswer{}).
		Where("id = ? AND activity_attempt_id = ?", answerID, attemptID).
		Updates(map[string]interface{}{
			"score":    score,
			"feedback": feedback,
		}).Error
}

func (r *AttemptRepository) ApplyGrade(ctx context.Context, tx *gorm.DB, id uint, score float64, feedback *string, graderID uint, gradedAt time.Time) error {
	return pick(ctx, r.DB, tx).Model(&model.ActivityAttempt{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"score":           score,
			"grader_feedback": feedback,
			"grading_status":  model.GradingGraded,
			"graded_at":       gradedAt,
			"grader_id":       graderID,
		}).Error
}
