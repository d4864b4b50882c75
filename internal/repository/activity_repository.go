package repository

import (
	"context"
	"edu_backend/internal/model"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ActivityRepository struct {
	DB *gorm.DB
}

func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{DB: db}
}

// ActivityFilter 活动列表筛选条件
type ActivityFilter struct {
	CourseID  *uint
	LessonID  *uint
	CreatorID *uint
	Type      model.ActivityType
	Status    model.ActivityStatus
	Search    string
	Page      int
	Limit     int
}

func orderedQuestions(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC, id ASC")
}

func orderedOptions(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

// Create 连同题目和选项一起写入
func (r *ActivityRepository) Create(ctx context.Context, tx *gorm.DB, activity *model.Activity) error {
	return pick(ctx, r.DB, tx).Create(activity).Error
}

func (r *ActivityRepository) FindByID(ctx context.Context, tx *gorm.DB, id uint) (*model.Activity, error) {
	var activity model.Activity
	if err := pick(ctx, r.DB, tx).First(&activity, id).Error; err != nil {
		return nil, err
	}
	return &activity, nil
}

// FindByIDForUpdate 行锁读取活动，串行化同一活动上的并发开始请求
func (r *ActivityRepository) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*model.Activity, error) {
	var activity model.Activity
	err := pick(ctx, r.DB, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&activity, id).Error
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

// FindDetail 读取活动及其题目、选项、附件
func (r *ActivityRepository) FindDetail(ctx context.Context, tx *gorm.DB, id uint) (*model.Activity, error) {
	var activity model.Activity
	err := pick(ctx, r.DB, tx).
		Preload("Questions", orderedQuestions).
		Preload("Questions.Options", orderedOptions).
		Preload("Materials.File").
		First(&activity, id).Error
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

func (r *ActivityRepository) FindQuestions(ctx context.Context, tx *gorm.DB, activityID uint) ([]model.ActivityQuestion, error) {
	var questions []model.ActivityQuestion
	err := pick(ctx, r.DB, tx).
		Scopes(orderedQuestions).
		Preload("Options", orderedOptions).
		Where("activity_id = ?", activityID).
		Find(&questions).Error
	return questions, err
}

func (r *ActivityRepository) List(ctx context.Context, filter ActivityFilter) ([]model.Activity, int64, error) {
	var activities []model.Activity
	var total int64

	query := r.DB.WithContext(ctx).Model(&model.Activity{})
	if filter.CourseID != nil {
		query = query.Where("course_id = ?", *filter.CourseID)
	}
	if filter.LessonID != nil {
		query = query.Where("lesson_id = ?", *filter.LessonID)
	}
	if filter.CreatorID != nil {
		query = query.Where("creator_id = ?", *filter.CreatorID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(s)+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Materials.File").
		Order("created_at DESC, id DESC").
		Scopes(paginate(filter.Page, filter.Limit)).
		Find(&activities).Error
	return activities, total, err
}

func (r *ActivityRepository) UpdateFields(ctx context.Context, tx *gorm.DB, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return pick(ctx, r.DB, tx).Model(&model.Activity{}).Where("id = ?", id).Updates(fields).Error
}

func (r *ActivityRepository) Delete(ctx context.Context, tx *gorm.DB, id uint) (int64, error) {
	res := pick(ctx, r.DB, tx).Delete(&model.Activity{}, id)
	return res.RowsAffected, res.Error
}

func (r *ActivityRepository) CreateQuestion(ctx context.Context, tx *gorm.DB, q *model.ActivityQuestion) error {
	return pick(ctx, r.DB, tx).Create(q).Error
}

func (r *ActivityRepository) UpdateQuestion(ctx context.Context, tx *gorm.DB, q *model.ActivityQuestion) error {
	return pick(ctx, r.DB, tx).Model(&model.ActivityQuestion{}).
		Where("id = ? AND activity_id = ?", q.ID, q.ActivityID).
		Updates(map[string]interface{}{
			"question": q.Question,
			"type":     q.Type,
			"points":   q.Points,
			"position": q.Position,
		}).Error
}

// DeleteQuestionsExcept 删除活动下不在 keep 列表中的题目（含选项）
func (r *ActivityRepository) DeleteQuestionsExcept(ctx context.Context, tx *gorm.DB, activityID uint, keep []uint) error {
	db := pick(ctx, r.DB, tx)

	var ids []uint
	query := db.Model(&model.ActivityQuestion{}).Where("activity_id = ?", activityID)
	if len(keep) > 0 {
		query = query.Where("id NOT IN ?", keep)
	}
	if err := query.Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	if err := db.Where("question_id IN ?", ids).Delete(&model.QuestionOption{}).Error; err != nil {
		return err
	}
	return db.Where("id IN ?", ids).Delete(&model.ActivityQuestion{}).Error
}

func (r *ActivityRepository) CreateOption(ctx context.Context, tx *gorm.DB, opt *model.QuestionOption) error {
	return pick(ctx, r.DB, tx).Create(opt).Error
}

func (r *ActivityRepository) UpdateOption(ctx context.Context, tx *gorm.DB, opt *model.QuestionOption) error {
	return pick(ctx, r.DB, tx).Model(&model.QuestionOption{}).
		Where("id = ? AND question_id = ?", opt.ID, opt.QuestionID).
		Updates(map[string]interface{}{
			"text":       opt.Text,
			"is_correct": opt.IsCorrect,
		}).Error
}

func (r *ActivityRepository) DeleteOptionsExcept(ctx context.Context, tx *gorm.DB, questionID uint, keep []uint) error {
	query := pick(ctx, r.DB, tx).Where("question_id = ?", questionID)
	if len(keep) > 0 {
		query = query.Where("id NOT IN ?", keep)
	}
	return query.Delete(&model.QuestionOption{}).Error
}

// AnsweredQuestionIDs 返回已经有学生作答记录的题目
func (r *ActivityRepository) AnsweredQuestionIDs(ctx context.Context, tx *gorm.DB, questionIDs []uint) ([]uint, error) {
	var ids []uint
	if len(questionIDs) == 0 {
		return ids, nil
	}
	err := pick(ctx, r.DB, tx).Model(&model.StudentAnswer{}).
		Distinct("activity_question_id").
		Where("activity_question_id IN ?", questionIDs).
		Pluck("activity_question_id", &ids).Error
	return ids, err
}

func (r *ActivityRepository) AddMaterial(ctx context.Context, tx *gorm.DB, m *model.ActivityMaterial) error {
	return pick(ctx, r.DB, tx).Create(m).Error
}

func (r *ActivityRepository) FindMaterials(ctx context.Context, tx *gorm.DB, activityID uint, ids []uint) ([]model.ActivityMaterial, error) {
	var materials []model.ActivityMaterial
	err := pick(ctx, r.DB, tx).
		Preload("File").
		Where("activity_id = ? AND id IN ?", activityID, ids).
		Find(&materials).Error
	return materials, err
}

func (r *ActivityRepository) DeleteMaterial(ctx context.Context, tx *gorm.DB, id uint) error {
	return pick(ctx, r.DB, tx).Delete(&model.ActivityMaterial{}, id).Error
}
