package repository

import (
	"context"
	"edu_backend/internal/model"

	"gorm.io/gorm"
)

type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

func (r *CourseRepository) CreateCourse(ctx context.Context, course *model.Course) error {
	return r.DB.WithContext(ctx).Create(course).Error
}

func (r *CourseRepository) FindCourseByID(ctx context.Context, tx *gorm.DB, id uint) (*model.Course, error) {
	var course model.Course
	if err := pick(ctx, r.DB, tx).First(&course, id).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepository) ListCourses(ctx context.Context, creatorID *uint, page, limit int) ([]model.Course, int64, error) {
	var courses []model.Course
	var total int64

	query := r.DB.WithContext(ctx).Model(&model.Course{})
	if creatorID != nil {
		query = query.Where("creator_id = ?", *creatorID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").Scopes(paginate(page, limit)).Find(&courses).Error
	return courses, total, err
}

func (r *CourseRepository) CreateLesson(ctx context.Context, lesson *model.Lesson) error {
	return r.DB.WithContext(ctx).Create(lesson).Error
}

func (r *CourseRepository) FindLessonByID(ctx context.Context, tx *gorm.DB, id uint) (*model.Lesson, error) {
	var lesson model.Lesson
	if err := pick(ctx, r.DB, tx).First(&lesson, id).Error; err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (r *CourseRepository) ListLessons(ctx context.Context, courseID uint) ([]model.Lesson, error) {
	var lessons []model.Lesson
	err := r.DB.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("position ASC, id ASC").
		Find(&lessons).Error
	return lessons, err
}

func (r *CourseRepository) MaxLessonPosition(ctx context.Context, courseID uint) (int, error) {
	var pos int
	err := r.DB.WithContext(ctx).Model(&model.Lesson{}).
		Where("course_id = ?", courseID).
		Select("COALESCE(MAX(position), 0)").
		Scan(&pos).Error
	return pos, err
}
