package repository

import (
	"context"
	"edu_backend/internal/model"

	"gorm.io/gorm"
)

type EnrollmentFilter struct {
	UserID   *uint
	CourseID *uint
	Status   *model.EnrollmentStatus
	// Ascending 按选课时间升序，默认降序
	Ascending bool
}

type EnrollmentRepository struct {
	DB *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: db}
}

func (r *EnrollmentRepository) Create(ctx context.Context, tx *gorm.DB, e *model.Enrollment) error {
	return pick(ctx, r.DB, tx).Create(e).Error
}

func (r *EnrollmentRepository) Find(ctx context.Context, tx *gorm.DB, userID, courseID uint) (*model.Enrollment, error) {
	var e model.Enrollment
	err := pick(ctx, r.DB, tx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EnrollmentRepository) Exists(ctx context.Context, tx *gorm.DB, userID, courseID uint) (bool, error) {
	var count int64
	err := pick(ctx, r.DB, tx).Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&count).Error
	return count > 0, err
}

func (r *EnrollmentRepository) List(ctx context.Context, filter EnrollmentFilter, page, limit int) ([]model.Enrollment, int64, error) {
	var items []model.Enrollment
	var total int64

	query := r.DB.WithContext(ctx).Model(&model.Enrollment{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.CourseID != nil {
		query = query.Where("course_id = ?", *filter.CourseID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at DESC, id DESC"
	if filter.Ascending {
		order = "created_at ASC, id ASC"
	}
	err := query.Order(order).
		Preload("Course").
		Preload("User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "name", "email", "role")
		}).
		Scopes(paginate(page, limit)).
		Find(&items).Error
	return items, total, err
}

func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status model.EnrollmentStatus) error {
	return pick(ctx, r.DB, tx).Model(&model.Enrollment{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *EnrollmentRepository) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	return pick(ctx, r.DB, tx).Delete(&model.Enrollment{}, id).Error
}
