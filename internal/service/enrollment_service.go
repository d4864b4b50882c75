package service

import (
	"context"
	"edu_backend/internal/model"
	"edu_backend/internal/repository"
	"edu_backend/internal/util"
	"edu_backend/pkg/logger"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type EnrollInput struct {
	// UserID 教师/管理员代学生选课时填写，学生自己选课留空
	UserID *uint `json:"userId"`
}

type EnrollmentStatusInput struct {
	Status model.EnrollmentStatus `json:"status" binding:"required"`
}

// EnrollmentService 选课：无需审核的课程直接通过，需要审核的由课程创建者处理
type EnrollmentService struct {
	DB             *gorm.DB
	EnrollmentRepo *repository.EnrollmentRepository
	CourseRepo     *repository.CourseRepository
	Notifier       Notifier
}

func NewEnrollmentService(
	db *gorm.DB,
	enrollmentRepo *repository.EnrollmentRepository,
	courseRepo *repository.CourseRepository,
	notifier Notifier,
) *EnrollmentService {
	return &EnrollmentService{
		DB:             db,
		EnrollmentRepo: enrollmentRepo,
		CourseRepo:     courseRepo,
		Notifier:       notifier,
	}
}

func (s *EnrollmentService) Enroll(ctx context.Context, caller Caller, courseID uint, in EnrollInput) (*model.Enrollment, error) {
	var (
		enrollment *model.Enrollment
		course     *model.Course
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		course, err = s.CourseRepo.FindCourseByID(ctx, tx, courseID)
		if err != nil {
			return lookupErr(err, util.ErrCourseNotFound)
		}

		userID := caller.UserID
		if in.UserID != nil && *in.UserID != caller.UserID {
			if !caller.owns(course.CreatorID) {
				return util.ErrPermissionDenied
			}
			userID = *in.UserID
		}

		enrolled, err := s.EnrollmentRepo.Exists(ctx, tx, userID, courseID)
		if err != nil {
			return util.Unexpected(err)
		}
		if enrolled {
			return util.ErrAlreadyEnrolled
		}

		enrollment = &model.Enrollment{UserID: userID, CourseID: courseID, Status: model.EnrollmentPending}
		// 无需审核或由课程创建者代选时直接通过
		if !course.RequireApproval || userID != caller.UserID {
			enrollment.Status = model.EnrollmentAccepted
		}
		if err := s.EnrollmentRepo.Create(ctx, tx, enrollment); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return util.ErrAlreadyEnrolled
			}
			return util.Unexpected(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("course enrollment created",
		zap.Uint("courseId", courseID),
		zap.Uint("userId", enrollment.UserID),
		zap.String("status", string(enrollment.Status)),
	)

	if enrollment.Status == model.EnrollmentPending {
		s.notify(ctx, NotifyInput{
			UserID:   course.CreatorID,
			Type:     model.NotifyEnrollmentRequested,
			Title:    "有新的选课申请",
			Message:  fmt.Sprintf("「%s」收到一份选课申请", course.Title),
			CourseID: &course.ID,
			Data:     map[string]interface{}{"enrollmentId": enrollment.ID, "userId": enrollment.UserID},
		})
	}
	return enrollment, nil
}

// List 学生只能看到自己的选课记录
func (s *EnrollmentService) List(ctx context.Context, caller Caller, filter repository.EnrollmentFilter, page, limit int) ([]model.Enrollment, int64, error) {
	if caller.Role == model.Student {
		filter.UserID = &caller.UserID
	}
	items, total, err := s.EnrollmentRepo.List(ctx, filter, page, limit)
	if err != nil {
		return nil, 0, util.Unexpected(err)
	}
	return items, total, nil
}

// Review 课程创建者修改选课状态（通过/拒绝/退回待审）
func (s *EnrollmentService) Review(ctx context.Context, caller Caller, courseID, userID uint, in EnrollmentStatusInput) (*model.Enrollment, error) {
	if !in.Status.Valid() {
		return nil, util.BadRequestError("未知选课状态 %s", in.Status)
	}

	var (
		enrollment *model.Enrollment
		course     *model.Course
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		course, err = s.CourseRepo.FindCourseByID(ctx, tx, courseID)
		if err != nil {
			return lookupErr(err, util.ErrCourseNotFound)
		}
		if !caller.owns(course.CreatorID) {
			return util.ErrPermissionDenied
		}

		enrollment, err = s.EnrollmentRepo.Find(ctx, tx, userID, courseID)
		if err != nil {
			return lookupErr(err, util.ErrEnrollmentNotFound)
		}
		if err := s.EnrollmentRepo.UpdateStatus(ctx, tx, enrollment.ID, in.Status); err != nil {
			return util.Unexpected(err)
		}
		enrollment.Status = in.Status
		return nil
	})
	if err != nil {
		return nil, err
	}

	if in.Status != model.EnrollmentPending {
		s.notify(ctx, NotifyInput{
			UserID:   userID,
			Type:     model.NotifyEnrollmentReviewed,
			Title:    "选课申请已处理",
			Message:  fmt.Sprintf("你对「%s」的选课申请状态为 %s", course.Title, in.Status),
			CourseID: &course.ID,
			Data:     map[string]interface{}{"enrollmentId": enrollment.ID, "status": in.Status},
		})
	}
	return enrollment, nil
}

// Reapply 被拒绝的学生重新提交申请
func (s *EnrollmentService) Reapply(ctx context.Context, caller Caller, courseID uint) (*model.Enrollment, error) {
	var enrollment *model.Enrollment
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		enrollment, err = s.EnrollmentRepo.Find(ctx, tx, caller.UserID, courseID)
		if err != nil {
			return lookupErr(err, util.ErrEnrollmentNotFound)
		}
		if enrollment.Status != model.EnrollmentRejected {
			return util.InvalidStateError("只有被拒绝的选课可以重新申请")
		}
		if err := s.EnrollmentRepo.UpdateStatus(ctx, tx, enrollment.ID, model.EnrollmentPending); err != nil {
			return util.Unexpected(err)
		}
		enrollment.Status = model.EnrollmentPending
		return nil
	})
	if err != nil {
		return nil, err
	}
	return enrollment, nil
}

// Remove 学生退课，或课程创建者移除学生
func (s *EnrollmentService) Remove(ctx context.Context, caller Caller, courseID, userID uint) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		course, err := s.CourseRepo.FindCourseByID(ctx, tx, courseID)
		if err != nil {
			return lookupErr(err, util.ErrCourseNotFound)
		}
		if userID != caller.UserID && !caller.owns(course.CreatorID) {
			return util.ErrPermissionDenied
		}

		enrollment, err := s.EnrollmentRepo.Find(ctx, tx, userID, courseID)
		if err != nil {
			return lookupErr(err, util.ErrEnrollmentNotFound)
		}
		if err := s.EnrollmentRepo.Delete(ctx, tx, enrollment.ID); err != nil {
			return util.Unexpected(err)
		}
		return nil
	})
}

func (s *EnrollmentService) notify(ctx context.Context, in NotifyInput) {
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
