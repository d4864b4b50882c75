package service

import (
	"context"
	"edu_backend/internal/model"
	"edu_backend/internal/repository"
	"edu_backend/internal/util"
	"strings"
)

type CourseInput struct {
	Title           string `json:"title" binding:"required"`
	Description     string `json:"description"`
	RequireApproval bool   `json:"requireApproval"`
}

type LessonInput struct {
	Title    string `json:"title" binding:"required"`
	Content  string `json:"content"`
	Position *int   `json:"position"`
}

// CatalogService 课程与课时，活动挂载的父级
type CatalogService struct {
	CourseRepo *repository.CourseRepository
}

func NewCatalogService(courseRepo *repository.CourseRepository) *CatalogService {
	return &CatalogService{CourseRepo: courseRepo}
}

func (s *CatalogService) CreateCourse(ctx context.Context, creatorID uint, in CourseInput) (*model.Course, error) {
	course := &model.Course{
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		CreatorID:       creatorID,
		RequireApproval: in.RequireApproval,
	}
	if course.Title == "" {
		return nil, util.BadRequestError("标题不能为空")
	}
	if err := s.CourseRepo.CreateCourse(ctx, course); err != nil {
		return nil, util.Unexpected(err)
	}
	return course, nil
}

func (s *CatalogService) ListCourses(ctx context.Context, creatorID *uint, page, limit int) ([]model.Course, int64, error) {
	items, total, err := s.CourseRepo.ListCourses(ctx, creatorID, page, limit)
	if err != nil {
		return nil, 0, util.Unexpected(err)
	}
	return items, total, nil
}

// CreateLesson 未指定位置时追加到末尾
func (s *CatalogService) CreateLesson(ctx context.Context, caller Caller, courseID uint, in LessonInput) (*model.Lesson, error) {
	course, err := s.CourseRepo.FindCourseByID(ctx, nil, courseID)
	if err != nil {
		return nil, lookupErr(err, util.ErrCourseNotFound)
	}
	if !caller.owns(course.CreatorID) {
		return nil, util.ErrPermissionDenied
	}

	lesson := &model.Lesson{
		CourseID: courseID,
		Title:    strings.TrimSpace(in.Title),
		Content:  in.Content,
	}
	if lesson.Title == "" {
		return nil, util.BadRequestError("标题不能为空")
	}
	if in.Position != nil {
		lesson.Position = *in.Position
	} else {
		last, err := s.CourseRepo.MaxLessonPosition(ctx, courseID)
		if err != nil {
			return nil, util.Unexpected(err)
		}
		lesson.Position = last + 1
	}

	if err := s.CourseRepo.CreateLesson(ctx, lesson); err != nil {
		return nil, util.Unexpected(err)
	}
	return lesson, nil
}

func (s *CatalogService) ListLessons(ctx context.Context, courseID uint) ([]model.Lesson, error) {
	if _, err := s.CourseRepo.FindCourseByID(ctx, nil, courseID); err != nil {
		return nil, lookupErr(err, util.ErrCourseNotFound)
	}
	lessons, err := s.CourseRepo.ListLessons(ctx, courseID)
	if err != nil {
		return nil, util.Unexpected(err)
	}
	return lessons, nil
}
