package service

import (
	"context"
	"edu_backend/internal/model"
	"edu_backend/internal/repository"
	"edu_backend/internal/util"
	"edu_backend/pkg/logger"
	"mime/multipart"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type OptionInput struct {
	ID        uint   `json:"id"`
	Text      string `json:"text" binding:"required"`
	IsCorrect bool   `json:"isCorrect"`
}

type QuestionInput struct {
	ID       uint               `json:"id"`
	Question string             `json:"question" binding:"required"`
	Type     model.QuestionType `json:"type" binding:"required"`
	Points   int                `json:"points" binding:"min=0"`
	Options  []OptionInput      `json:"options" binding:"dive"`
}

type CreateActivityInput struct {
	Title            string             `json:"title" binding:"required"`
	Description      string             `json:"description"`
	Type             model.ActivityType `json:"type" binding:"required"`
	TimeLimitMinutes *int               `json:"timeLimitMinutes"`
	DueDate          *time.Time         `json:"dueDate"`
	MaxAttempts      *int               `json:"maxAttempts"`
	PassScore        *float64           `json:"passScore"`
	ShuffleQuestions bool               `json:"shuffleQuestions"`
	CourseID         *uint              `json:"courseId"`
	LessonID         *uint              `json:"lessonId"`
	Questions        []QuestionInput    `json:"questions" binding:"dive"`
}

// UpdateActivityInput 字段为 nil 表示不修改；Questions 非 nil 时整体同步题目
type UpdateActivityInput struct {
	Title             *string               `json:"title"`
	Description       *string               `json:"description"`
	Type              *model.ActivityType   `json:"type"`
	Status            *model.ActivityStatus `json:"status"`
	TimeLimitMinutes  *int                  `json:"timeLimitMinutes"`
	DueDate           *time.Time            `json:"dueDate"`
	MaxAttempts       *int                  `json:"maxAttempts"`
	PassScore         *float64              `json:"passScore"`
	ShuffleQuestions  *bool                 `json:"shuffleQuestions"`
	CourseID          *uint                 `json:"courseId"`
	LessonID          *uint                 `json:"lessonId"`
	Questions         *[]QuestionInput      `json:"questions"`
	RemoveMaterialIDs []uint                `json:"removeMaterialIds"`
}

// Caller 发起请求的用户
type Caller struct {
	UserID uint
	Role   model.UserRole
}

func (c Caller) owns(creatorID uint) bool {
	return c.Role == model.Admin || c.UserID == creatorID
}

type ActivityService struct {
	DB           *gorm.DB
	ActivityRepo *repository.ActivityRepository
	AttemptRepo  *repository.AttemptRepository
	CourseRepo   *repository.CourseRepository
	FileRepo     *repository.FileRepository
	Storage      *StorageService
}

func NewActivityService(
	db *gorm.DB,
	activityRepo *repository.ActivityRepository,
	attemptRepo *repository.AttemptRepository,
	courseRepo *repository.CourseRepository,
	fileRepo *repository.FileRepository,
	storage *StorageService,
) *ActivityService {
	return &ActivityService{
		DB:           db,
		ActivityRepo: activityRepo,
		AttemptRepo:  attemptRepo,
		CourseRepo:   courseRepo,
		FileRepo:     fileRepo,
		Storage:      storage,
	}
}

func validateParent(courseID, lessonID *uint) error {
	if (courseID == nil) == (lessonID == nil) {
		return util.BadRequestError("活动必须且只能属于课程或课时之一")
	}
	return nil
}

func validateQuestions(questions []QuestionInput) error {
	for i, q := range questions {
		if !q.Type.Valid() {
			return util.BadRequestError("questions[%d]: 未知题型 %s", i, q.Type)
		}
		if q.Points < 0 {
			return util.BadRequestError("questions[%d]: 分值不能为负", i)
		}

		correct := 0
		var correctText string
		for _, o := range q.Options {
			if o.IsCorrect {
				correct++
				correctText = o.Text
			}
		}

		switch q.Type {
		case model.QuestionMultipleChoice:
			if len(q.Options) < 2 {
				return util.BadRequestError("questions[%d]: 单选题至少需要两个选项", i)
			}
			if correct != 1 {
				return util.BadRequestError("questions[%d]: 单选题必须有且仅有一个正确选项", i)
			}
		case model.QuestionTrueFalse:
			if correct != 1 {
				return util.BadRequestError("questions[%d]: 判断题必须有且仅有一个正确选项", i)
			}
			if t := normalizeBool(correctText); t != "true" && t != "false" {
				return util.BadRequestError("questions[%d]: 判断题答案必须是 \"true\" 或 \"false\"", i)
			}
		}
	}
	return nil
}

func (s *ActivityService) checkParent(ctx context.Context, tx *gorm.DB, courseID, lessonID *uint) error {
	if courseID != nil {
		if _, err := s.CourseRepo.FindCourseByID(ctx, tx, *courseID); err != nil {
			return lookupErr(err, util.ErrCourseNotFound)
		}
	}
	if lessonID != nil {
		if _, err := s.CourseRepo.FindLessonByID(ctx, tx, *lessonID); err != nil {
			return lookupErr(err, util.ErrLessonNotFound)
		}
	}
	return nil
}

func buildQuestion(activityID uint, position int, in QuestionInput) model.ActivityQuestion {
	q := model.ActivityQuestion{
		ActivityID: activityID,
		Question:   in.Question,
		Type:       in.Type,
		Points:     in.Points,
		Position:   position,
	}
	for _, o := range in.Options {
		q.Options = append(q.Options, model.QuestionOption{Text: o.Text, IsCorrect: o.IsCorrect})
	}
	return q
}

// uploadAll 任一文件失败时清理已上传的对象
func (s *ActivityService) uploadAll(ctx context.Context, files []*multipart.FileHeader, uploaderID uint) ([]*model.File, error) {
	uploaded := make([]*model.File, 0, len(files))
	for _, fh := range files {
		f, err := s.Storage.SaveMaterial(ctx, fh, uploaderID)
		if err != nil {
			s.discard(ctx, uploaded)
			return nil, err
		}
		uploaded = append(uploaded, f)
	}
	return uploaded, nil
}

func (s *ActivityService) discard(ctx context.Context, files []*model.File) {
	for _, f := range files {
		s.Storage.Remove(ctx, f.StoragePath)
	}
}

func (s *ActivityService) attachFiles(ctx context.Context, tx *gorm.DB, activityID uint, files []*model.File) error {
	for _, f := range files {
		if err := s.FileRepo.Create(ctx, tx, f); err != nil {
			return util.Unexpected(err)
		}
		if err := s.ActivityRepo.AddMaterial(ctx, tx, &model.ActivityMaterial{ActivityID: activityID, FileID: f.ID}); err != nil {
			return util.Unexpected(err)
		}
	}
	return nil
}

// Create 新建活动（草稿），附件上传后若数据库事务失败会从存储中删除
func (s *ActivityService) Create(ctx context.Context, caller Caller, in CreateActivityInput, files []*multipart.FileHeader) (*model.Activity, error) {
	if !in.Type.Valid() {
		return nil, util.BadRequestError("未知活动类型 %s", in.Type)
	}
	if err := validateParent(in.CourseID, in.LessonID); err != nil {
		return nil, err
	}
	maxAttempts := 1
	if in.MaxAttempts != nil {
		maxAttempts = *in.MaxAttempts
	}
	if maxAttempts < 1 {
		return nil, util.BadRequestError("maxAttempts 至少为 1")
	}
	if in.TimeLimitMinutes != nil && *in.TimeLimitMinutes < 0 {
		return nil, util.BadRequestError("timeLimitMinutes 不能为负")
	}
	if err := validateQuestions(in.Questions); err != nil {
		return nil, err
	}

	uploaded, err := s.uploadAll(ctx, files, caller.UserID)
	if err != nil {
		return nil, err
	}

	activity := &model.Activity{
		Title:            strings.TrimSpace(in.Title),
		Description:      in.Description,
		Type:             in.Type,
		Status:           model.ActivityDraft,
		TimeLimitMinutes: in.TimeLimitMinutes,
		DueDate:          in.DueDate,
		MaxAttempts:      maxAttempts,
		PassScore:        in.PassScore,
		ShuffleQuestions: in.ShuffleQuestions,
		CreatorID:        caller.UserID,
		CourseID:         in.CourseID,
		LessonID:         in.LessonID,
	}
	for i, q := range in.Questions {
		activity.Questions = append(activity.Questions, buildQuestion(0, i, q))
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkParent(ctx, tx, in.CourseID, in.LessonID); err != nil {
			return err
		}
		if err := s.ActivityRepo.Create(ctx, tx, activity); err != nil {
			return util.Unexpected(err)
		}
		return s.attachFiles(ctx, tx, activity.ID, uploaded)
	})
	if err != nil {
		s.discard(ctx, uploaded)
		if util.KindOf(err) == util.KindUnexpected {
			logger.Log.Error("create activity failed", zap.Uint("creatorId", caller.UserID), zap.Error(err))
		}
		return nil, err
	}

	logger.Log.Info("activity created", zap.Uint("activityId", activity.ID), zap.Uint("creatorId", caller.UserID))
	return s.TeacherDetail(ctx, activity.ID)
}

func statusTransitionAllowed(from, to model.ActivityStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case model.ActivityDraft:
		return to == model.ActivityPublished
	case model.ActivityPublished:
		return to == model.ActivityDraft || to == model.ActivityArchived
	}
	return false
}

// Update 修改活动字段、同步题目与选项、增删附件
func (s *ActivityService) Update(ctx context.Context, caller Caller, id uint, in UpdateActivityInput, files []*multipart.FileHeader) (*model.Activity, error) {
	existing, err := s.ActivityRepo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, lookupErr(err, util.ErrActivityNotFound)
	}
	if !caller.owns(existing.CreatorID) {
		return nil, util.ErrPermissionDenied
	}

	fields := map[string]interface{}{}
	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return nil, util.BadRequestError("标题不能为空")
		}
		fields["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		fields["description"] = *in.Description
	}
	if in.Type != nil {
		if !in.Type.Valid() {
			return nil, util.BadRequestError("未知活动类型 %s", *in.Type)
		}
		fields["type"] = *in.Type
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, util.BadRequestError("未知活动状态 %s", *in.Status)
		}
		if !statusTransitionAllowed(existing.Status, *in.Status) {
			return nil, util.InvalidStateError("活动状态不能从 %s 变更为 %s", existing.Status, *in.Status)
		}
		fields["status"] = *in.Status
	}
	if in.TimeLimitMinutes != nil {
		if *in.TimeLimitMinutes < 0 {
			return nil, util.BadRequestError("timeLimitMinutes 不能为负")
		}
		fields["time_limit_minutes"] = *in.TimeLimitMinutes
	}
	if in.DueDate != nil {
		fields["due_date"] = *in.DueDate
	}
	if in.MaxAttempts != nil {
		if *in.MaxAttempts < 1 {
			return nil, util.BadRequestError("maxAttempts 至少为 1")
		}
		fields["max_attempts"] = *in.MaxAttempts
	}
	if in.PassScore != nil {
		fields["pass_score"] = *in.PassScore
	}
	if in.ShuffleQuestions != nil {
		fields["shuffle_questions"] = *in.ShuffleQuestions
	}

	courseID, lessonID := existing.CourseID, existing.LessonID
	parentChanged := in.CourseID != nil || in.LessonID != nil
	if parentChanged {
		courseID, lessonID = in.CourseID, in.LessonID
		if err := validateParent(courseID, lessonID); err != nil {
			return nil, err
		}
		fields["course_id"] = courseID
		fields["lesson_id"] = lessonID
	}

	if in.Questions != nil {
		if err := validateQuestions(*in.Questions); err != nil {
			return nil, err
		}
	}

	uploaded, err := s.uploadAll(ctx, files, caller.UserID)
	if err != nil {
		return nil, err
	}

	var removedObjects []string
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if parentChanged {
			if err := s.checkParent(ctx, tx, courseID, lessonID); err != nil {
				return err
			}
		}
		if err := s.ActivityRepo.UpdateFields(ctx, tx, id, fields); err != nil {
			return util.Unexpected(err)
		}

		if in.Questions != nil {
			if err := s.syncQuestions(ctx, tx, id, *in.Questions); err != nil {
				return err
			}
		}

		if len(in.RemoveMaterialIDs) > 0 {
			materials, err := s.ActivityRepo.FindMaterials(ctx, tx, id, in.RemoveMaterialIDs)
			if err != nil {
				return util.Unexpected(err)
			}
			if len(materials) != len(in.RemoveMaterialIDs) {
				return util.NotFoundError("附件不存在")
			}
			for _, m := range materials {
				if err := s.ActivityRepo.DeleteMaterial(ctx, tx, m.ID); err != nil {
					return util.Unexpected(err)
				}
				if m.File != nil {
					if err := s.FileRepo.Delete(ctx, tx, m.FileID); err != nil {
						return util.Unexpected(err)
					}
					removedObjects = append(removedObjects, m.File.StoragePath)
				}
			}
		}

		return s.attachFiles(ctx, tx, id, uploaded)
	})
	if err != nil {
		s.discard(ctx, uploaded)
		if util.KindOf(err) == util.KindUnexpected {
			logger.Log.Error("update activity failed", zap.Uint("activityId", id), zap.Error(err))
		}
		return nil, err
	}

	for _, obj := range removedObjects {
		s.Storage.Remove(ctx, obj)
	}

	logger.Log.Info("activity updated", zap.Uint("activityId", id), zap.Uint("userId", caller.UserID))
	return s.TeacherDetail(ctx, id)
}

// syncQuestions 带 id 的题目更新，不带 id 的新建，未出现的删除；已有作答的题目不能删除
func (s *ActivityService) syncQuestions(ctx context.Context, tx *gorm.DB, activityID uint, inputs []QuestionInput) error {
	current, err := s.ActivityRepo.FindQuestions(ctx, tx, activityID)
	if err != nil {
		return util.Unexpected(err)
	}
	byID := make(map[uint]*model.ActivityQuestion, len(current))
	for i := range current {
		byID[current[i].ID] = &current[i]
	}

	keep := make([]uint, 0, len(inputs))
	kept := make(map[uint]bool, len(inputs))
	for _, q := range inputs {
		if q.ID == 0 {
			continue
		}
		if _, ok := byID[q.ID]; !ok {
			return util.NotFoundError("题目 %d 不存在", q.ID)
		}
		keep = append(keep, q.ID)
		kept[q.ID] = true
	}

	var removed []uint
	for _, q := range current {
		if !kept[q.ID] {
			removed = append(removed, q.ID)
		}
	}
	answered, err := s.ActivityRepo.AnsweredQuestionIDs(ctx, tx, removed)
	if err != nil {
		return util.Unexpected(err)
	}
	if len(answered) > 0 {
		return util.ConflictError("题目 %d 已有学生作答，不能删除", answered[0])
	}

	if err := s.ActivityRepo.DeleteQuestionsExcept(ctx, tx, activityID, keep); err != nil {
		return util.Unexpected(err)
	}

	for pos, in := range inputs {
		if in.ID == 0 {
			q := buildQuestion(activityID, pos, in)
			if err := s.ActivityRepo.CreateQuestion(ctx, tx, &q); err != nil {
				return util.Unexpected(err)
			}
			continue
		}

		q := buildQuestion(activityID, pos, in)
		q.ID = in.ID
		if err := s.ActivityRepo.UpdateQuestion(ctx, tx, &q); err != nil {
			return util.Unexpected(err)
		}
		if err := s.syncOptions(ctx, tx, byID[in.ID], in.Options); err != nil {
			return err
		}
	}
	return nil
}

func (s *ActivityService) syncOptions(ctx context.Context, tx *gorm.DB, q *model.ActivityQuestion, inputs []OptionInput) error {
	owned := make(map[uint]bool, len(q.Options))
	for _, o := range q.Options {
		owned[o.ID] = true
	}

	keep := make([]uint, 0, len(inputs))
	for _, o := range inputs {
		if o.ID == 0 {
			continue
		}
		if !owned[o.ID] {
			return util.NotFoundError("选项 %d 不存在", o.ID)
		}
		keep = append(keep, o.ID)
	}

	if err := s.ActivityRepo.DeleteOptionsExcept(ctx, tx, q.ID, keep); err != nil {
		return util.Unexpected(err)
	}

	for _, in := range inputs {
		opt := model.QuestionOption{QuestionID: q.ID, Text: in.Text, IsCorrect: in.IsCorrect}
		if in.ID == 0 {
			if err := s.ActivityRepo.CreateOption(ctx, tx, &opt); err != nil {
				return util.Unexpected(err)
			}
			continue
		}
		opt.ID = in.ID
		if err := s.ActivityRepo.UpdateOption(ctx, tx, &opt); err != nil {
			return util.Unexpected(err)
		}
	}
	return nil
}

func (s *ActivityService) Delete(ctx context.Context, caller Caller, id uint) error {
	existing, err := s.ActivityRepo.FindByID(ctx, nil, id)
	if err != nil {
		return lookupErr(err, util.ErrActivityNotFound)
	}
	if !caller.owns(existing.CreatorID) {
		return util.ErrPermissionDenied
	}

	rows, err := s.ActivityRepo.Delete(ctx, nil, id)
	if err != nil {
		return util.Unexpected(err)
	}
	if rows == 0 {
		return util.ErrActivityNotFound
	}
	logger.Log.Info("activity deleted", zap.Uint("activityId", id), zap.Uint("userId", caller.UserID))
	return nil
}

func (s *ActivityService) List(ctx context.Context, filter repository.ActivityFilter) ([]model.Activity, int64, error) {
	items, total, err := s.ActivityRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, util.Unexpected(err)
	}
	return items, total, nil
}

// TeacherDetail 教师视角，包含正确答案
func (s *ActivityService) TeacherDetail(ctx context.Context, id uint) (*model.Activity, error) {
	activity, err := s.ActivityRepo.FindDetail(ctx, nil, id)
	if err != nil {
		return nil, lookupErr(err, util.ErrActivityNotFound)
	}
	return activity, nil
}

// StudentList 只列出已发布的活动
func (s *ActivityService) StudentList(ctx context.Context, filter repository.ActivityFilter) ([]ActivityView, int64, error) {
	filter.Status = model.ActivityPublished
	filter.CreatorID = nil
	items, total, err := s.ActivityRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, util.Unexpected(err)
	}
	views := make([]ActivityView, 0, len(items))
	for i := range items {
		views = append(views, toActivityView(&items[i]))
	}
	return views, total, nil
}

// StudentDetail 已发布活动的学生视角，附带本人的作答记录
func (s *ActivityService) StudentDetail(ctx context.Context, id, studentID uint) (*StudentActivityView, error) {
	activity, err := s.ActivityRepo.FindDetail(ctx, nil, id)
	if err != nil {
		return nil, lookupErr(err, util.ErrActivityNotFound)
	}
	if activity.Status != model.ActivityPublished {
		return nil, util.ErrActivityNotFound
	}

	attempts, err := s.AttemptRepo.ListByStudentAndActivity(ctx, id, studentID)
	if err != nil {
		return nil, util.Unexpected(err)
	}

	return &StudentActivityView{
		ActivityView:  toActivityView(activity),
		Questions:     studentQuestions(activity.Questions),
		Materials:     activity.Materials,
		QuestionCount: len(activity.Questions),
		AttemptCount:  len(attempts),
		Attempts:      attempts,
	}, nil
}
