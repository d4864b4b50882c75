package service

import (
	"bytes"
	"context"
	"edu_backend/internal/model"
	"edu_backend/internal/repository"
	"edu_backend/internal/util"
	"encoding/json"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newActivityService(t *testing.T, f *fixture) (*ActivityService, string) {
	t.Helper()
	root := t.TempDir()
	storage := &StorageService{Provider: &LocalStorageProvider{Root: root}, MaxUploadMB: 1}
	svc := NewActivityService(
		f.db,
		repository.NewActivityRepository(f.db),
		repository.NewAttemptRepository(f.db),
		repository.NewCourseRepository(f.db),
		repository.NewFileRepository(f.db),
		storage,
	)
	return svc, root
}

// fileHeaders 通过真实的 multipart 解析得到 FileHeader
func fileHeaders(t *testing.T, files map[string]string) []*multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["files"]
}

func quizInput(courseID uint) CreateActivityInput {
	return CreateActivityInput{
		Title:    "  第二单元测验 ",
		Type:     model.ActivityQuiz,
		CourseID: &courseID,
		Questions: []QuestionInput{
			{
				Question: "Go 的零值是？",
				Type:     model.QuestionMultipleChoice,
				Points:   5,
				Options: []OptionInput{
					{Text: "nil"},
					{Text: "视类型而定", IsCorrect: true},
				},
			},
			{
				Question: "map 是并发安全的",
				Type:     model.QuestionTrueFalse,
				Points:   2,
				Options:  []OptionInput{{Text: "true"}, {Text: "false", IsCorrect: true}},
			},
			{Question: "解释 defer 的执行顺序", Type: model.QuestionShortAnswer, Points: 3},
		},
	}
}

func TestActivityCreate(t *testing.T) {
	f := newFixture(t)
	svc, root := newActivityService(t, f)
	teacher := Caller{UserID: f.teacher.ID, Role: model.Teacher}

	files := fileHeaders(t, map[string]string{"notes.txt": "defer 后进先出"})
	a, err := svc.Create(context.Background(), teacher, quizInput(f.course.ID), files)
	require.NoError(t, err)

	assert.Equal(t, "第二单元测验", a.Title)
	assert.Equal(t, model.ActivityDraft, a.Status)
	assert.Equal(t, 1, a.MaxAttempts)
	assert.Equal(t, f.teacher.ID, a.CreatorID)
	require.Len(t, a.Questions, 3)
	assert.Equal(t, 0, a.Questions[0].Position)
	assert.Equal(t, 2, a.Questions[2].Position)
	require.Len(t, a.Questions[0].Options, 2)
	assert.True(t, a.Questions[0].Options[1].IsCorrect)

	require.Len(t, a.Materials, 1)
	require.NotNil(t, a.Materials[0].File)
	assert.Equal(t, "notes.txt", a.Materials[0].File.FileName)
	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(a.Materials[0].File.StoragePath)))
	assert.NoError(t, err)
}

func TestActivityCreate_Validation(t *testing.T) {
	f := newFixture(t)
	svc, _ := newActivityService(t, f)
	teacher := Caller{UserID: f.teacher.ID, Role: model.Teacher}
	lessonID := uint(1)
	missing := uint(404)

	tests := []struct {
		name   string
		mutate func(in *CreateActivityInput)
		kind   util.ErrorKind
	}{
		{"both parents", func(in *CreateActivityInput) { in.LessonID = &lessonID }, util.KindBadRequest},
		{"no parent", func(in *CreateActivityInput) { in.CourseID = nil }, util.KindBadRequest},
		{"unknown course", func(in *CreateActivityInput) { in.CourseID = &missing }, util.KindNotFound},
		{"unknown type", func(in *CreateActivityInput) { in.Type = "EXAM" }, util.KindBadRequest},
		{"zero attempts", func(in *CreateActivityInput) { in.MaxAttempts = intPtr(0) }, util.KindBadRequest},
		{"negative time limit", func(in *CreateActivityInput) { in.TimeLimitMinutes = intPtr(-5) }, util.KindBadRequest},
		{"single option", func(in *CreateActivityInput) {
			in.Questions[0].Options = in.Questions[0].Options[1:]
		}, util.KindBadRequest},
		{"two correct options", func(in *CreateActivityInput) {
			in.Questions[0].Options[0].IsCorrect = true
		}, util.KindBadRequest},
		{"true false text", func(in *CreateActivityInput) {
			in.Questions[1].Options = []OptionInput{{Text: "yes", IsCorrect: true}, {Text: "no"}}
		}, util.KindBadRequest},
		{"negative points", func(in *CreateActivityInput) { in.Questions[2].Points = -1 }, util.KindBadRequest},
		{"unknown question type", func(in *CreateActivityInput) { in.Questions[2].Type = "MATCHING" }, util.KindBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := quizInput(f.course.ID)
			tt.mutate(&in)
			_, err := svc.Create(context.Background(), teacher, in, nil)
			require.Error(t, err)
			assert.Equal(t, tt.kind, util.KindOf(err))
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&model.Activity{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestActivityUpdate_StatusTransitions(t *testing.T) {
	f := newFixture(t)
	svc, _ := newActivityService(t, f)
	ctx := context.Background()
	teacher := Caller{UserID: f.teacher.ID, Role: model.Teacher}

	a, err := svc.Create(ctx, teacher, quizInput(f.course.ID), nil)
	require.NoError(t, err)

	setStatus := func(s model.ActivityStatus) error {
		_, err := svc.Update(ctx, teacher, a.ID, UpdateActivityInput{Status: &s}, nil)
		return err
	}

	assert.Equal(t, util.KindInvalidState, util.KindOf(setStatus(model.ActivityArchived)))
	require.NoError(t, setStatus(model.ActivityPublished))
	require.NoError(t, setStatus(model.ActivityArchived))
	assert.Equal(t, util.KindInvalidState, util.KindOf(setStatus(model.ActivityPublished)))
	assert.Equal(t, util.KindBadRequest, util.KindOf(setStatus("CLOSED")))
}

func TestActivityUpdate_Ownership(t *testing.T) {
	f := newFixture(t)
	svc, _ := newActivityService(t, f)
	ctx := context.Background()

	a, err := svc.Create(ctx, Caller{UserID: f.teacher.ID, Role: model.Teacher}, quizInput(f.course.ID), nil)
	require.NoError(t, err)

	title := "改名"
	_, err = svc.Update(ctx, Caller{UserID: f.other.ID, Role: model.Teacher}, a.ID, UpdateActivityInput{Title: &title}, nil)
	assert.Equal(t, util.KindForbidden, util.KindOf(err))
	err = svc.Delete(ctx, Caller{UserID: f.other.ID, Role: model.Teacher}, a.ID)
	assert.Equal(t, util.KindForbidden, util.KindOf(err))

	updated, err := svc.Update(ctx, Caller{UserID: 999, Role: model.Admin}, a.ID, UpdateActivityInput{Title: &title}, nil)
	require.NoError(t, err)
	assert.Equal(t, "改名", updated.Title)

	_, err = svc.Update(ctx, Caller{UserID: f.teacher.ID, Role: model.Teacher}, 404, UpdateActivityInput{Title: &title}, nil)
	assert.Equal(t, util.KindNotFound, util.KindOf(err))
}

func TestActivityUpdate_SyncQuestions(t *testing.T) {
	f := newFixture(t)
	svc, _ := newActivityService(t, f)
	ctx := context.Background()
	teacher := Caller{UserID: f.teacher.ID, Role: model.Teacher}

	a, err := svc.Create(ctx, teacher, quizInput(f.course.ID), nil)
	require.NoError(t, err)
	first := a.Questions[0]

	// 保留并修改第一题（替换一个选项），删除其余两题，追加一道问答题
	questions := []QuestionInput{
		{
			ID:       first.ID,
			Question: "Go 中 int 的零值是？",
			Type:     model.QuestionMultipleChoice,
			Points:   4,
			Options: []OptionInput{
				{ID: first.Options[1].ID, Text: "0", IsCorrect: true},
				{Text: "-1"},
			},
		},
		{Question: "比较 channel 与 mutex", Type: model.QuestionEssay, Points: 10},
	}
	updated, err := svc.Update(ctx, teacher, a.ID, UpdateActivityInput{Questions: &questions}, nil)
	require.NoError(t, err)

	require.Len(t, updated.Questions, 2)
	assert.Equal(t, first.ID, updated.Questions[0].ID)
	assert.Equal(t, "Go 中 int 的零值是？", updated.Questions[0].Question)
	assert.Equal(t, 4, updated.Questions[0].Points)
	require.Len(t, updated.Questions[0].Options, 2)
	assert.Equal(t, first.Options[1].ID, updated.Questions[0].Options[0].ID)
	assert.Equal(t, "0", updated.Questions[0].Options[0].Text)
	assert.Equal(t, "-1", updated.Questions[0].Options[1].Text)
	assert.Equal(t, model.QuestionEssay, updated.Questions[1].Type)
	assert.Equal(t, 1, updated.Questions[1].Position)

	var options int64
	require.NoError(t, f.db.Model(&model.QuestionOption{}).Count(&options).Error)
	assert.EqualValues(t, 2, options)

	unknown := []QuestionInput{{ID: 9999, Question: "?", Type: model.QuestionEssay}}
	_, err = svc.Update(ctx, teacher, a.ID, UpdateActivityInput{Questions: &unknown}, nil)
	assert.Equal(t, util.KindNotFound, util.KindOf(err))

	foreignOption := []QuestionInput{{
		ID: first.ID, Question: "?", Type: model.QuestionMultipleChoice,
		Options: []OptionInput{{ID: 9999, Text: "a", IsCorrect: true}, {Text: "b"}},
	}}
	_, err = svc.Update(ctx, teacher, a.ID, UpdateActivityInput{Questions: &foreignOption}, nil)
	assert.Equal(t, util.KindNotFound, util.KindOf(err))
}

func TestActivityUpdate_AnsweredQuestionCannotBeRemoved(t *testing.T) {
	f := newFixture(t)
	svc, _ := newActivityService(t, f)
	ctx := context.Background()
	teacher := Caller{UserID: f.teacher.ID, Role: model.Teacher}

	a := f.createActivity(t, activityOpts{}, mcq(5, 0, "A", "B"), essay(5))
	started, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitAttempt(ctx, started.Attempt.ID, f.student.ID, []AnswerInput{
		{QuestionID: a.Questions[1].ID, Answer: "..."},
	})
	require.NoError(t, err)

	onlyFirst := []QuestionInput{{
		ID: a.Questions[0].ID, Question: "选择正确答案", Type: model.QuestionMultipleChoice, Points: 5,
		Options: []OptionInput{
			{ID: a.Questions[0].Options[0].ID, Text: "A", IsCorrect: true},
			{ID: a.Questions[0].Options[1].ID, Text: "B"},
		},
	}}
	_, err = svc.Update(ctx, teacher, a.ID, UpdateActivityInput{Questions: &onlyFirst}, nil)
	require.Error(t, err)
	assert.Equal(t, util.KindConflict, util.KindOf(err))

	questions, err := svc.ActivityRepo.FindQuestions(ctx, nil, a.ID)
	require.NoError(t, err)
	assert.Len(t, questions, 2)
}

func TestActivityUpdate_Materials(t *testing.T) {
	f := newFixture(t)
	svc, root := newActivityService(t, f)
	ctx := context.Background()
	teacher := Caller{UserID: f.teacher.ID, Role: model.Teacher}

	a, err := svc.Create(ctx, teacher, quizInput(f.course.ID), fileHeaders(t, map[string]string{"a.txt": "first"}))
	require.NoError(t, err)
	require.Len(t, a.Materials, 1)
	old := a.Materials[0]

	updated, err := svc.Update(ctx, teacher, a.ID, UpdateActivityInput{RemoveMaterialIDs: []uint{old.ID}},
		fileHeaders(t, map[string]string{"b.txt": "second"}))
	require.NoError(t, err)
	require.Len(t, updated.Materials, 1)
	assert.Equal(t, "b.txt", updated.Materials[0].File.FileName)

	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(old.File.StoragePath)))
	assert.True(t, os.IsNotExist(err))

	_, err = svc.Update(ctx, teacher, a.ID, UpdateActivityInput{RemoveMaterialIDs: []uint{old.ID}}, nil)
	assert.Equal(t, util.KindNotFound, util.KindOf(err))
}

func TestActivityDelete(t *testing.T) {
	f := newFixture(t)
	svc, _ := newActivityService(t, f)
	ctx := context.Background()
	teacher := Caller{UserID: f.teacher.ID, Role: model.Teacher}

	a, err := svc.Create(ctx, teacher, quizInput(f.course.ID), nil)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, teacher, a.ID))

	_, err = svc.TeacherDetail(ctx, a.ID)
	assert.Equal(t, util.KindNotFound, util.KindOf(err))
	assert.Equal(t, util.KindNotFound, util.KindOf(svc.Delete(ctx, teacher, a.ID)))
}

func TestActivityStudentViews(t *testing.T) {
	f := newFixture(t)
	svc, _ := newActivityService(t, f)
	ctx := context.Background()

	published := f.createActivity(t, activityOpts{maxAttempts: 2}, mcq(5, 0, "A", "B"))
	draft := f.createActivity(t, activityOpts{status: model.ActivityDraft}, essay(5))

	_, err := f.svc.StartAttempt(ctx, published.ID, f.student.ID)
	require.NoError(t, err)

	views, total, err := svc.StudentList(ctx, repository.ActivityFilter{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, views, 1)
	assert.Equal(t, published.ID, views[0].ID)

	detail, err := svc.StudentDetail(ctx, published.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.QuestionCount)
	assert.Equal(t, 1, detail.AttemptCount)
	raw, err := json.Marshal(detail)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "isCorrect")

	otherView, err := svc.StudentDetail(ctx, published.ID, f.other.ID)
	require.NoError(t, err)
	assert.Zero(t, otherView.AttemptCount)

	_, err = svc.StudentDetail(ctx, draft.ID, f.student.ID)
	assert.Equal(t, util.KindNotFound, util.KindOf(err))
}
