package service

import (
	"context"
	"edu_backend/internal/model"
	"edu_backend/internal/repository"
	"edu_backend/internal/util"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartAttempt_HidesAnswerKey(t *testing.T) {
	f := newFixture(t)
	a := f.createActivity(t, activityOpts{}, mcq(5, 1, "A", "B", "C"), trueFalse(2, true))

	started, err := f.svc.StartAttempt(context.Background(), a.ID, f.student.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, started.Attempt.AttemptNumber)
	assert.Nil(t, started.Attempt.CompletedAt)
	assert.Equal(t, model.AttemptInProgress, started.Attempt.State())
	require.Len(t, started.Questions, 2)
	assert.Len(t, started.Questions[0].Options, 3)
	assert.Equal(t, a.ID, started.Activity.ID)

	raw, err := json.Marshal(started)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "isCorrect")
}

func TestStartAttempt_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartAttempt(ctx, 9999, f.student.ID)
	assert.Equal(t, util.KindNotFound, util.KindOf(err))

	draft := f.createActivity(t, activityOpts{status: model.ActivityDraft}, mcq(1, 0, "A", "B"))
	_, err = f.svc.StartAttempt(ctx, draft.ID, f.student.ID)
	assert.Equal(t, util.KindInvalidState, util.KindOf(err))

	archived := f.createActivity(t, activityOpts{status: model.ActivityArchived}, mcq(1, 0, "A", "B"))
	_, err = f.svc.StartAttempt(ctx, archived.ID, f.student.ID)
	assert.Equal(t, util.KindInvalidState, util.KindOf(err))
}

func TestStartAttempt_QuotaExceeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, activityOpts{maxAttempts: 1}, mcq(5, 0, "A", "B"))

	started, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitAttempt(ctx, started.Attempt.ID, f.student.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.Error(t, err)
	assert.Equal(t, util.KindQuotaExceeded, util.KindOf(err))
	assert.Contains(t, err.Error(), "已达到最大作答次数 (1)")

	// 其他学生不受影响
	_, err = f.svc.StartAttempt(ctx, a.ID, f.other.ID)
	assert.NoError(t, err)
}

func TestStartAttempt_SingleInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, activityOpts{maxAttempts: 3}, mcq(5, 0, "A", "B"))

	first, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)

	_, err = f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	assert.Equal(t, util.KindConflict, util.KindOf(err))

	_, err = f.svc.SubmitAttempt(ctx, first.Attempt.ID, f.student.ID, nil)
	require.NoError(t, err)

	second, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Attempt.AttemptNumber)
}

func TestStartAttempt_ConcurrentStartsCreateOneAttempt(t *testing.T) {
	f := newFixture(t)
	a := f.createActivity(t, activityOpts{maxAttempts: 5}, mcq(5, 0, "A", "B"))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.StartAttempt(context.Background(), a.ID, f.student.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if util.KindOf(err) == util.KindConflict {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)

	var count int64
	require.NoError(t, f.db.Model(&model.ActivityAttempt{}).Where("activity_id = ?", a.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSubmitAttempt_MultipleChoiceScoring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, activityOpts{maxAttempts: 2}, mcq(5, 1, "A", "B", "C"))
	q := a.Questions[0]

	first, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)
	res, err := f.svc.SubmitAttempt(ctx, first.Attempt.ID, f.student.ID, []AnswerInput{
		{QuestionID: q.ID, SelectedOptionID: q.Options[1].ID},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Attempt)
	assert.Equal(t, 5.0, *res.Attempt.Score)
	assert.Equal(t, model.GradingGraded, *res.Attempt.GradingStatus)
	require.Len(t, res.Attempt.Answers, 1)
	assert.True(t, *res.Attempt.Answers[0].IsCorrect)
	assert.Equal(t, 5.0, res.Attempt.Answers[0].Score)

	second, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)
	// id 以字符串形式提交也能解析
	res, err = f.svc.SubmitAttempt(ctx, second.Attempt.ID, f.student.ID, []AnswerInput{
		{QuestionID: strconv.FormatUint(uint64(q.ID), 10), SelectedOptionID: strconv.FormatUint(uint64(q.Options[0].ID), 10)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, *res.Attempt.Score)
	assert.False(t, *res.Attempt.Answers[0].IsCorrect)

	assert.Empty(t, f.notifier.all())
}

func TestSubmitAttempt_TrueFalseIgnoresCaseAndSpaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, activityOpts{}, trueFalse(3, true))

	started, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)
	res, err := f.svc.SubmitAttempt(ctx, started.Attempt.ID, f.student.ID, []AnswerInput{
		{QuestionID: a.Questions[0].ID, Answer: "  TRUE "},
	})
	require.NoError(t, err)
	assert.Equal(t, 3.0, *res.Attempt.Score)
}

func TestSubmitAttempt_MixedQuizNeedsManualGrading(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, activityOpts{}, mcq(2, 0, "A", "B"), essay(8))
	choice, open := a.Questions[0], a.Questions[1]

	started, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)
	res, err := f.svc.SubmitAttempt(ctx, started.Attempt.ID, f.student.ID, []AnswerInput{
		{QuestionID: choice.ID, SelectedOptionID: choice.Options[0].ID},
		{QuestionID: open.ID, Answer: "由 GMP 模型调度"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2.0, *res.Attempt.Score)
	assert.Equal(t, model.GradingPendingManual, *res.Attempt.GradingStatus)
	assert.Equal(t, model.AttemptPendingManual, res.Attempt.State())
	require.Len(t, res.Attempt.Answers, 2)
	assert.Nil(t, res.Attempt.Answers[1].IsCorrect)
	assert.Equal(t, 0.0, res.Attempt.Answers[1].Score)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, f.teacher.ID, sent[0].UserID)
	assert.Equal(t, model.NotifyAttemptPendingGrading, sent[0].Type)
}

func TestSubmitAttempt_AssignmentIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, activityOpts{typ: model.ActivityAssignment}, essay(10))

	started, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)
	res, err := f.svc.SubmitAttempt(ctx, started.Attempt.ID, f.student.ID, []AnswerInput{
		{QuestionID: a.Questions[0].ID, Answer: "见附件"},
	})
	require.NoError(t, err)
	assert.True(t, res.Acknowledged)
	assert.NotEmpty(t, res.Message)
	assert.Nil(t, res.Attempt)

	stored, err := f.svc.AttemptRepo.FindByID(ctx, nil, started.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GradingPendingManual, *stored.GradingStatus)
	assert.Nil(t, stored.InFlight)
}

func TestSubmitAttempt_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, activityOpts{maxAttempts: 2}, mcq(5, 0, "A", "B"))

	_, err := f.svc.SubmitAttempt(ctx, 9999, f.student.ID, nil)
	assert.Equal(t, util.KindNotFound, util.KindOf(err))

	started, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)

	_, err = f.svc.SubmitAttempt(ctx, started.Attempt.ID, f.other.ID, nil)
	assert.Equal(t, util.KindForbidden, util.KindOf(err))

	// 不属于该活动的题目：整体失败，尝试保持进行中
	_, err = f.svc.SubmitAttempt(ctx, started.Attempt.ID, f.student.ID, []AnswerInput{{QuestionID: 9999}})
	assert.Equal(t, util.KindNotFound, util.KindOf(err))
	stored, err := f.svc.AttemptRepo.FindByID(ctx, nil, started.Attempt.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.CompletedAt)

	_, err = f.svc.SubmitAttempt(ctx, started.Attempt.ID, f.student.ID, []AnswerInput{{QuestionID: "abc"}})
	assert.Equal(t, util.KindBadRequest, util.KindOf(err))

	_, err = f.svc.SubmitAttempt(ctx, started.Attempt.ID, f.student.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.SubmitAttempt(ctx, started.Attempt.ID, f.student.ID, nil)
	assert.Equal(t, util.KindConflict, util.KindOf(err))
}

func TestSubmitAttempt_IsImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, activityOpts{}, mcq(5, 0, "A", "B"))
	q := a.Questions[0]

	started, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitAttempt(ctx, started.Attempt.ID, f.student.ID, []AnswerInput{
		{QuestionID: q.ID, SelectedOptionID: q.Options[1].ID},
	})
	require.NoError(t, err)

	_, err = f.svc.SubmitAttempt(ctx, started.Attempt.ID, f.student.ID, []AnswerInput{
		{QuestionID: q.ID, SelectedOptionID: q.Options[0].ID},
	})
	assert.Equal(t, util.KindConflict, util.KindOf(err))

	var answers []model.StudentAnswer
	require.NoError(t, f.db.Where("activity_attempt_id = ?", started.Attempt.ID).Find(&answers).Error)
	require.Len(t, answers, 1)
	assert.Equal(t, q.Options[1].ID, *answers[0].SelectedOptionID)
}

func TestSubmitAttempt_TimeLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, activityOpts{maxAttempts: 2, timeLimit: intPtr(30)}, mcq(5, 0, "A", "B"))

	start := f.now
	onTime, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)
	f.now = start.Add(29 * time.Minute)
	_, err = f.svc.SubmitAttempt(ctx, onTime.Attempt.ID, f.student.ID, nil)
	require.NoError(t, err)

	late, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)
	f.now = f.now.Add(31 * time.Minute)
	_, err = f.svc.SubmitAttempt(ctx, late.Attempt.ID, f.student.ID, nil)
	assert.Equal(t, util.KindTimeExceeded, util.KindOf(err))

	stored, err := f.svc.AttemptRepo.FindByID(ctx, nil, late.Attempt.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.CompletedAt)
}

func TestSubmitAttempt_ZeroTimeLimitMeansUnlimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, activityOpts{timeLimit: intPtr(0)}, mcq(5, 0, "A", "B"))

	started, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)
	f.now = f.now.Add(48 * time.Hour)
	_, err = f.svc.SubmitAttempt(ctx, started.Attempt.ID, f.student.ID, nil)
	assert.NoError(t, err)
}

// submitMixed 提交一份单选 + 问答的测验，返回尝试和两条答案
func submitMixed(t *testing.T, f *fixture) (*model.ActivityAttempt, []model.StudentAnswer) {
	t.Helper()
	ctx := context.Background()
	a := f.createActivity(t, activityOpts{}, mcq(2, 0, "A", "B"), essay(8))

	started, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)
	res, err := f.svc.SubmitAttempt(ctx, started.Attempt.ID, f.student.ID, []AnswerInput{
		{QuestionID: a.Questions[0].ID, SelectedOptionID: a.Questions[0].Options[0].ID},
		{QuestionID: a.Questions[1].ID, Answer: "答案"},
	})
	require.NoError(t, err)
	require.Len(t, res.Attempt.Answers, 2)
	return res.Attempt, res.Attempt.Answers
}

func TestGradeAttempt_SumsScores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	attempt, answers := submitMixed(t, f)

	graded, err := f.svc.GradeAttempt(ctx, attempt.ID, f.teacher.ID, GradeInput{
		OverallFeedback: strPtr("good"),
		Answers: []AnswerGrade{
			{ID: answers[0].ID, Score: 3},
			{ID: answers[1].ID, Score: 4, Feedback: strPtr("再具体一些")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 7.0, *graded.Score)
	assert.Equal(t, model.GradingGraded, *graded.GradingStatus)
	assert.Equal(t, "good", *graded.GraderFeedback)
	assert.Equal(t, f.teacher.ID, *graded.GraderID)
	require.NotNil(t, graded.GradedAt)
	assert.Equal(t, "再具体一些", *graded.Answers[1].Feedback)
	// 批改后的详情带出正确答案
	require.NotNil(t, graded.Answers[0].Question)
	assert.Len(t, graded.Answers[0].Question.Options, 2)

	sent := f.notifier.all()
	require.Len(t, sent, 2)
	assert.Equal(t, f.student.ID, sent[1].UserID)
	assert.Equal(t, model.NotifyAttemptGraded, sent[1].Type)
}

func TestGradeAttempt_LastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	attempt, answers := submitMixed(t, f)

	_, err := f.svc.GradeAttempt(ctx, attempt.ID, f.teacher.ID, GradeInput{
		Answers: []AnswerGrade{{ID: answers[0].ID, Score: 3}, {ID: answers[1].ID, Score: 4}},
	})
	require.NoError(t, err)

	regraded, err := f.svc.GradeAttempt(ctx, attempt.ID, f.teacher.ID, GradeInput{
		Answers: []AnswerGrade{{ID: answers[0].ID, Score: 1}, {ID: answers[1].ID, Score: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, *regraded.Score)
}

func TestGradeAttempt_RejectsForeignAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	attempt, answers := submitMixed(t, f)

	// 另一名学生的作答
	b := f.createActivity(t, activityOpts{}, essay(5))
	otherStart, err := f.svc.StartAttempt(ctx, b.ID, f.other.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitAttempt(ctx, otherStart.Attempt.ID, f.other.ID, []AnswerInput{
		{QuestionID: b.Questions[0].ID, Answer: "x"},
	})
	require.NoError(t, err)
	var foreign model.StudentAnswer
	require.NoError(t, f.db.Where("activity_attempt_id = ?", otherStart.Attempt.ID).First(&foreign).Error)

	_, err = f.svc.GradeAttempt(ctx, attempt.ID, f.teacher.ID, GradeInput{
		Answers: []AnswerGrade{{ID: answers[0].ID, Score: 2}, {ID: foreign.ID, Score: 9}},
	})
	require.Error(t, err)
	assert.Equal(t, util.KindNotFound, util.KindOf(err))

	// 整体回滚
	stored, err := f.svc.AttemptRepo.FindByID(ctx, nil, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GradingPendingManual, *stored.GradingStatus)
	require.NoError(t, f.db.First(&foreign, foreign.ID).Error)
	assert.Equal(t, 0.0, foreign.Score)
}

func TestGradeAttempt_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GradeAttempt(ctx, 9999, f.teacher.ID, GradeInput{})
	assert.Equal(t, util.KindNotFound, util.KindOf(err))

	a := f.createActivity(t, activityOpts{}, essay(5))
	started, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)
	_, err = f.svc.GradeAttempt(ctx, started.Attempt.ID, f.teacher.ID, GradeInput{})
	assert.Equal(t, util.KindInvalidState, util.KindOf(err))

	_, err = f.svc.GradeAttempt(ctx, started.Attempt.ID, f.teacher.ID, GradeInput{
		Answers: []AnswerGrade{{ID: 1, Score: -1}},
	})
	assert.Equal(t, util.KindBadRequest, util.KindOf(err))

	_, err = f.svc.GradeAttempt(ctx, started.Attempt.ID, f.teacher.ID, GradeInput{
		Answers: []AnswerGrade{{ID: 1, Score: 1}, {ID: 1, Score: 2}},
	})
	assert.Equal(t, util.KindBadRequest, util.KindOf(err))
}

func TestGradeAttempt_RejectsInProgressAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.createActivity(t, activityOpts{}, essay(5))
	started, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)

	feedback := "提前批改"
	_, err = f.svc.GradeAttempt(ctx, started.Attempt.ID, f.teacher.ID, GradeInput{OverallFeedback: &feedback})
	require.Error(t, err)
	assert.Equal(t, util.KindInvalidState, util.KindOf(err))
	assert.Equal(t, "作答尚未提交", err.Error())

	var stored model.ActivityAttempt
	require.NoError(t, f.db.First(&stored, started.Attempt.ID).Error)
	assert.Nil(t, stored.CompletedAt)
	assert.Nil(t, stored.Score)
	assert.Nil(t, stored.GradingStatus)
	assert.Nil(t, stored.GraderFeedback)
	assert.Nil(t, stored.GradedAt)
	assert.Empty(t, f.notifier.all())
}

func TestAttemptQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	attempt, _ := submitMixed(t, f)

	view, err := f.svc.GetAttempt(ctx, attempt.ID, f.student.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptPendingManual, view.State)
	assert.Len(t, view.Questions, 2)

	_, err = f.svc.GetAttempt(ctx, attempt.ID, f.other.ID)
	assert.Equal(t, util.KindForbidden, util.KindOf(err))
	_, err = f.svc.GetAttemptResult(ctx, attempt.ID, f.other.ID)
	assert.Equal(t, util.KindForbidden, util.KindOf(err))
	_, err = f.svc.GetAttempt(ctx, 9999, f.student.ID)
	assert.Equal(t, util.KindNotFound, util.KindOf(err))

	result, err := f.svc.GetAttemptResult(ctx, attempt.ID, f.student.ID)
	require.NoError(t, err)
	require.NotNil(t, result.Answers[0].Question)
	assert.Len(t, result.Answers[0].Question.Options, 2)

	mine, total, err := f.svc.GetAttempts(ctx, f.student.ID, repository.AttemptFilter{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, mine, 1)

	none, total, err := f.svc.GetAttempts(ctx, f.other.ID, repository.AttemptFilter{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)

	pending, total, err := f.svc.AdminGetAttempts(ctx, repository.AttemptFilter{
		GradingStatus: model.GradingPendingManual, Page: 1, Limit: 10,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, pending, 1)
	require.NotNil(t, pending[0].Student)
	assert.Equal(t, f.student.ID, pending[0].Student.ID)

	detail, err := f.svc.AdminGetAttemptDetail(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Answers, 2)
	_, err = f.svc.AdminGetAttemptDetail(ctx, 9999)
	assert.Equal(t, util.KindNotFound, util.KindOf(err))
}

func TestGetAttemptResult_InProgressHasNoKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createActivity(t, activityOpts{}, mcq(5, 0, "A", "B"))

	started, err := f.svc.StartAttempt(ctx, a.ID, f.student.ID)
	require.NoError(t, err)

	result, err := f.svc.GetAttemptResult(ctx, started.Attempt.ID, f.student.ID)
	require.NoError(t, err)
	assert.Nil(t, result.CompletedAt)
	assert.Empty(t, result.Answers)
}
