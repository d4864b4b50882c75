package service

import (
	"context"
	"edu_backend/internal/model"
	"edu_backend/internal/repository"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB 每个测试一个内存库；单连接保证事务串行执行
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []NotifyInput
}

func (n *recordingNotifier) Notify(ctx context.Context, in NotifyInput) (*model.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, in)
	return &model.Notification{UserID: in.UserID, Type: in.Type}, nil
}

func (n *recordingNotifier) all() []NotifyInput {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]NotifyInput(nil), n.sent...)
}

type fixture struct {
	db       *gorm.DB
	svc      *AttemptService
	notifier *recordingNotifier
	now      time.Time

	teacher model.User
	student model.User
	other   model.User
	course  model.Course
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)

	f := &fixture{
		db:       db,
		notifier: &recordingNotifier{},
		now:      time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewAttemptService(db, repository.NewActivityRepository(db), repository.NewAttemptRepository(db), f.notifier)
	f.svc.Now = func() time.Time { return f.now }

	f.teacher = f.createUser(t, "teacher", model.Teacher)
	f.student = f.createUser(t, "student", model.Student)
	f.other = f.createUser(t, "other", model.Student)

	f.course = model.Course{Title: "Go 入门", CreatorID: f.teacher.ID}
	require.NoError(t, db.Create(&f.course).Error)
	return f
}

func (f *fixture) createUser(t *testing.T, name string, role model.UserRole) model.User {
	t.Helper()
	u := model.User{Name: name, Email: fmt.Sprintf("%s@example.com", name), Password: "x", Role: role}
	require.NoError(t, f.db.Create(&u).Error)
	return u
}

type activityOpts struct {
	typ         model.ActivityType
	status      model.ActivityStatus
	maxAttempts int
	timeLimit   *int
}

func (f *fixture) createActivity(t *testing.T, opts activityOpts, questions ...model.ActivityQuestion) *model.Activity {
	t.Helper()
	if opts.typ == "" {
		opts.typ = model.ActivityQuiz
	}
	if opts.status == "" {
		opts.status = model.ActivityPublished
	}
	if opts.maxAttempts == 0 {
		opts.maxAttempts = 1
	}
	for i := range questions {
		questions[i].Position = i
	}

	a := &model.Activity{
		Title:            "第一单元测验",
		Type:             opts.typ,
		Status:           opts.status,
		MaxAttempts:      opts.maxAttempts,
		TimeLimitMinutes: opts.timeLimit,
		CreatorID:        f.teacher.ID,
		CourseID:         &f.course.ID,
		Questions:        questions,
	}
	require.NoError(t, f.db.Create(a).Error)
	return a
}

func mcq(points, correct int, texts ...string) model.ActivityQuestion {
	q := model.ActivityQuestion{Question: "选择正确答案", Type: model.QuestionMultipleChoice, Points: points}
	for i, text := range texts {
		q.Options = append(q.Options, model.QuestionOption{Text: text, IsCorrect: i == correct})
	}
	return q
}

func trueFalse(points int, answer bool) model.ActivityQuestion {
	return model.ActivityQuestion{
		Question: "判断对错",
		Type:     model.QuestionTrueFalse,
		Points:   points,
		Options: []model.QuestionOption{
			{Text: "true", IsCorrect: answer},
			{Text: "false", IsCorrect: !answer},
		},
	}
}

func essay(points int) model.ActivityQuestion {
	return model.ActivityQuestion{Question: "简述 goroutine 的调度", Type: model.QuestionEssay, Points: points}
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }
