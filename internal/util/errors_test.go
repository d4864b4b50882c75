package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(ErrAttemptNotFound))
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("wrapped: %w", ErrAttemptSubmitted)))
	assert.Equal(t, KindUnexpected, KindOf(errors.New("boom")))
	assert.Equal(t, KindUnexpected, KindOf(nil))

	quota := QuotaExceededError("已达到最大作答次数 (%d)", 3)
	assert.Equal(t, "已达到最大作答次数 (3)", quota.Error())
	assert.Equal(t, KindQuotaExceeded, KindOf(quota))
}

func TestUnexpected(t *testing.T) {
	assert.Nil(t, Unexpected(nil))
	assert.Same(t, ErrActivityNotFound, Unexpected(ErrActivityNotFound))

	cause := errors.New("connection refused")
	err := Unexpected(cause)
	assert.Equal(t, KindUnexpected, KindOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestErrorsIsMatchesKindAndMessage(t *testing.T) {
	assert.ErrorIs(t, NotFoundError("作答记录不存在"), ErrAttemptNotFound)
	assert.NotErrorIs(t, NotFoundError("活动不存在"), ErrAttemptNotFound)
}

func TestSentinelMessagesAreChinese(t *testing.T) {
	sentinels := []*AppError{
		ErrUserNotFound, ErrEmailRegistered, ErrInvalidCredentials, ErrAccountDisabled,
		ErrPermissionDenied, ErrCourseNotFound, ErrLessonNotFound, ErrActivityNotFound,
		ErrActivityNotActive, ErrAttemptNotFound, ErrAttemptInProgress, ErrAttemptSubmitted,
		ErrNotYourAttempt, ErrTimeLimitExceeded, ErrNotificationMissing,
		ErrEnrollmentNotFound, ErrAlreadyEnrolled,
	}
	for _, e := range sentinels {
		han := false
		for _, r := range e.Message {
			if unicode.Is(unicode.Han, r) {
				han = true
				break
			}
		}
		assert.True(t, han, "message %q", e.Message)
	}
}

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err     error
		status  int
		message string
	}{
		{ErrActivityNotFound, http.StatusNotFound, "活动不存在"},
		{ErrActivityNotActive, http.StatusBadRequest, "活动未发布"},
		{QuotaExceededError("已达到最大作答次数 (1)"), http.StatusBadRequest, "已达到最大作答次数 (1)"},
		{ErrTimeLimitExceeded, http.StatusBadRequest, "已超过作答时限"},
		{ErrAttemptInProgress, http.StatusConflict, "已有进行中的作答"},
		{ErrNotYourAttempt, http.StatusForbidden, "不是你的作答记录"},
		{ErrInvalidCredentials, http.StatusUnauthorized, "邮箱或密码错误"},
		{errors.New("dial tcp: i/o timeout"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			RespondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body.Code)
			assert.Equal(t, tt.message, body.Message)
		})
	}
}
