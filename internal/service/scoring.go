package service

import (
	"edu_backend/internal/model"
	"edu_backend/internal/util"
	"strings"

	"github.com/spf13/cast"
)

// AnswerInput 提交时的原始作答，id 既可能是数字也可能是字符串
type AnswerInput struct {
	QuestionID       interface{} `json:"questionId" binding:"required"`
	SelectedOptionID interface{} `json:"selectedOptionId"`
	Answer           interface{} `json:"answer"`
}

// ParsedAnswer 校验后的作答
type ParsedAnswer struct {
	QuestionID       uint
	SelectedOptionID *uint
	Text             *string
}

// ParseAnswers 把原始作答转换成强类型，非法 id、重复题目返回 BadRequest
func ParseAnswers(raw []AnswerInput) ([]ParsedAnswer, error) {
	parsed := make([]ParsedAnswer, 0, len(raw))
	seen := make(map[uint]bool, len(raw))

	for i, in := range raw {
		qid, err := cast.ToUintE(in.QuestionID)
		if err != nil || qid == 0 {
			return nil, util.BadRequestError("answers[%d].questionId 无效", i)
		}
		if seen[qid] {
			return nil, util.BadRequestError("题目 %d 重复作答", qid)
		}
		seen[qid] = true

		p := ParsedAnswer{QuestionID: qid}

		if !blank(in.SelectedOptionID) {
			oid, err := cast.ToUintE(in.SelectedOptionID)
			if err != nil || oid == 0 {
				return nil, util.BadRequestError("answers[%d].selectedOptionId 无效", i)
			}
			p.SelectedOptionID = &oid
		}

		if in.Answer != nil {
			text, err := cast.ToStringE(in.Answer)
			if err != nil {
				return nil, util.BadRequestError("answers[%d].answer 必须是字符串", i)
			}
			p.Text = &text
		}

		parsed = append(parsed, p)
	}
	return parsed, nil
}

func blank(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// AnswerScore 单题判分结果，IsCorrect 为 nil 表示需要人工评分
type AnswerScore struct {
	IsCorrect   *bool
	Score       float64
	NeedsManual bool
}

// ScoreAnswer 只有测验中的单选题、判断题自动判分，其余题目留给人工评分
func ScoreAnswer(activityType model.ActivityType, q *model.ActivityQuestion, ans ParsedAnswer) AnswerScore {
	if activityType != model.ActivityQuiz || !q.Type.Objective() {
		return AnswerScore{NeedsManual: true}
	}

	correct := q.CorrectOption()
	ok := false
	if correct != nil {
		switch q.Type {
		case model.QuestionMultipleChoice:
			ok = ans.SelectedOptionID != nil && *ans.SelectedOptionID == correct.ID
		case model.QuestionTrueFalse:
			if ans.Text != nil && strings.TrimSpace(*ans.Text) != "" {
				ok = normalizeBool(*ans.Text) == normalizeBool(correct.Text)
			} else {
				ok = ans.SelectedOptionID != nil && *ans.SelectedOptionID == correct.ID
			}
		}
	}

	result := AnswerScore{IsCorrect: &ok}
	if ok {
		result.Score = float64(q.Points)
	}
	return result
}

func normalizeBool(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
