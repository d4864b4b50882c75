package controller

import (
	"edu_backend/internal/model"
	"edu_backend/internal/repository"
	"edu_backend/internal/service"
	"edu_backend/internal/util"
	"strings"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	Service *service.AttemptService
}

func NewAttemptController(svc *service.AttemptService) *AttemptController {
	return &AttemptController{Service: svc}
}

type StartAttemptRequest struct {
	ActivityID uint `json:"activityId" binding:"required"`
}

type SubmitAttemptRequest struct {
	Answers []service.AnswerInput `json:"answers" binding:"dive"`
}

func attemptFilter(ctx *gin.Context) (repository.AttemptFilter, error) {
	var filter repository.AttemptFilter
	var err error
	if filter.ActivityID, err = util.QueryUint(ctx, "activityId"); err != nil {
		return filter, err
	}
	if s := ctx.Query("gradingStatus"); s != "" {
		filter.GradingStatus = model.GradingStatus(strings.ToUpper(s))
		if !filter.GradingStatus.Valid() {
			return filter, util.BadRequestError("gradingStatus 无效")
		}
	}
	filter.Page, filter.Limit = util.Pagination(ctx)
	return filter, nil
}

// @Summary 开始作答
// @Tags 活动作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body StartAttemptRequest true "活动ID"
// @Success 201 {object} util.Response{data=service.StartedAttempt}
// @Failure 400 {object} util.Response "活动未发布或次数已用完"
// @Failure 404 {object} util.Response "活动不存在"
// @Failure 409 {object} util.Response "已有进行中的作答"
// @Router /api/activities/attempts/start [post]
func (c *AttemptController) Start(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}

	var req StartAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	started, err := c.Service.StartAttempt(ctx.Request.Context(), req.ActivityID, user.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, started)
}

// @Summary 提交作答
// @Description 客观题自动评分，其余题目进入人工批改
// @Tags 活动作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param body body SubmitAttemptRequest true "答案"
// @Success 200 {object} util.Response{data=service.SubmitResult}
// @Failure 400 {object} util.Response "超时或参数错误"
// @Failure 403 {object} util.Response "不是本人的作答"
// @Failure 409 {object} util.Response "已经提交过"
// @Router /api/activities/attempts/{id}/submit [post]
func (c *AttemptController) Submit(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	var req SubmitAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.Service.SubmitAttempt(ctx.Request.Context(), id, user.UserID, req.Answers)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 我的作答列表
// @Tags 活动作答
// @Produce json
// @Security BearerAuth
// @Param activityId query int false "活动ID"
// @Param gradingStatus query string false "批改状态"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/activities/attempts [get]
func (c *AttemptController) GetAttempts(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	filter, err := attemptFilter(ctx)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	items, total, err := c.Service.GetAttempts(ctx.Request.Context(), user.UserID, filter)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{Items: items, Total: total, Page: filter.Page, Limit: filter.Limit})
}

// @Summary 查看我的某次作答
// @Tags 活动作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response{data=service.AttemptView}
// @Router /api/activities/attempts/{id} [get]
func (c *AttemptController) GetAttempt(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	view, err := c.Service.GetAttempt(ctx.Request.Context(), id, user.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 查看作答结果
// @Description 提交后附带正确答案与逐题反馈
// @Tags 活动作答
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response{data=model.ActivityAttempt}
// @Router /api/activities/attempts/{id}/result [get]
func (c *AttemptController) GetAttemptResult(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	result, err := c.Service.GetAttemptResult(ctx.Request.Context(), id, user.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 教师查看作答列表
// @Tags 作答批改
// @Produce json
// @Security BearerAuth
// @Param activityId query int false "活动ID"
// @Param studentId query int false "学生ID"
// @Param gradingStatus query string false "批改状态"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/teacher/attempts [get]
func (c *AttemptController) AdminGetAttempts(ctx *gin.Context) {
	filter, err := attemptFilter(ctx)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	if filter.StudentID, err = util.QueryUint(ctx, "studentId"); err != nil {
		util.RespondError(ctx, err)
		return
	}

	items, total, err := c.Service.AdminGetAttempts(ctx.Request.Context(), filter)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{Items: items, Total: total, Page: filter.Page, Limit: filter.Limit})
}

// @Summary 教师查看作答详情
// @Tags 作答批改
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Success 200 {object} util.Response{data=model.ActivityAttempt}
// @Router /api/teacher/attempts/{id} [get]
func (c *AttemptController) AdminGetAttemptDetail(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	attempt, err := c.Service.AdminGetAttemptDetail(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// @Summary 人工批改
// @Description 总分为各题给分之和，可重复批改，以最后一次为准
// @Tags 作答批改
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "作答ID"
// @Param body body service.GradeInput true "逐题评分"
// @Success 200 {object} util.Response{data=model.ActivityAttempt}
// @Failure 404 {object} util.Response "作答或答案不存在"
// @Router /api/teacher/attempts/{id}/grade [post]
func (c *AttemptController) Grade(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	var req service.GradeInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	attempt, err := c.Service.GradeAttempt(ctx.Request.Context(), id, user.UserID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}
