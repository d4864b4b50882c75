package controller

import (
	"edu_backend/internal/model"
	"edu_backend/internal/repository"
	"edu_backend/internal/service"
	"edu_backend/internal/util"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
)

type EnrollmentController struct {
	Service *service.EnrollmentService
}

func NewEnrollmentController(svc *service.EnrollmentService) *EnrollmentController {
	return &EnrollmentController{Service: svc}
}

// @Summary 选课
// @Description 无需审核的课程直接通过；课程创建者可以通过 userId 代学生选课
// @Tags 选课
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Param body body service.EnrollInput false "代选学生"
// @Success 201 {object} util.Response{data=model.Enrollment}
// @Failure 404 {object} util.Response "课程不存在"
// @Failure 409 {object} util.Response "已选过该课程"
// @Router /api/courses/{id}/enrollments [post]
func (c *EnrollmentController) Enroll(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	courseID, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	var req service.EnrollInput
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		util.BadRequest(ctx, err.Error())
		return
	}

	enrollment, err := c.Service.Enroll(ctx.Request.Context(), user, courseID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, enrollment)
}

// @Summary 选课列表
// @Description 学生只返回自己的记录
// @Tags 选课
// @Produce json
// @Security BearerAuth
// @Param courseId query int false "课程ID"
// @Param userId query int false "学生ID"
// @Param status query string false "PENDING/ACCEPTED/REJECTED"
// @Param order query string false "asc/desc" default(desc)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/enrollments [get]
func (c *EnrollmentController) List(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}

	var filter repository.EnrollmentFilter
	var err error
	if filter.CourseID, err = util.QueryUint(ctx, "courseId"); err != nil {
		util.RespondError(ctx, err)
		return
	}
	if filter.UserID, err = util.QueryUint(ctx, "userId"); err != nil {
		util.RespondError(ctx, err)
		return
	}
	if raw := ctx.Query("status"); raw != "" {
		status := model.EnrollmentStatus(raw)
		if !status.Valid() {
			util.RespondError(ctx, util.BadRequestError("status 无效"))
			return
		}
		filter.Status = &status
	}
	filter.Ascending = ctx.Query("order") == "asc"

	page, limit := util.Pagination(ctx)
	items, total, err := c.Service.List(ctx.Request.Context(), user, filter, page, limit)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{Items: items, Total: total, Page: page, Limit: limit})
}

// @Summary 重新申请选课
// @Tags 选课
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=model.Enrollment}
// @Router /api/courses/{id}/enrollments/me [put]
func (c *EnrollmentController) Reapply(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	courseID, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	enrollment, err := c.Service.Reapply(ctx.Request.Context(), user, courseID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, enrollment)
}

// @Summary 退课
// @Tags 选课
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response
// @Router /api/courses/{id}/enrollments/me [delete]
func (c *EnrollmentController) Withdraw(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	courseID, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	if err := c.Service.Remove(ctx.Request.Context(), user, courseID, user.UserID); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"courseId": courseID})
}

// @Summary 审核选课
// @Tags 选课
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Param userId path int true "学生ID"
// @Param body body service.EnrollmentStatusInput true "新状态"
// @Success 200 {object} util.Response{data=model.Enrollment}
// @Router /api/teacher/courses/{id}/enrollments/{userId} [put]
func (c *EnrollmentController) Review(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	courseID, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	userID, err := util.ParamID(ctx, "userId")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	var req service.EnrollmentStatusInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	enrollment, err := c.Service.Review(ctx.Request.Context(), user, courseID, userID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, enrollment)
}

// @Summary 移除学生
// @Tags 选课
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Param userId path int true "学生ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/courses/{id}/enrollments/{userId} [delete]
func (c *EnrollmentController) Remove(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	courseID, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	userID, err := util.ParamID(ctx, "userId")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	if err := c.Service.Remove(ctx.Request.Context(), user, courseID, userID); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"courseId": courseID, "userId": userID})
}
