package controller

import (
	"edu_backend/internal/model"
	"edu_backend/internal/repository"
	"edu_backend/internal/service"
	"edu_backend/internal/util"
	"encoding/json"
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

type ActivityController struct {
	Service *service.ActivityService
}

func NewActivityController(svc *service.ActivityService) *ActivityController {
	return &ActivityController{Service: svc}
}

// bindActivity 支持 JSON 或 multipart（data 字段为 JSON，files 为附件）
func bindActivity(ctx *gin.Context, dst interface{}) ([]*multipart.FileHeader, error) {
	if !strings.HasPrefix(ctx.ContentType(), "multipart/") {
		if err := ctx.ShouldBindJSON(dst); err != nil {
			return nil, util.BadRequestError("%s", err.Error())
		}
		return nil, nil
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, util.BadRequestError("表单格式错误")
	}
	if data := form.Value["data"]; len(data) > 0 {
		if err := json.Unmarshal([]byte(data[0]), dst); err != nil {
			return nil, util.BadRequestError("data 字段格式错误: %s", err.Error())
		}
	}
	if err := binding.Validator.ValidateStruct(dst); err != nil {
		return nil, util.BadRequestError("%s", err.Error())
	}
	return form.File["files"], nil
}

func activityFilter(ctx *gin.Context) (repository.ActivityFilter, error) {
	var filter repository.ActivityFilter
	var err error
	if filter.CourseID, err = util.QueryUint(ctx, "courseId"); err != nil {
		return filter, err
	}
	if filter.LessonID, err = util.QueryUint(ctx, "lessonId"); err != nil {
		return filter, err
	}
	if t := ctx.Query("type"); t != "" {
		filter.Type = model.ActivityType(strings.ToUpper(t))
		if !filter.Type.Valid() {
			return filter, util.BadRequestError("活动类型无效")
		}
	}
	filter.Search = strings.TrimSpace(ctx.Query("search"))
	filter.Page, filter.Limit = util.Pagination(ctx)
	return filter, nil
}

// @Summary 创建活动
// @Description 支持 JSON 或 multipart/form-data（data 为活动 JSON，files 为附件）
// @Tags 活动
// @Accept json
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateActivityInput true "活动信息"
// @Success 201 {object} util.Response{data=model.Activity}
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 404 {object} util.Response "课程或课时不存在"
// @Router /api/teacher/activities [post]
func (c *ActivityController) Create(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}

	var req service.CreateActivityInput
	files, err := bindActivity(ctx, &req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	activity, err := c.Service.Create(ctx.Request.Context(), user, req, files)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, activity)
}

// @Summary 教师活动列表
// @Tags 活动
// @Produce json
// @Security BearerAuth
// @Param courseId query int false "课程ID"
// @Param lessonId query int false "课时ID"
// @Param type query string false "活动类型"
// @Param status query string false "活动状态"
// @Param search query string false "标题关键字"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/teacher/activities [get]
func (c *ActivityController) List(ctx *gin.Context) {
	filter, err := activityFilter(ctx)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	if s := ctx.Query("status"); s != "" {
		filter.Status = model.ActivityStatus(strings.ToUpper(s))
		if !filter.Status.Valid() {
			util.BadRequest(ctx, "invalid status")
			return
		}
	}
	if filter.CreatorID, err = util.QueryUint(ctx, "creatorId"); err != nil {
		util.RespondError(ctx, err)
		return
	}

	items, total, err := c.Service.List(ctx.Request.Context(), filter)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{Items: items, Total: total, Page: filter.Page, Limit: filter.Limit})
}

// @Summary 教师查看活动详情（含答案）
// @Tags 活动
// @Produce json
// @Security BearerAuth
// @Param id path int true "活动ID"
// @Success 200 {object} util.Response{data=model.Activity}
// @Failure 404 {object} util.Response "活动不存在"
// @Router /api/teacher/activities/{id} [get]
func (c *ActivityController) Detail(ctx *gin.Context) {
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	activity, err := c.Service.TeacherDetail(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, activity)
}

// @Summary 更新活动
// @Description questions 字段存在时整体同步：带 id 更新，不带 id 新建，缺失的删除
// @Tags 活动
// @Accept json
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param id path int true "活动ID"
// @Param body body service.UpdateActivityInput true "要修改的字段"
// @Success 200 {object} util.Response{data=model.Activity}
// @Failure 409 {object} util.Response "题目已有作答，不能删除"
// @Router /api/teacher/activities/{id} [put]
func (c *ActivityController) Update(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	var req service.UpdateActivityInput
	files, err := bindActivity(ctx, &req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	activity, err := c.Service.Update(ctx.Request.Context(), user, id, req, files)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, activity)
}

// @Summary 删除活动
// @Tags 活动
// @Produce json
// @Security BearerAuth
// @Param id path int true "活动ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/activities/{id} [delete]
func (c *ActivityController) Delete(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	if err := c.Service.Delete(ctx.Request.Context(), user, id); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": id})
}

// @Summary 学生活动列表（仅已发布）
// @Tags 活动
// @Produce json
// @Security BearerAuth
// @Param courseId query int false "课程ID"
// @Param lessonId query int false "课时ID"
// @Param type query string false "活动类型"
// @Param search query string false "标题关键字"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/activities [get]
func (c *ActivityController) StudentList(ctx *gin.Context) {
	filter, err := activityFilter(ctx)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	items, total, err := c.Service.StudentList(ctx.Request.Context(), filter)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{Items: items, Total: total, Page: filter.Page, Limit: filter.Limit})
}

// @Summary 学生查看活动详情
// @Description 不含正确答案，附带本人的作答记录
// @Tags 活动
// @Produce json
// @Security BearerAuth
// @Param id path int true "活动ID"
// @Success 200 {object} util.Response{data=service.StudentActivityView}
// @Failure 404 {object} util.Response "活动不存在或未发布"
// @Router /api/activities/{id} [get]
func (c *ActivityController) StudentDetail(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	id, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	view, err := c.Service.StudentDetail(ctx.Request.Context(), id, user.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}
