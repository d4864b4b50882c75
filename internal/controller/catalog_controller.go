package controller

import (
	"edu_backend/internal/model"
	"edu_backend/internal/service"
	"edu_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CatalogController struct {
	Service *service.CatalogService
}

func NewCatalogController(svc *service.CatalogService) *CatalogController {
	return &CatalogController{Service: svc}
}

// @Summary 创建课程
// @Tags 课程
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CourseInput true "课程信息"
// @Success 201 {object} util.Response{data=model.Course}
// @Router /api/teacher/courses [post]
func (c *CatalogController) CreateCourse(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}

	var req service.CourseInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	course, err := c.Service.CreateCourse(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, course)
}

// @Summary 课程列表
// @Description 教师接口只返回自己创建的课程（管理员返回全部）
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(10)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/courses [get]
// @Router /api/teacher/courses [get]
func (c *CatalogController) ListCourses(mine bool) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		user, ok := caller(ctx)
		if !ok {
			return
		}
		page, limit := util.Pagination(ctx)

		var creatorID *uint
		if mine && user.Role != model.Admin {
			creatorID = &user.UserID
		}

		items, total, err := c.Service.ListCourses(ctx.Request.Context(), creatorID, page, limit)
		if err != nil {
			util.RespondError(ctx, err)
			return
		}
		util.Success(ctx, util.PageResponse{Items: items, Total: total, Page: page, Limit: limit})
	}
}

// @Summary 创建课时
// @Tags 课程
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Param body body service.LessonInput true "课时信息"
// @Success 201 {object} util.Response{data=model.Lesson}
// @Failure 404 {object} util.Response "课程不存在"
// @Router /api/teacher/courses/{id}/lessons [post]
func (c *CatalogController) CreateLesson(ctx *gin.Context) {
	user, ok := caller(ctx)
	if !ok {
		return
	}
	courseID, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	var req service.LessonInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	lesson, err := c.Service.CreateLesson(ctx.Request.Context(), user, courseID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, lesson)
}

// @Summary 课时列表
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param id path int true "课程ID"
// @Success 200 {object} util.Response{data=[]model.Lesson}
// @Router /api/courses/{id}/lessons [get]
func (c *CatalogController) ListLessons(ctx *gin.Context) {
	courseID, err := util.ParamID(ctx, "id")
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	lessons, err := c.Service.ListLessons(ctx.Request.Context(), courseID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, lessons)
}
