package util

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// MustParseUint 将字符串转换为无符号整数，解析失败时返回 0
func MustParseUint(s string) uint {
	return cast.ToUint(s)
}

// ParamID 读取路径参数中的 id，非法或为 0 时返回 BadRequest
func ParamID(c *gin.Context, name string) (uint, error) {
	id, err := cast.ToUintE(c.Param(name))
	if err != nil || id == 0 {
		return 0, BadRequestError("参数 %s 无效", name)
	}
	return id, nil
}

// QueryUint 可选的查询参数，缺省返回 nil
func QueryUint(c *gin.Context, name string) (*uint, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := cast.ToUintE(raw)
	if err != nil {
		return nil, BadRequestError("参数 %s 无效", name)
	}
	return &v, nil
}

// Pagination 读取 page/limit，limit 上限 100
func Pagination(c *gin.Context) (int, int) {
	page := cast.ToInt(c.DefaultQuery("page", "1"))
	limit := cast.ToInt(c.DefaultQuery("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
