package http_router

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"CriteriaManager/resource"
	serviceManager "CriteriaManager/service"
	"CriteriaManager/util/query_error"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// UserHeader 调用方身份，由上游网关注入
const UserHeader = "X-User-ID"

// HTTPRouterManager 封装了 ServiceManager 与过滤器存储，提供 HTTP 路由注册功能
type HTTPRouterManager[T any] struct {
	// 使用指针嵌入 (*)，避免拷贝
	*serviceManager.ServiceManager[T]
	Filters *serviceManager.FilterStore
}

// NewHTTPRouterManager 构造函数，filters 可为 nil（不支持 filter_id）
func NewHTTPRouterManager[T any](svc *serviceManager.ServiceManager[T], filters *serviceManager.FilterStore) *HTTPRouterManager[T] {
	return &HTTPRouterManager[T]{
		ServiceManager: svc,
		Filters:        filters,
	}
}

// QueryGroup 在 rg 上挂载资源查询路由
func (m *HTTPRouterManager[T]) QueryGroup(rg *gin.RouterGroup) *QueryRouterGroup[T] {
	qrg := NewQueryRouterGroup(rg, m.ServiceManager)
	qrg.Filters = m.Filters
	return qrg
}

// ========== 响应 ==========

type QueryResponse[T any] struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Data       []T    `json:"data"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
}

type CountResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// ErrorResponse 失败响应；Accepted 仅在调用方可修正时给出
type ErrorResponse struct {
	Code     int      `json:"code"`
	Message  string   `json:"message"`
	Error    string   `json:"error,omitempty"`
	Field    string   `json:"field,omitempty"`
	Accepted []string `json:"accepted_fields,omitempty"`
}

func badRequest(c *gin.Context, message string, err error) {
	resp := ErrorResponse{Code: http.StatusBadRequest, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

// respondError 调用方错误 400，不存在 404，权限类 403，其余 500
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var qe *query_error.Error
	switch {
	case errors.As(err, &qe):
		logger.Info("rejected query",
			zap.String("path", c.FullPath()),
			zap.String("kind", string(qe.Kind)),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:     http.StatusBadRequest,
			Message:  qe.Error(),
			Error:    string(qe.Kind),
			Field:    qe.Field,
			Accepted: qe.Accepted,
		})
	case errors.Is(err, serviceManager.ErrVolatileShared):
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: http.StatusBadRequest, Message: err.Error()})
	case errors.Is(err, serviceManager.ErrRecordNotFound),
		errors.Is(err, serviceManager.ErrFilterNotFound),
		errors.Is(err, resource.ErrResourceNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Code: http.StatusNotFound, Message: err.Error()})
	case errors.Is(err, serviceManager.ErrSystemFilterDelete),
		errors.Is(err, serviceManager.ErrReadonlyFilter):
		c.JSON(http.StatusForbidden, ErrorResponse{Code: http.StatusForbidden, Message: err.Error()})
	default:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    http.StatusInternalServerError,
			Message: "internal error",
			Error:   err.Error(),
		})
	}
}

// userID 缺失或非法时返回 false
func userID(c *gin.Context) (uint, bool) {
	raw := c.GetHeader(UserHeader)
	if raw == "" {
		return 0, false
	}
	id, err := cast.ToUintE(raw)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// queryValues 解析原始查询串。
// 分号是 q、search_fields、with、select 的值内分隔符，net/url 会整对丢弃含裸分号的参数
func queryValues(c *gin.Context) (url.Values, error) {
	return url.ParseQuery(strings.ReplaceAll(c.Request.URL.RawQuery, ";", "%3B"))
}
