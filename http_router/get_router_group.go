package http_router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"CriteriaManager/criteria"
	"CriteriaManager/resource"
	"CriteriaManager/service"
	"CriteriaManager/util/query_error"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ========== 预定义查询 ==========

// QueryPreset 命名的固定条件，例如 "hot" -> score > 7
type QueryPreset struct {
	Name     string
	Criteria []criteria.Criterion
}

type PresetRegistry struct {
	presets map[string]*QueryPreset
}

func NewPresetRegistry() *PresetRegistry {
	return &PresetRegistry{presets: make(map[string]*QueryPreset)}
}

func (r *PresetRegistry) Register(preset *QueryPreset) {
	r.presets[preset.Name] = preset
}

func (r *PresetRegistry) Get(name string) (*QueryPreset, bool) {
	p, ok := r.presets[name]
	return p, ok
}

// ========== Gin 路由组 ==========

type QueryRouterGroup[T any] struct {
	RouterGroup *gin.RouterGroup
	Service     *service.ServiceManager[T]
	Presets     *PresetRegistry
	// Filters 为 nil 时 filter_id 与 view 参数返回 404
	Filters *service.FilterStore
	Logger  *zap.Logger
}

func NewQueryRouterGroup[T any](
	rg *gin.RouterGroup,
	svc *service.ServiceManager[T],
) *QueryRouterGroup[T] {
	return &QueryRouterGroup[T]{
		RouterGroup: rg,
		Service:     svc,
		Presets:     NewPresetRegistry(),
		Logger:      svc.Logger,
	}
}

// RegisterPreset 注册预定义查询，规则为持久化格式的 JSON
func (qrg *QueryRouterGroup[T]) RegisterPreset(name string, rules string) error {
	c, err := criteria.RulesFromJSON([]byte(rules))
	if err != nil {
		return fmt.Errorf("preset %s: %w", name, err)
	}
	// 启动时编译一次，尽早暴露声明错误
	if _, err := qrg.Service.Pipeline.Compile(resource.NewMemo(), c); err != nil {
		return fmt.Errorf("preset %s: %w", name, err)
	}
	qrg.Presets.Register(&QueryPreset{Name: name, Criteria: []criteria.Criterion{c}})
	return nil
}

// ========== 路由注册 ==========

func (qrg *QueryRouterGroup[T]) RegisterRoutes(basePath string) {
	qrg.RouterGroup.GET(basePath, qrg.HandleList)
	qrg.RouterGroup.POST(basePath+"/query", qrg.HandleQuery)
	qrg.RouterGroup.POST(basePath+"/count", qrg.HandleCount)
	qrg.RouterGroup.GET(basePath+"/:id", qrg.HandleGetByID)
}

// ========== 请求结构 ==========

// listQuery 查询字符串中 RequestParams 以外的参数
type listQuery struct {
	Page     int    `schema:"page"`
	PageSize int    `schema:"page_size"`
	FilterID *uint  `schema:"filter_id"`
	View     string `schema:"view"`
	Method   string `schema:"method"`
}

// QueryRequest POST 请求体，检索参数与 GET 相同，另可附带内联规则
type QueryRequest struct {
	criteria.RequestParams
	Method   string          `json:"method"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	FilterID *uint           `json:"filter_id"`
	View     string          `json:"view"`
	Rules    json.RawMessage `json:"rules"`
}

// ========== 处理器 ==========

func (qrg *QueryRouterGroup[T]) HandleList(c *gin.Context) {
	values, err := queryValues(c)
	if err != nil {
		badRequest(c, "invalid query string", err)
		return
	}
	params, err := criteria.DecodeRequestParams(values)
	if err != nil {
		badRequest(c, "invalid request", err)
		return
	}
	var q listQuery
	if err := criteria.DecodeValues(&q, values); err != nil {
		badRequest(c, "invalid request", err)
		return
	}

	req := QueryRequest{
		RequestParams: params,
		Method:        q.Method,
		Page:          q.Page,
		PageSize:      q.PageSize,
		FilterID:      q.FilterID,
		View:          q.View,
	}
	qrg.list(c, req)
}

func (qrg *QueryRouterGroup[T]) HandleQuery(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request", err)
		return
	}
	qrg.list(c, req)
}

func (qrg *QueryRouterGroup[T]) list(c *gin.Context, req QueryRequest) {
	ctx := c.Request.Context()
	cs, err := qrg.buildCriteria(ctx, c, req)
	if err != nil {
		respondError(c, qrg.Logger, err)
		return
	}

	result, err := qrg.Service.List(ctx, resource.NewMemo(), &service.QueryOptions{
		Page:     req.Page,
		PageSize: req.PageSize,
	}, cs...)
	if err != nil {
		respondError(c, qrg.Logger, err)
		return
	}

	c.JSON(http.StatusOK, QueryResponse[T]{
		Code:       0,
		Message:    "success",
		Data:       result.Data,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	})
}

func (qrg *QueryRouterGroup[T]) HandleCount(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request", err)
		return
	}

	ctx := c.Request.Context()
	cs, err := qrg.buildCriteria(ctx, c, req)
	if err != nil {
		respondError(c, qrg.Logger, err)
		return
	}
	count, err := qrg.Service.Count(ctx, resource.NewMemo(), cs...)
	if err != nil {
		respondError(c, qrg.Logger, err)
		return
	}

	c.JSON(http.StatusOK, CountResponse{Code: 0, Message: "success", Count: count})
}

// HandleGetByID with 与 select 参数同样生效
func (qrg *QueryRouterGroup[T]) HandleGetByID(c *gin.Context) {
	values, err := queryValues(c)
	if err != nil {
		badRequest(c, "invalid query string", err)
		return
	}
	params, err := criteria.DecodeRequestParams(values)
	if err != nil {
		badRequest(c, "invalid request", err)
		return
	}
	// 单条查询只取 with/select
	params = criteria.RequestParams{With: params.With, Select: params.Select}

	result, err := qrg.Service.GetByID(c.Request.Context(), resource.NewMemo(), c.Param("id"), criteria.Request(params))
	if err != nil {
		respondError(c, qrg.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "message": "success", "data": result})
}

// buildCriteria 依次组合：预定义查询、已保存过滤器（或视图默认过滤器）、内联规则、检索参数，整体 AND
func (qrg *QueryRouterGroup[T]) buildCriteria(ctx context.Context, c *gin.Context, req QueryRequest) ([]criteria.Criterion, error) {
	var cs []criteria.Criterion
	if req.Method != "" {
		preset, ok := qrg.Presets.Get(req.Method)
		if !ok {
			return nil, query_error.NewInvalidValue("method", req.Method, errors.New("unknown query method"))
		}
		cs = append(cs, preset.Criteria...)
	}

	saved, err := qrg.savedFilter(ctx, c, req)
	if err != nil {
		return nil, err
	}
	if saved != nil {
		cs = append(cs, saved)
	}

	if len(req.Rules) > 0 && string(req.Rules) != "null" {
		inline, err := criteria.RulesFromJSON(req.Rules)
		if err != nil {
			return nil, err
		}
		cs = append(cs, inline)
	}

	if !req.RequestParams.IsZero() {
		cs = append(cs, criteria.Request(req.RequestParams))
	}
	return cs, nil
}

func (qrg *QueryRouterGroup[T]) savedFilter(ctx context.Context, c *gin.Context, req QueryRequest) (criteria.Criterion, error) {
	name := qrg.Service.Config.Name()
	switch {
	case req.FilterID != nil:
		if qrg.Filters == nil {
			return nil, fmt.Errorf("%w: %d", service.ErrFilterNotFound, *req.FilterID)
		}
		return qrg.Filters.Criterion(ctx, *req.FilterID, name)
	case req.View != "" && qrg.Filters != nil:
		uid, _ := userID(c)
		f, err := qrg.Filters.DefaultFor(ctx, name, req.View, uid)
		if errors.Is(err, service.ErrFilterNotFound) {
			// 视图没有默认过滤器
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return qrg.Filters.Criterion(ctx, f.ID, name)
	}
	return nil, nil
}
