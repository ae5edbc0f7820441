package http_router

import (
	"encoding/json"
	"net/http"

	"CriteriaManager/service"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// ========== 请求/响应结构 ==========

type FilterRequest struct {
	Name       string          `json:"name" binding:"required"`
	Resource   string          `json:"resource" binding:"required"`
	Rules      json.RawMessage `json:"rules" binding:"required"`
	IsShared   bool            `json:"is_shared"`
	IsReadonly bool            `json:"is_readonly"`
}

type DefaultRequest struct {
	View string `json:"view" binding:"required"`
	// System 设为所有用户的默认值
	System bool `json:"system"`
}

type WriteResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ========== 过滤器路由组 ==========

// FilterRouterGroup 已保存过滤器的增删查。调用方身份取自 X-User-ID，缺失时视为系统操作
type FilterRouterGroup struct {
	RouterGroup *gin.RouterGroup
	Store       *service.FilterStore
	Logger      *zap.Logger
}

func NewFilterRouterGroup(rg *gin.RouterGroup, store *service.FilterStore, logger *zap.Logger) *FilterRouterGroup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilterRouterGroup{RouterGroup: rg, Store: store, Logger: logger}
}

func (frg *FilterRouterGroup) RegisterRoutes(basePath string) {
	frg.RouterGroup.POST(basePath, frg.HandleCreate)
	frg.RouterGroup.GET(basePath, frg.HandleVisible)
	frg.RouterGroup.GET(basePath+"/:id", frg.HandleGet)
	frg.RouterGroup.PUT(basePath+"/:id", frg.HandleUpdate)
	frg.RouterGroup.DELETE(basePath+"/:id", frg.HandleDelete)
	frg.RouterGroup.PUT(basePath+"/:id/default", frg.HandleMarkDefault)
}

func filterID(c *gin.Context) (uint, bool) {
	id, err := cast.ToUintE(c.Param("id"))
	if err != nil || id == 0 {
		badRequest(c, "invalid filter id", err)
		return 0, false
	}
	return id, true
}

// ========== 处理器 ==========

// HandleCreate 保存新过滤器，返回规范化后的规则
func (frg *FilterRouterGroup) HandleCreate(c *gin.Context) {
	var req FilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request", err)
		return
	}

	f := &service.Filter{
		Name:       req.Name,
		Resource:   req.Resource,
		Rules:      string(req.Rules),
		IsShared:   req.IsShared,
		IsReadonly: req.IsReadonly,
	}
	if uid, ok := userID(c); ok {
		f.UserID = &uid
	}
	if err := frg.Store.Save(c.Request.Context(), f); err != nil {
		respondError(c, frg.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, WriteResponse{Code: 0, Message: "success", Data: f})
}

// HandleUpdate 只能修改自己的过滤器
func (frg *FilterRouterGroup) HandleUpdate(c *gin.Context) {
	id, ok := filterID(c)
	if !ok {
		return
	}
	var req FilterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request", err)
		return
	}

	ctx := c.Request.Context()
	existing, err := frg.Store.Get(ctx, id)
	if err != nil {
		respondError(c, frg.Logger, err)
		return
	}
	if !frg.owns(c, existing) {
		return
	}

	existing.Name = req.Name
	existing.Resource = req.Resource
	existing.Rules = string(req.Rules)
	existing.IsShared = req.IsShared
	if err := frg.Store.Save(ctx, existing); err != nil {
		respondError(c, frg.Logger, err)
		return
	}
	c.JSON(http.StatusOK, WriteResponse{Code: 0, Message: "success", Data: existing})
}

func (frg *FilterRouterGroup) HandleGet(c *gin.Context) {
	id, ok := filterID(c)
	if !ok {
		return
	}
	f, err := frg.Store.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, frg.Logger, err)
		return
	}
	c.JSON(http.StatusOK, WriteResponse{Code: 0, Message: "success", Data: f})
}

// HandleVisible GET /filters?resource=contacts
func (frg *FilterRouterGroup) HandleVisible(c *gin.Context) {
	name := c.Query("resource")
	if name == "" {
		badRequest(c, "resource is required", nil)
		return
	}
	uid, _ := userID(c)
	filters, err := frg.Store.Visible(c.Request.Context(), name, uid)
	if err != nil {
		respondError(c, frg.Logger, err)
		return
	}
	c.JSON(http.StatusOK, WriteResponse{Code: 0, Message: "success", Data: filters})
}

func (frg *FilterRouterGroup) HandleDelete(c *gin.Context) {
	id, ok := filterID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	existing, err := frg.Store.Get(ctx, id)
	if err != nil {
		respondError(c, frg.Logger, err)
		return
	}
	if existing.UserID != nil && !frg.owns(c, existing) {
		return
	}
	if err := frg.Store.Delete(ctx, id); err != nil {
		respondError(c, frg.Logger, err)
		return
	}
	c.JSON(http.StatusOK, WriteResponse{Code: 0, Message: "success"})
}

func (frg *FilterRouterGroup) HandleMarkDefault(c *gin.Context) {
	id, ok := filterID(c)
	if !ok {
		return
	}
	var req DefaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request", err)
		return
	}

	ctx := c.Request.Context()
	existing, err := frg.Store.Get(ctx, id)
	if err != nil {
		respondError(c, frg.Logger, err)
		return
	}
	if !frg.canDefault(c, existing, req.System) {
		return
	}

	var owner *uint
	if uid, ok := userID(c); ok && !req.System {
		owner = &uid
	}
	if err := frg.Store.MarkDefault(ctx, id, req.View, owner); err != nil {
		respondError(c, frg.Logger, err)
		return
	}
	c.JSON(http.StatusOK, WriteResponse{Code: 0, Message: "success"})
}

// owns 调用方是否为过滤器所有者，否则写出 403
func (frg *FilterRouterGroup) owns(c *gin.Context, f *service.Filter) bool {
	uid, ok := userID(c)
	if f.UserID == nil && !ok {
		return true
	}
	if f.UserID != nil && ok && *f.UserID == uid {
		return true
	}
	c.JSON(http.StatusForbidden, ErrorResponse{Code: http.StatusForbidden, Message: "filter belongs to another user"})
	return false
}

// canDefault 系统过滤器与自己的过滤器都可设为默认；
// 他人的共享过滤器只能设为个人默认
func (frg *FilterRouterGroup) canDefault(c *gin.Context, f *service.Filter, system bool) bool {
	if f.UserID == nil {
		return true
	}
	if uid, ok := userID(c); ok && *f.UserID == uid {
		return true
	}
	if f.IsShared && !system {
		return true
	}
	c.JSON(http.StatusForbidden, ErrorResponse{Code: http.StatusForbidden, Message: "filter belongs to another user"})
	return false
}
