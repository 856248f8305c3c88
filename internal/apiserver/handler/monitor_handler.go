package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/hewenyu/consul-monitor/internal/aggregator"
	"github.com/hewenyu/consul-monitor/internal/config"
	"github.com/hewenyu/consul-monitor/internal/consulclient"
	"github.com/hewenyu/consul-monitor/internal/core/model"
	"github.com/hewenyu/consul-monitor/internal/store"
)

// Refresher 定义请求路径触发即时轮询所需的能力
type Refresher interface {
	// PollNow 同步执行一次轮询周期（已有周期在执行时直接返回）
	PollNow()
	// Running 返回后台轮询是否在运行
	Running() bool
}

// MonitorHandler 处理监控相关的HTTP请求
type MonitorHandler struct {
	store     store.Store
	client    consulclient.Client
	refresher Refresher
	settings  *config.Settings
	domain    string
	logger    config.Logger
}

// NewMonitorHandler 创建一个新的监控处理器
func NewMonitorHandler(st store.Store, client consulclient.Client, refresher Refresher, settings *config.Settings, domain string, logger config.Logger) *MonitorHandler {
	return &MonitorHandler{
		store:     st,
		client:    client,
		refresher: refresher,
		settings:  settings,
		domain:    domain,
		logger:    logger,
	}
}

// RegisterRoutes 注册API路由
func (h *MonitorHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.dashboard)
	e.GET("/health", h.healthCheck)

	api := e.Group("/api/v1")
	api.GET("/services", h.listServices)
	api.GET("/services/history", h.serviceHistory)
	api.GET("/settings", h.getSettings)
	api.PUT("/settings", h.updateSettings)
}

// servicesResponse 服务列表响应
// 实时拉取失败时status为error并附带错误信息，但仍返回缓存数据
type servicesResponse struct {
	Status          string               `json:"status"`
	ConsulAvailable bool                 `json:"consul_available"`
	Services        []model.ServiceGroup `json:"services"`
	Error           string               `json:"error,omitempty"`
}

// listServices 处理查询服务列表请求
// 先尝试从Consul拉取最新数据，失败则降级为返回数据库中的缓存数据
func (h *MonitorHandler) listServices(c echo.Context) error {
	ctx := c.Request().Context()

	consulAvailable := h.client.IsAvailable(ctx)
	if consulAvailable {
		// 实时刷新经由轮询器的合并约束，保证写入始终单线执行
		h.refresher.PollNow()
	}

	groups, err := h.store.ListServicesGrouped(ctx)
	if err != nil {
		h.logger.Error("查询分组服务失败", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, servicesResponse{
			Status:          "error",
			ConsulAvailable: consulAvailable,
			Services:        []model.ServiceGroup{},
			Error:           err.Error(),
		})
	}
	if groups == nil {
		groups = []model.ServiceGroup{}
	}

	h.attachServiceURLs(groups)

	resp := servicesResponse{
		Status:          "success",
		ConsulAvailable: consulAvailable,
		Services:        groups,
	}
	if !consulAvailable {
		// 降级为缓存数据
		resp.Status = "error"
		resp.Error = "consul不可用，返回缓存数据"
	}
	return c.JSON(http.StatusOK, resp)
}

// attachServiceURLs 为有端口的实例拼接服务URL
func (h *MonitorHandler) attachServiceURLs(groups []model.ServiceGroup) {
	for gi := range groups {
		for ii := range groups[gi].Instances {
			inst := &groups[gi].Instances[ii]
			if inst.Port > 0 {
				inst.URL = fmt.Sprintf("http://%s.%s:%d", groups[gi].Name, h.domain, inst.Port)
			}
		}
	}
}

// historyResponse 历史查询响应
type historyResponse struct {
	Service       string              `json:"service"`
	Address       string              `json:"address"`
	WindowMinutes int                 `json:"window_minutes"`
	SpanHours     int                 `json:"span_hours"`
	Buckets       []aggregator.Bucket `json:"buckets"`
}

// 历史图表覆盖的尾随时间跨度
const historySpanHours = 24

// serviceHistory 处理查询服务历史请求，返回按窗口聚合后的序列
func (h *MonitorHandler) serviceHistory(c echo.Context) error {
	serviceName := c.QueryParam("service")
	address := c.QueryParam("address")
	if serviceName == "" || address == "" {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "service和address参数不能为空"))
	}

	history, err := h.store.History(c.Request().Context(), serviceName, address, historySpanHours)
	if err != nil {
		h.logger.Error("查询健康历史失败",
			zap.String("service", serviceName),
			zap.String("address", address),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse(http.StatusInternalServerError, "查询健康历史失败: "+err.Error()))
	}

	windowMinutes := h.settings.WindowMinutes()
	buckets := aggregator.Bucketize(history, windowMinutes, time.Now().UTC(), historySpanHours)

	return c.JSON(http.StatusOK, historyResponse{
		Service:       serviceName,
		Address:       address,
		WindowMinutes: windowMinutes,
		SpanHours:     historySpanHours,
		Buckets:       buckets,
	})
}

// healthCheck 处理健康检查请求：存储可达、注册中心可达、轮询器运行中
func (h *MonitorHandler) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbAvailable := h.store.IsAvailable(ctx)
	consulAvailable := h.client.IsAvailable(ctx)
	pollerRunning := h.refresher.Running()

	status := "healthy"
	code := http.StatusOK
	if !dbAvailable || !consulAvailable || !pollerRunning {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	return c.JSON(code, map[string]interface{}{
		"status":    status,
		"consul":    availability(consulAvailable, "connected", "disconnected"),
		"database":  availability(dbAvailable, "available", "unavailable"),
		"poller":    availability(pollerRunning, "running", "stopped"),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func availability(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// 返回成功响应
func successResponse(code int, message string, data interface{}) *model.ApiResponse {
	return &model.ApiResponse{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// 返回错误响应
func errorResponse(code int, message string) *model.ApiResponse {
	return &model.ApiResponse{
		Code:    code,
		Message: message,
	}
}
