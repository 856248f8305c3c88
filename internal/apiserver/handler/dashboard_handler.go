package handler

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/hewenyu/consul-monitor/internal/core/model"
)

//go:embed templates/index.html
var templateFS embed.FS

var dashboardTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// dashboardData 仪表盘页面渲染数据
type dashboardData struct {
	Services        []model.ServiceGroup
	ConsulAvailable bool
	RefreshSeconds  int
	WindowMinutes   int
}

// dashboard 渲染仪表盘页面
// 页面直接读取数据库中的当前视图，不触发实时刷新（后台轮询保证数据新鲜度）
func (h *MonitorHandler) dashboard(c echo.Context) error {
	ctx := c.Request().Context()

	groups, err := h.store.ListServicesGrouped(ctx)
	if err != nil {
		h.logger.Error("渲染仪表盘时查询分组服务失败", zap.Error(err))
		groups = nil
	}
	h.attachServiceURLs(groups)

	data := dashboardData{
		Services:        groups,
		ConsulAvailable: h.client.IsAvailable(ctx),
		RefreshSeconds:  h.settings.RefreshSeconds(),
		WindowMinutes:   h.settings.WindowMinutes(),
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	if err := dashboardTemplate.Execute(c.Response(), data); err != nil {
		h.logger.Error("渲染仪表盘模板失败", zap.Error(err))
		return err
	}
	return nil
}
