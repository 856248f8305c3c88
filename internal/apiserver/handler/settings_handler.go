package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hewenyu/consul-monitor/internal/config"
)

// settingsPayload 仪表盘设置的请求/响应体
// 更新时两个字段都可选，缺省的字段保持不变
type settingsPayload struct {
	RefreshSeconds *int `json:"refresh_seconds,omitempty"`
	WindowMinutes  *int `json:"window_minutes,omitempty"`
}

// getSettings 返回当前的仪表盘设置
func (h *MonitorHandler) getSettings(c echo.Context) error {
	refresh := h.settings.RefreshSeconds()
	window := h.settings.WindowMinutes()
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "查询成功", settingsPayload{
		RefreshSeconds: &refresh,
		WindowMinutes:  &window,
	}))
}

// updateSettings 更新仪表盘设置
// 枚举校验失败返回400并保留原值；两个字段独立生效，
// 先校验后应用，避免一个字段合法另一个非法时产生部分更新
func (h *MonitorHandler) updateSettings(c echo.Context) error {
	var payload settingsPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "解析请求体失败: "+err.Error()))
	}
	if payload.RefreshSeconds == nil && payload.WindowMinutes == nil {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "至少需要提供一个设置项"))
	}

	// 全部校验通过后再应用
	if payload.RefreshSeconds != nil {
		if err := config.ValidateRefreshSeconds(*payload.RefreshSeconds); err != nil {
			return h.settingsError(c, err)
		}
	}
	if payload.WindowMinutes != nil {
		if err := config.ValidateWindowMinutes(*payload.WindowMinutes); err != nil {
			return h.settingsError(c, err)
		}
	}

	if payload.RefreshSeconds != nil {
		if err := h.settings.SetRefreshSeconds(*payload.RefreshSeconds); err != nil {
			return h.settingsError(c, err)
		}
	}
	if payload.WindowMinutes != nil {
		if err := h.settings.SetWindowMinutes(*payload.WindowMinutes); err != nil {
			return h.settingsError(c, err)
		}
	}

	refresh := h.settings.RefreshSeconds()
	window := h.settings.WindowMinutes()
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "更新成功", settingsPayload{
		RefreshSeconds: &refresh,
		WindowMinutes:  &window,
	}))
}

// settingsError 把设置校验错误映射为HTTP响应
func (h *MonitorHandler) settingsError(c echo.Context, err error) error {
	if errors.Is(err, config.ErrInvalidSetting) {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, err.Error()))
	}
	return c.JSON(http.StatusInternalServerError, errorResponse(http.StatusInternalServerError, err.Error()))
}
