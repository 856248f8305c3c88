package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/hewenyu/consul-monitor/internal/config"
	"github.com/hewenyu/consul-monitor/internal/consulclient"
	"github.com/hewenyu/consul-monitor/internal/core/model"
)

// MockLogger 实现config.Logger接口，用于测试
type MockLogger struct{}

func (l *MockLogger) Debug(msg string, fields ...zapcore.Field) {}
func (l *MockLogger) Info(msg string, fields ...zapcore.Field)  {}
func (l *MockLogger) Warn(msg string, fields ...zapcore.Field)  {}
func (l *MockLogger) Error(msg string, fields ...zapcore.Field) {}
func (l *MockLogger) Fatal(msg string, fields ...zapcore.Field) {}

// mockStore 实现store.Store接口
type mockStore struct {
	groups    []model.ServiceGroup
	history   []model.Observation
	available bool
}

func (m *mockStore) UpsertInstance(ctx context.Context, address string, status model.Status) error {
	return nil
}

func (m *mockStore) UpsertService(ctx context.Context, service *model.Service) error {
	return nil
}

func (m *mockStore) AppendHealthCheck(ctx context.Context, serviceID, checkName string, status model.Status) error {
	return nil
}

func (m *mockStore) AppendInstanceHealth(ctx context.Context, address string, status model.Status) error {
	return nil
}

func (m *mockStore) ListServicesGrouped(ctx context.Context) ([]model.ServiceGroup, error) {
	return m.groups, nil
}

func (m *mockStore) History(ctx context.Context, serviceName, instanceAddress string, hours int) ([]model.Observation, error) {
	return m.history, nil
}

func (m *mockStore) IsAvailable(ctx context.Context) bool { return m.available }

func (m *mockStore) Close() error { return nil }

// mockConsul 实现consulclient.Client接口
type mockConsul struct {
	available bool
}

func (m *mockConsul) ListServiceNames(ctx context.Context) ([]string, error) { return nil, nil }

func (m *mockConsul) ListInstances(ctx context.Context, serviceName string) ([]consulclient.Instance, error) {
	return nil, nil
}

func (m *mockConsul) GetHealth(ctx context.Context, serviceName string) (map[consulclient.InstanceKey][]model.CheckObservation, error) {
	return nil, nil
}

func (m *mockConsul) IsAvailable(ctx context.Context) bool { return m.available }

// mockRefresher 实现Refresher接口
type mockRefresher struct {
	polls   int
	running bool
}

func (m *mockRefresher) PollNow()      { m.polls++ }
func (m *mockRefresher) Running() bool { return m.running }

type testEnv struct {
	e         *echo.Echo
	store     *mockStore
	consul    *mockConsul
	refresher *mockRefresher
	settings  *config.Settings
}

// newTestEnv 组装带默认mock的测试环境
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	settings, err := config.NewSettings(60, 15)
	require.NoError(t, err)

	env := &testEnv{
		e:         echo.New(),
		store:     &mockStore{available: true},
		consul:    &mockConsul{available: true},
		refresher: &mockRefresher{running: true},
		settings:  settings,
	}

	h := NewMonitorHandler(env.store, env.consul, env.refresher, settings, "service.dc1.consul", &MockLogger{})
	h.RegisterRoutes(env.e)
	return env
}

func (env *testEnv) request(method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func sampleGroups() []model.ServiceGroup {
	return []model.ServiceGroup{
		{
			Name:            "web",
			CompositeStatus: model.StatusPassing,
			Instances: []model.GroupedInstance{
				{ID: "web-1", Address: "10.0.0.1", Port: 8080, CurrentStatus: model.StatusPassing},
				{ID: "web-2", Address: "10.0.0.2", CurrentStatus: model.StatusPassing},
			},
		},
	}
}

func TestListServicesLiveRefresh(t *testing.T) {
	env := newTestEnv(t)
	env.store.groups = sampleGroups()

	rec := env.request(http.MethodGet, "/api/v1/services", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Consul可用时应先触发一次即时轮询
	assert.Equal(t, 1, env.refresher.polls)

	var resp struct {
		Status          string               `json:"status"`
		ConsulAvailable bool                 `json:"consul_available"`
		Services        []model.ServiceGroup `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.True(t, resp.ConsulAvailable)
	require.Len(t, resp.Services, 1)

	// 有端口的实例拼接URL，无端口的不拼接
	assert.Equal(t, "http://web.service.dc1.consul:8080", resp.Services[0].Instances[0].URL)
	assert.Empty(t, resp.Services[0].Instances[1].URL)
}

func TestListServicesDegradedWhenConsulDown(t *testing.T) {
	env := newTestEnv(t)
	env.consul.available = false
	env.store.groups = sampleGroups()

	rec := env.request(http.MethodGet, "/api/v1/services", "")
	assert.Equal(t, http.StatusOK, rec.Code, "降级时仍返回200与缓存数据")

	// Consul不可用时不触发即时轮询
	assert.Equal(t, 0, env.refresher.polls)

	var resp struct {
		Status          string               `json:"status"`
		ConsulAvailable bool                 `json:"consul_available"`
		Services        []model.ServiceGroup `json:"services"`
		Error           string               `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.ConsulAvailable)
	assert.NotEmpty(t, resp.Error)
	assert.Len(t, resp.Services, 1, "即使拉取失败也返回缓存的服务数据")
}

func TestServiceHistory(t *testing.T) {
	env := newTestEnv(t)
	env.store.history = []model.Observation{
		{Status: model.StatusPassing, Timestamp: time.Now().UTC().Add(-5 * time.Minute)},
	}

	rec := env.request(http.MethodGet, "/api/v1/services/history?service=web&address=10.0.0.1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Service       string `json:"service"`
		Address       string `json:"address"`
		WindowMinutes int    `json:"window_minutes"`
		Buckets       []struct {
			PassingPct float64 `json:"passing_pct"`
		} `json:"buckets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "web", resp.Service)
	assert.Equal(t, "10.0.0.1", resp.Address)
	assert.Equal(t, 15, resp.WindowMinutes)

	// 24小时 / 15分钟窗口 = 96个桶
	assert.Len(t, resp.Buckets, 96)
	assert.Equal(t, 100.0, resp.Buckets[len(resp.Buckets)-1].PassingPct)
}

func TestServiceHistoryMissingParams(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(http.MethodGet, "/api/v1/services/history?service=web", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.request(http.MethodGet, "/api/v1/services/history?address=10.0.0.1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthCheckHealthy(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "connected", resp["consul"])
	assert.Equal(t, "available", resp["database"])
	assert.Equal(t, "running", resp["poller"])
	assert.Contains(t, resp, "timestamp")
}

func TestHealthCheckUnhealthy(t *testing.T) {
	env := newTestEnv(t)
	env.store.available = false
	env.refresher.running = false

	rec := env.request(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp["status"])
	assert.Equal(t, "unavailable", resp["database"])
	assert.Equal(t, "stopped", resp["poller"])
}

func TestGetSettings(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(http.MethodGet, "/api/v1/settings", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data settingsPayload `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.RefreshSeconds)
	require.NotNil(t, resp.Data.WindowMinutes)
	assert.Equal(t, 60, *resp.Data.RefreshSeconds)
	assert.Equal(t, 15, *resp.Data.WindowMinutes)
}

func TestUpdateSettings(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(http.MethodPut, "/api/v1/settings", `{"refresh_seconds": 120, "window_minutes": 30}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 120, env.settings.RefreshSeconds())
	assert.Equal(t, 30, env.settings.WindowMinutes())
}

func TestUpdateSettingsRejectsInvalid(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(http.MethodPut, "/api/v1/settings", `{"refresh_seconds": 90}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 60, env.settings.RefreshSeconds(), "非法值被拒绝后应保留原值")

	// 一个合法一个非法：整个请求拒绝，不产生部分更新
	rec = env.request(http.MethodPut, "/api/v1/settings", `{"refresh_seconds": 120, "window_minutes": 7}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 60, env.settings.RefreshSeconds())
	assert.Equal(t, 15, env.settings.WindowMinutes())
}

func TestUpdateSettingsEmptyBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(http.MethodPut, "/api/v1/settings", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.store.groups = sampleGroups()

	rec := env.request(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "web", "页面应包含服务名")
	assert.Contains(t, body, "badge-passing", "页面应包含状态标识")
	assert.Contains(t, body, `content="60"`, "页面应按设置自动刷新")
}

func TestDashboardWhenConsulDown(t *testing.T) {
	env := newTestEnv(t)
	env.consul.available = false

	rec := env.request(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Consul不可用")
}
