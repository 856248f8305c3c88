package consulclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hewenyu/consul-monitor/internal/config"
	"github.com/hewenyu/consul-monitor/internal/core/model"
)

// ErrUnavailable 表示Consul agent不可达
var ErrUnavailable = errors.New("consul不可用")

// Instance 表示目录中某服务的一个实例
type Instance struct {
	Node      string            `json:"node"`
	ServiceID string            `json:"service_id"`
	Address   string            `json:"address"`
	Port      int               `json:"port"`
	Tags      []string          `json:"tags,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// InstanceKey 唯一标识一个服务实例
// 同名服务可能部署在多个节点上，仅按服务名或服务ID合并
// 会把健康检查归到错误的实例，必须用(节点, 服务ID)二元组定位
type InstanceKey struct {
	Node      string
	ServiceID string
}

// Client 定义Consul注册中心客户端接口
type Client interface {
	// ListServiceNames 获取所有已注册服务的名称列表（升序）
	ListServiceNames(ctx context.Context) ([]string, error)

	// ListInstances 获取指定服务的所有实例
	ListInstances(ctx context.Context, serviceName string) ([]Instance, error)

	// GetHealth 获取指定服务的健康检查，按(节点, 服务ID)分组
	GetHealth(ctx context.Context, serviceName string) (map[InstanceKey][]model.CheckObservation, error)

	// IsAvailable 快速探测Consul是否可达，使用比数据请求更短的超时
	IsAvailable(ctx context.Context) bool
}

// HTTPClient 通过agent HTTP API实现Client接口
type HTTPClient struct {
	baseURL      string
	httpClient   *http.Client
	timeout      time.Duration
	probeTimeout time.Duration
	logger       config.Logger
}

// NewHTTPClient 创建一个新的Consul HTTP客户端
func NewHTTPClient(cfg *config.Config, logger config.Logger) *HTTPClient {
	scheme := cfg.Consul.Scheme
	if scheme == "" {
		scheme = "http"
	}

	timeout := time.Duration(cfg.Consul.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	probeTimeout := time.Duration(cfg.Consul.ProbeTimeoutSeconds) * time.Second
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}

	return &HTTPClient{
		baseURL:      fmt.Sprintf("%s://%s", scheme, cfg.Consul.Address),
		httpClient:   &http.Client{},
		timeout:      timeout,
		probeTimeout: probeTimeout,
		logger:       logger,
	}
}

// getJSON 发起GET请求并解码JSON响应，超时由调用方通过timeout指定
func (c *HTTPClient) getJSON(ctx context.Context, path string, timeout time.Duration, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("构造请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: 请求 %s 返回状态码 %d: %s", ErrUnavailable, path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("解码响应失败: %w", err)
	}

	return nil
}

// ListServiceNames 获取所有已注册服务的名称列表
func (c *HTTPClient) ListServiceNames(ctx context.Context) ([]string, error) {
	// /v1/catalog/services 返回 服务名 -> 标签列表
	var services map[string][]string
	if err := c.getJSON(ctx, "/v1/catalog/services", c.timeout, &services); err != nil {
		c.logger.Error("获取Consul服务列表失败", zap.Error(err))
		return nil, err
	}

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// catalogServiceEntry 对应 /v1/catalog/service/<name> 的单个条目
type catalogServiceEntry struct {
	Node           string            `json:"Node"`
	Address        string            `json:"Address"`
	ServiceID      string            `json:"ServiceID"`
	ServiceName    string            `json:"ServiceName"`
	ServiceAddress string            `json:"ServiceAddress"`
	ServicePort    int               `json:"ServicePort"`
	ServiceTags    []string          `json:"ServiceTags"`
	ServiceMeta    map[string]string `json:"ServiceMeta"`
}

// ListInstances 获取指定服务的所有实例
func (c *HTTPClient) ListInstances(ctx context.Context, serviceName string) ([]Instance, error) {
	path := "/v1/catalog/service/" + url.PathEscape(serviceName)

	var raw []catalogServiceEntry
	if err := c.getJSON(ctx, path, c.timeout, &raw); err != nil {
		c.logger.Error("获取服务实例列表失败",
			zap.String("service", serviceName),
			zap.Error(err))
		return nil, err
	}

	instances := make([]Instance, 0, len(raw))
	for _, entry := range raw {
		address := entry.ServiceAddress
		if address == "" {
			// 服务未声明自身地址时回退到节点地址
			address = entry.Address
		}
		instances = append(instances, Instance{
			Node:      entry.Node,
			ServiceID: entry.ServiceID,
			Address:   address,
			Port:      entry.ServicePort,
			Tags:      entry.ServiceTags,
			Meta:      entry.ServiceMeta,
		})
	}
	return instances, nil
}

// healthServiceEntry 对应 /v1/health/service/<name> 的单个条目
type healthServiceEntry struct {
	Node struct {
		Node    string `json:"Node"`
		Address string `json:"Address"`
	} `json:"Node"`
	Service struct {
		ID      string `json:"ID"`
		Service string `json:"Service"`
	} `json:"Service"`
	Checks []struct {
		Name   string `json:"Name"`
		Status string `json:"Status"`
	} `json:"Checks"`
}

// GetHealth 获取指定服务的健康检查，按(节点, 服务ID)分组
func (c *HTTPClient) GetHealth(ctx context.Context, serviceName string) (map[InstanceKey][]model.CheckObservation, error) {
	path := "/v1/health/service/" + url.PathEscape(serviceName)

	var raw []healthServiceEntry
	if err := c.getJSON(ctx, path, c.timeout, &raw); err != nil {
		c.logger.Error("获取服务健康检查失败",
			zap.String("service", serviceName),
			zap.Error(err))
		return nil, err
	}

	health := make(map[InstanceKey][]model.CheckObservation, len(raw))
	for _, entry := range raw {
		key := InstanceKey{Node: entry.Node.Node, ServiceID: entry.Service.ID}
		checks := make([]model.CheckObservation, 0, len(entry.Checks))
		for _, check := range entry.Checks {
			checks = append(checks, model.CheckObservation{
				CheckName: check.Name,
				Status:    model.Status(check.Status),
			})
		}
		health[key] = checks
	}
	return health, nil
}

// IsAvailable 快速探测Consul是否可达
func (c *HTTPClient) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/agent/self", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	// 丢弃响应体以便连接复用
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode == http.StatusOK
}
