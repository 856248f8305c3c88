package store

import (
	"context"
	"errors"

	"github.com/hewenyu/consul-monitor/internal/core/model"
)

// ErrUnavailable 表示存储引擎不可达
var ErrUnavailable = errors.New("存储不可用")

// Store 表示健康历史存储接口
// 当前状态表（instances、services）使用幂等的upsert语义，
// 历史表（health_checks、instance_health）只追加、永不更新
type Store interface {
	// UpsertInstance 插入或更新实例记录
	// 更新时覆盖健康状态和last_seen，保留first_seen
	UpsertInstance(ctx context.Context, address string, status model.Status) error

	// UpsertService 插入或更新服务记录
	// 更新时覆盖名称/地址/端口/标签/元数据和last_seen，保留first_seen；
	// 地址跨轮询变化（实例迁移）是正常情况
	UpsertService(ctx context.Context, service *model.Service) error

	// AppendHealthCheck 追加一条服务健康检查历史记录，写入时打时间戳
	AppendHealthCheck(ctx context.Context, serviceID, checkName string, status model.Status) error

	// AppendInstanceHealth 追加一条实例健康历史记录，写入时打时间戳
	AppendInstanceHealth(ctx context.Context, address string, status model.Status) error

	// ListServicesGrouped 按服务名分组返回所有服务及综合状态，供仪表盘使用
	ListServicesGrouped(ctx context.Context) ([]model.ServiceGroup, error)

	// History 返回指定服务实例在尾随时间窗口内的原始历史记录，按时间升序
	History(ctx context.Context, serviceName, instanceAddress string, hours int) ([]model.Observation, error)

	// IsAvailable 轻量探测存储是否可用
	IsAvailable(ctx context.Context) bool

	// Close 关闭存储
	Close() error
}
