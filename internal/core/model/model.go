package model

import (
	"time"
)

// Instance 表示一个网络实例（地址），可承载多个服务
type Instance struct {
	Address      string    `json:"address"`
	HealthStatus Status    `json:"health_status"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}

// Service 表示注册中心里的一个服务
type Service struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Address   string            `json:"address"`
	Port      int               `json:"port,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	FirstSeen time.Time         `json:"first_seen"`
	LastSeen  time.Time         `json:"last_seen"`
}

// CheckObservation 表示单次轮询中观察到的一项健康检查
type CheckObservation struct {
	CheckName string `json:"check_name"`
	Status    Status `json:"status"`
}

// Observation 表示历史表中的一条状态记录
type Observation struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ServiceRecord 表示调和后的服务及其当次观察到的健康检查
type ServiceRecord struct {
	Service *Service           `json:"service"`
	Checks  []CheckObservation `json:"checks"`
}

// InstanceRecord 表示调和后的实例及其综合健康状态
type InstanceRecord struct {
	Address      string   `json:"address"`
	HealthStatus Status   `json:"health_status"`
	ServiceIDs   []string `json:"service_ids"`
}

// Snapshot 表示一次轮询调和后的完整快照
// 快照是完全物化的：Store看到的是一个一致的整体，而非流式的部分结果
type Snapshot struct {
	Services  map[string]*ServiceRecord  `json:"services"`  // key为服务ID
	Instances map[string]*InstanceRecord `json:"instances"` // key为实例地址
}

// GroupedInstance 表示按服务名分组视图中的一个实例条目
type GroupedInstance struct {
	ID            string            `json:"id"`
	Address       string            `json:"address"`
	Port          int               `json:"port,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Meta          map[string]string `json:"meta,omitempty"`
	CurrentStatus Status            `json:"current_status"`
	LastCheck     time.Time         `json:"last_check,omitempty"`
	URL           string            `json:"url,omitempty"`
}

// ServiceGroup 表示按服务名分组的服务及其综合状态
type ServiceGroup struct {
	Name            string            `json:"name"`
	Instances       []GroupedInstance `json:"instances"`
	CompositeStatus Status            `json:"composite_status"`
}

// ApiResponse 表示通用API响应
type ApiResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
