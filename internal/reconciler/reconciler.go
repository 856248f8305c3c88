package reconciler

import (
	"context"

	"go.uber.org/zap"

	"github.com/hewenyu/consul-monitor/internal/config"
	"github.com/hewenyu/consul-monitor/internal/consulclient"
	"github.com/hewenyu/consul-monitor/internal/core/model"
)

// Reconciler 将注册中心的原始响应调和为规范化的实例/服务模型
type Reconciler struct {
	client consulclient.Client
	logger config.Logger
}

// New 创建一个新的Reconciler
func New(client consulclient.Client, logger config.Logger) *Reconciler {
	return &Reconciler{
		client: client,
		logger: logger,
	}
}

// Reconcile 根据服务名列表构建一次完整快照
// 每个服务名两次往返：实例列表和健康检查。任何一个服务的请求失败
// 只跳过该服务并记录告警，不会中断整个快照的构建
func (r *Reconciler) Reconcile(ctx context.Context, serviceNames []string) (*model.Snapshot, error) {
	snapshot := &model.Snapshot{
		Services:  make(map[string]*model.ServiceRecord),
		Instances: make(map[string]*model.InstanceRecord),
	}

	// 实例地址 -> 当次观察到的全部检查，用于计算实例级综合状态
	instanceChecks := make(map[string][]model.CheckObservation)

	for _, name := range serviceNames {
		instances, err := r.client.ListInstances(ctx, name)
		if err != nil {
			r.logger.Warn("获取服务实例失败，跳过该服务",
				zap.String("service", name),
				zap.Error(err))
			continue
		}

		health, err := r.client.GetHealth(ctx, name)
		if err != nil {
			r.logger.Warn("获取服务健康检查失败，跳过该服务",
				zap.String("service", name),
				zap.Error(err))
			continue
		}

		for _, inst := range instances {
			// 按(节点, 服务ID)定位该实例自己的检查
			checks := health[consulclient.InstanceKey{Node: inst.Node, ServiceID: inst.ServiceID}]

			snapshot.Services[inst.ServiceID] = &model.ServiceRecord{
				Service: &model.Service{
					ID:      inst.ServiceID,
					Name:    name,
					Address: inst.Address,
					Port:    inst.Port,
					Tags:    inst.Tags,
					Meta:    inst.Meta,
				},
				Checks: checks,
			}

			record, ok := snapshot.Instances[inst.Address]
			if !ok {
				record = &model.InstanceRecord{Address: inst.Address}
				snapshot.Instances[inst.Address] = record
			}
			record.ServiceIDs = append(record.ServiceIDs, inst.ServiceID)
			instanceChecks[inst.Address] = append(instanceChecks[inst.Address], checks...)
		}
	}

	// 自底向上计算实例级综合状态：
	// 取该实例所有服务全部检查中最严重的状态；
	// 没有任何检查时默认passing，检查全部不可识别时为unknown
	for address, record := range snapshot.Instances {
		record.HealthStatus = model.Composite(instanceChecks[address])
	}

	return snapshot, nil
}
