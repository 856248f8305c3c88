package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hewenyu/consul-monitor/internal/config"
	"github.com/hewenyu/consul-monitor/internal/consulclient"
	"github.com/hewenyu/consul-monitor/internal/core/model"
	"github.com/hewenyu/consul-monitor/internal/store"
)

// Reconciler 定义轮询器所需的调和能力
type Reconciler interface {
	Reconcile(ctx context.Context, serviceNames []string) (*model.Snapshot, error)
}

// Poller 周期性驱动 注册中心客户端 -> 调和 -> 存储 的后台轮询器
// 显式持有、显式启停，不依赖任何全局单例
type Poller struct {
	client     consulclient.Client
	reconciler Reconciler
	store      store.Store
	interval   time.Duration
	logger     config.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	loopWG  sync.WaitGroup

	// 合并约束：任何时刻最多一个轮询周期在执行，
	// 周期未结束时到达的tick直接丢弃、不排队
	inFlight atomic.Bool
	cycleWG  sync.WaitGroup
}

// New 创建一个新的Poller
func New(client consulclient.Client, reconciler Reconciler, st store.Store, interval time.Duration, logger config.Logger) *Poller {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Poller{
		client:     client,
		reconciler: reconciler,
		store:      st,
		interval:   interval,
		logger:     logger,
	}
}

// Start 启动后台轮询：先同步执行一次立即轮询，再按固定间隔调度
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Warn("轮询器已在运行")
		return
	}
	p.running = true
	p.stop = make(chan struct{})
	p.mu.Unlock()

	p.logger.Info("启动后台轮询", zap.Duration("interval", p.interval))

	// 启动时立即同步执行一次
	p.runCycle()

	stop := p.stop
	p.loopWG.Add(1)
	go func() {
		defer p.loopWG.Done()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.dispatchCycle()
			case <-stop:
				return
			}
		}
	}()
}

// Stop 停止调度并等待执行中的周期结束
// 不会中断正在执行的周期，只阻止下一次调度；可重复调用
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stop)
	p.mu.Unlock()

	p.logger.Info("停止后台轮询，等待执行中的周期结束...")
	p.loopWG.Wait()
	p.cycleWG.Wait()
	p.logger.Info("后台轮询已停止")
}

// PollNow 同步执行一次轮询周期，供请求路径在响应前拉取最新数据
// 同样遵守合并约束：已有周期在执行时直接返回，不排队
func (p *Poller) PollNow() {
	p.runCycle()
}

// Running 返回轮询器是否处于运行状态
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// dispatchCycle 在独立协程中执行一个周期，已有周期在执行时丢弃本次tick
func (p *Poller) dispatchCycle() {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Warn("上一个轮询周期尚未结束，跳过本次tick")
		return
	}

	p.cycleWG.Add(1)
	go func() {
		defer p.cycleWG.Done()
		defer p.inFlight.Store(false)
		p.pollOnce()
	}()
}

// runCycle 同步执行一个周期，同样遵守合并约束
func (p *Poller) runCycle() {
	if !p.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer p.inFlight.Store(false)
	p.pollOnce()
}

// pollOnce 执行一个完整的轮询周期
// 周期内的任何失败都被完全隔离：记录日志后周期结束，调度器照常继续
func (p *Poller) pollOnce() {
	cycleID := uuid.New().String()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("轮询周期发生panic",
				zap.String("cycle_id", cycleID),
				zap.Any("panic", r))
		}
	}()

	// 停止轮询器不中断执行中的周期，因此不挂接stop通道
	ctx := context.Background()

	if !p.client.IsAvailable(ctx) {
		p.logger.Warn("Consul不可用，跳过本次轮询", zap.String("cycle_id", cycleID))
		return
	}

	names, err := p.client.ListServiceNames(ctx)
	if err != nil {
		p.logger.Error("获取服务名列表失败",
			zap.String("cycle_id", cycleID),
			zap.Error(err))
		return
	}

	snapshot, err := p.reconciler.Reconcile(ctx, names)
	if err != nil {
		p.logger.Error("调和注册中心快照失败",
			zap.String("cycle_id", cycleID),
			zap.Error(err))
		return
	}

	instancesUpdated, servicesUpdated, checksInserted := p.persistSnapshot(ctx, cycleID, snapshot)

	p.logger.Info("轮询周期完成",
		zap.String("cycle_id", cycleID),
		zap.Int("instances_updated", instancesUpdated),
		zap.Int("services_updated", servicesUpdated),
		zap.Int("health_checks_inserted", checksInserted))
}

// persistSnapshot 把快照写入存储
// 单个实体写入失败只跳过该实体：服务的upsert失败时不再追加它的检查，
// 保证不会出现"检查已写入但服务行缺失"的半提交状态
func (p *Poller) persistSnapshot(ctx context.Context, cycleID string, snapshot *model.Snapshot) (instancesUpdated, servicesUpdated, checksInserted int) {
	for address, inst := range snapshot.Instances {
		if err := p.store.UpsertInstance(ctx, address, inst.HealthStatus); err != nil {
			p.logger.Error("写入实例失败",
				zap.String("cycle_id", cycleID),
				zap.String("address", address),
				zap.Error(err))
			continue
		}
		if err := p.store.AppendInstanceHealth(ctx, address, inst.HealthStatus); err != nil {
			p.logger.Error("追加实例健康记录失败",
				zap.String("cycle_id", cycleID),
				zap.String("address", address),
				zap.Error(err))
			continue
		}
		instancesUpdated++
	}

	for id, record := range snapshot.Services {
		if err := p.store.UpsertService(ctx, record.Service); err != nil {
			p.logger.Error("写入服务失败，跳过其健康检查",
				zap.String("cycle_id", cycleID),
				zap.String("service_id", id),
				zap.Error(err))
			continue
		}
		servicesUpdated++

		for _, check := range record.Checks {
			if err := p.store.AppendHealthCheck(ctx, id, check.CheckName, check.Status); err != nil {
				p.logger.Error("追加健康检查记录失败",
					zap.String("cycle_id", cycleID),
					zap.String("service_id", id),
					zap.String("check", check.CheckName),
					zap.Error(err))
				continue
			}
			checksInserted++
		}
	}

	return instancesUpdated, servicesUpdated, checksInserted
}
