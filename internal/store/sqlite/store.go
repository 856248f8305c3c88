package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	// 纯Go实现的SQLite驱动
	_ "modernc.org/sqlite"

	"github.com/hewenyu/consul-monitor/internal/config"
	"github.com/hewenyu/consul-monitor/internal/core/model"
	"github.com/hewenyu/consul-monitor/internal/store"
)

// 时间戳以UTC文本形式存储，便于SQL区间比较
const timeLayout = "2006-01-02 15:04:05"

// Store 实现基于SQLite的store.Store
type Store struct {
	db     *sql.DB
	logger config.Logger
	now    func() time.Time // 测试中可替换
}

// New 打开（必要时创建）SQLite数据库并初始化表结构
func New(path string, logger config.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开SQLite数据库失败: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接SQLite数据库失败: %w", err)
	}

	// WAL允许读写并发，busy_timeout让写入突发期间的并发请求等锁而非立刻失败
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置WAL模式失败: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置busy_timeout失败: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// initSchema 创建表和索引
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS instances (
		address TEXT PRIMARY KEY,
		health_status TEXT NOT NULL DEFAULT 'unknown',
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS services (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT REFERENCES instances(address) ON DELETE CASCADE,
		port INTEGER,
		tags TEXT,
		meta TEXT,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS health_checks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		service_id TEXT NOT NULL,
		check_name TEXT,
		status TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (service_id) REFERENCES services (id)
	);

	CREATE TABLE IF NOT EXISTS instance_health (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		address TEXT NOT NULL REFERENCES instances(address) ON DELETE CASCADE,
		health_status TEXT NOT NULL,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_health_checks_service_timestamp
		ON health_checks (service_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_health_checks_timestamp
		ON health_checks (timestamp);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("初始化表结构失败: %w", err)
	}
	return nil
}

// UpsertInstance 插入或更新实例记录
func (s *Store) UpsertInstance(ctx context.Context, address string, status model.Status) error {
	now := s.now().UTC().Format(timeLayout)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (address, health_status, first_seen, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			health_status = excluded.health_status,
			last_seen = excluded.last_seen
	`, address, string(status), now, now)
	if err != nil {
		return fmt.Errorf("upsert实例 %s 失败: %w", address, err)
	}
	return nil
}

// UpsertService 插入或更新服务记录
func (s *Store) UpsertService(ctx context.Context, service *model.Service) error {
	tags, err := json.Marshal(service.Tags)
	if err != nil {
		return fmt.Errorf("序列化服务标签失败: %w", err)
	}
	meta, err := json.Marshal(service.Meta)
	if err != nil {
		return fmt.Errorf("序列化服务元数据失败: %w", err)
	}

	var port sql.NullInt64
	if service.Port > 0 {
		port = sql.NullInt64{Int64: int64(service.Port), Valid: true}
	}

	now := s.now().UTC().Format(timeLayout)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO services (id, name, address, port, tags, meta, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			port = excluded.port,
			tags = excluded.tags,
			meta = excluded.meta,
			last_seen = excluded.last_seen
	`, service.ID, service.Name, service.Address, port, string(tags), string(meta), now, now)
	if err != nil {
		return fmt.Errorf("upsert服务 %s 失败: %w", service.ID, err)
	}
	return nil
}

// AppendHealthCheck 追加一条服务健康检查历史记录
// 纯插入：即使状态与上次相同，每次轮询也会产生新行
func (s *Store) AppendHealthCheck(ctx context.Context, serviceID, checkName string, status model.Status) error {
	now := s.now().UTC().Format(timeLayout)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO health_checks (service_id, check_name, status, timestamp)
		VALUES (?, ?, ?, ?)
	`, serviceID, checkName, string(status), now)
	if err != nil {
		return fmt.Errorf("追加健康检查记录失败: %w", err)
	}
	return nil
}

// AppendInstanceHealth 追加一条实例健康历史记录
func (s *Store) AppendInstanceHealth(ctx context.Context, address string, status model.Status) error {
	now := s.now().UTC().Format(timeLayout)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instance_health (address, health_status, timestamp)
		VALUES (?, ?, ?)
	`, address, string(status), now)
	if err != nil {
		return fmt.Errorf("追加实例健康记录失败: %w", err)
	}
	return nil
}

// ListServicesGrouped 按服务名分组返回所有服务及综合状态
func (s *Store) ListServicesGrouped(ctx context.Context) ([]model.ServiceGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH latest_health AS (
			SELECT service_id, status, MAX(timestamp) AS last_check
			FROM health_checks
			GROUP BY service_id
		)
		SELECT s.name, s.id, s.address, s.port, s.tags, s.meta,
		       lh.status, lh.last_check
		FROM services s
		LEFT JOIN latest_health lh ON s.id = lh.service_id
		ORDER BY s.name, s.address, s.id
	`)
	if err != nil {
		return nil, fmt.Errorf("查询分组服务失败: %w", err)
	}
	defer rows.Close()

	var groups []model.ServiceGroup
	var current *model.ServiceGroup

	for rows.Next() {
		var (
			name, id, address string
			port              sql.NullInt64
			tags, meta        sql.NullString
			status, lastCheck sql.NullString
		)
		if err := rows.Scan(&name, &id, &address, &port, &tags, &meta, &status, &lastCheck); err != nil {
			return nil, fmt.Errorf("扫描分组服务行失败: %w", err)
		}

		inst := model.GroupedInstance{
			ID:            id,
			Address:       address,
			CurrentStatus: model.StatusUnknown,
		}
		if port.Valid {
			inst.Port = int(port.Int64)
		}
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &inst.Tags); err != nil {
				s.logger.Warn("解析服务标签失败", zap.String("service_id", id), zap.Error(err))
			}
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &inst.Meta); err != nil {
				s.logger.Warn("解析服务元数据失败", zap.String("service_id", id), zap.Error(err))
			}
		}
		if status.Valid {
			inst.CurrentStatus = model.Status(status.String)
		}
		if lastCheck.Valid {
			// 时间戳无法解析的行按无记录处理，不让整个请求失败
			if ts, err := time.ParseInLocation(timeLayout, lastCheck.String, time.UTC); err == nil {
				inst.LastCheck = ts
			}
		}

		if current == nil || current.Name != name {
			groups = append(groups, model.ServiceGroup{Name: name})
			current = &groups[len(groups)-1]
		}
		current.Instances = append(current.Instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历分组服务行失败: %w", err)
	}

	for i := range groups {
		groups[i].CompositeStatus = groupComposite(groups[i].Instances)
	}
	return groups, nil
}

// groupComposite 计算服务名级别的综合状态
// 规则（确定性，消除原有两处分组查询之间的歧义）:
// 任一实例critical -> critical；否则任一warning -> warning；
// 否则所有实例都有最新状态且全为passing -> passing；
// 其余情况（存在无历史记录或状态不可识别的实例） -> unknown
func groupComposite(instances []model.GroupedInstance) model.Status {
	if len(instances) == 0 {
		return model.StatusUnknown
	}

	allPassing := true
	for _, inst := range instances {
		switch inst.CurrentStatus {
		case model.StatusCritical:
			return model.StatusCritical
		case model.StatusWarning:
			return model.StatusWarning
		case model.StatusPassing:
		default:
			allPassing = false
		}
	}
	if allPassing {
		return model.StatusPassing
	}
	return model.StatusUnknown
}

// History 返回指定服务实例在尾随时间窗口内的原始历史记录
func (s *Store) History(ctx context.Context, serviceName, instanceAddress string, hours int) ([]model.Observation, error) {
	cutoff := s.now().UTC().Add(-time.Duration(hours) * time.Hour).Format(timeLayout)

	rows, err := s.db.QueryContext(ctx, `
		SELECT hc.status, hc.timestamp
		FROM health_checks hc
		JOIN services s ON hc.service_id = s.id
		WHERE s.name = ?
		  AND s.address = ?
		  AND hc.timestamp >= ?
		ORDER BY hc.timestamp ASC, hc.id ASC
	`, serviceName, instanceAddress, cutoff)
	if err != nil {
		return nil, fmt.Errorf("查询健康历史失败: %w", err)
	}
	defer rows.Close()

	var history []model.Observation
	for rows.Next() {
		var status, timestamp string
		if err := rows.Scan(&status, &timestamp); err != nil {
			return nil, fmt.Errorf("扫描健康历史行失败: %w", err)
		}

		ts, err := time.ParseInLocation(timeLayout, timestamp, time.UTC)
		if err != nil {
			// 时间戳损坏的行静默丢弃，绝不让整个查询失败
			s.logger.Warn("丢弃时间戳无法解析的历史记录",
				zap.String("service", serviceName),
				zap.String("timestamp", timestamp))
			continue
		}

		history = append(history, model.Observation{
			Status:    model.Status(status),
			Timestamp: ts,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历健康历史行失败: %w", err)
	}
	return history, nil
}

// IsAvailable 轻量探测存储是否可用
func (s *Store) IsAvailable(ctx context.Context) bool {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return false
	}
	return one == 1
}

// Close 关闭存储
func (s *Store) Close() error {
	return s.db.Close()
}

// 编译期确认Store实现了store.Store接口
var _ store.Store = (*Store)(nil)
