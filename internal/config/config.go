package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用程序配置结构
type Config struct {
	// Consul注册中心配置
	Consul struct {
		Address             string `mapstructure:"address"`               // Consul agent地址 (host:port)
		Scheme              string `mapstructure:"scheme"`                // "http" 或 "https"
		TimeoutSeconds      int    `mapstructure:"timeout_seconds"`       // 数据请求超时
		ProbeTimeoutSeconds int    `mapstructure:"probe_timeout_seconds"` // 可用性探测超时（应短于数据请求超时）
		Domain              string `mapstructure:"domain"`                // 服务域名后缀，用于拼接服务URL
	} `mapstructure:"consul"`

	// 数据库配置
	Database struct {
		Path string `mapstructure:"path"` // SQLite数据库文件路径
	} `mapstructure:"database"`

	// HTTP服务配置
	Server struct {
		ListenAddress string `mapstructure:"listen_address"`
		Port          int    `mapstructure:"port"`
	} `mapstructure:"server"`

	// 轮询配置
	Poll struct {
		IntervalSeconds int `mapstructure:"interval_seconds"` // 后台轮询间隔
	} `mapstructure:"poll"`

	// 仪表盘默认配置（运行时可通过设置API调整）
	Dashboard struct {
		RefreshSeconds int `mapstructure:"refresh_seconds"` // 页面自动刷新间隔
		WindowMinutes  int `mapstructure:"window_minutes"`  // 历史图表聚合窗口
	} `mapstructure:"dashboard"`

	// 日志配置
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

// LoadConfig 从文件和环境变量加载配置
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 如果指定了配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// 设置配置文件名和路径
		v.SetConfigName("config")                // 配置文件名（无扩展名）
		v.AddConfigPath(".")                     // 当前目录
		v.AddConfigPath("./configs")             // configs目录
		v.AddConfigPath("$HOME/.consul-monitor") // 用户目录
		v.AddConfigPath("/etc/consul-monitor")   // 系统目录
	}

	// 配置文件格式
	v.SetConfigType("yaml")

	// 尝试从配置文件加载
	if err := v.ReadInConfig(); err != nil {
		// 如果找不到配置文件，仅使用默认值；其他错误则返回
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件错误: %w", err)
		}
	}

	// 绑定环境变量
	v.SetEnvPrefix("CONSUL_MONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 从环境变量覆盖
	bindEnvVariables(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置错误: %w", err)
	}

	return &config, nil
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// Consul默认配置（数据请求5秒超时，探测2秒超时）
	v.SetDefault("consul.address", "consul.service.dc1.consul:8500")
	v.SetDefault("consul.scheme", "http")
	v.SetDefault("consul.timeout_seconds", 5)
	v.SetDefault("consul.probe_timeout_seconds", 2)
	v.SetDefault("consul.domain", "service.dc1.consul")

	// 数据库默认配置
	v.SetDefault("database.path", "/data/consul-monitor.db")

	// HTTP服务默认配置
	v.SetDefault("server.listen_address", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// 轮询默认配置
	v.SetDefault("poll.interval_seconds", 60)

	// 仪表盘默认配置
	v.SetDefault("dashboard.refresh_seconds", 60)
	v.SetDefault("dashboard.window_minutes", 15)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", true)
}

// bindEnvVariables 绑定特定的环境变量
func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("consul.address", "CONSUL_MONITOR_CONSUL_ADDRESS")
	v.BindEnv("database.path", "CONSUL_MONITOR_DATABASE_PATH")
	v.BindEnv("server.port", "CONSUL_MONITOR_SERVER_PORT")
	v.BindEnv("poll.interval_seconds", "CONSUL_MONITOR_POLL_INTERVAL_SECONDS")
}

// GetDefaultConfigPath 返回默认配置文件路径
func GetDefaultConfigPath() string {
	// 按顺序检查不同位置的配置文件
	paths := []string{
		"./config.yaml",
		"./configs/config.yaml",
		os.Getenv("HOME") + "/.consul-monitor/config.yaml",
		"/etc/consul-monitor/config.yaml",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
