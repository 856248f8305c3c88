package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hewenyu/consul-monitor/internal/apiserver"
	"github.com/hewenyu/consul-monitor/internal/config"
	"github.com/hewenyu/consul-monitor/internal/consulclient"
	"github.com/hewenyu/consul-monitor/internal/poller"
	"github.com/hewenyu/consul-monitor/internal/reconciler"
	"github.com/hewenyu/consul-monitor/internal/store/sqlite"
)

var (
	logger     config.Logger
	configFile string
	appConfig  *config.Config
)

func init() {
	// 解析命令行参数
	flag.StringVar(&configFile, "config", "", "配置文件路径")
}

func main() {
	flag.Parse()

	// 加载配置
	var err error
	appConfig, err = config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger, err = config.NewLogger(appConfig.Log.Level, appConfig.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	// 打印启动信息
	logger.Info("Consul Monitor Starting...",
		zap.String("version", "0.1.0"),
		zap.String("consul_address", appConfig.Consul.Address),
		zap.String("database_path", appConfig.Database.Path),
		zap.Int("server_port", appConfig.Server.Port),
		zap.Int("poll_interval_seconds", appConfig.Poll.IntervalSeconds),
	)

	// 初始化存储
	st, err := sqlite.New(appConfig.Database.Path, logger)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	// 初始化仪表盘设置
	settings, err := config.NewSettings(appConfig.Dashboard.RefreshSeconds, appConfig.Dashboard.WindowMinutes)
	if err != nil {
		logger.Error("仪表盘设置非法", zap.Error(err))
		os.Exit(1)
	}

	// 初始化Consul客户端与调和器
	consulClient := consulclient.NewHTTPClient(appConfig, logger)
	rec := reconciler.New(consulClient, logger)

	// 启动后台轮询器
	interval := time.Duration(appConfig.Poll.IntervalSeconds) * time.Second
	p := poller.New(consulClient, rec, st, interval, logger)
	p.Start()

	// 启动HTTP服务器
	server := apiserver.NewServer(appConfig, st, consulClient, p, settings, logger)
	if err := server.Start(); err != nil {
		logger.Error("启动HTTP服务器失败", zap.Error(err))
		os.Exit(1)
	}

	// 等待信号以优雅关闭
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("接收到关闭信号，正在优雅关闭...")

	// 先停轮询器，等待在途周期写完，再关HTTP服务器
	p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP服务器关闭失败", zap.Error(err))
	}

	logger.Info("已退出")
}
