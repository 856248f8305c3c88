package apiserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/hewenyu/consul-monitor/internal/apiserver/handler"
	"github.com/hewenyu/consul-monitor/internal/config"
	"github.com/hewenyu/consul-monitor/internal/consulclient"
	"github.com/hewenyu/consul-monitor/internal/store"
)

// Server 表示监控HTTP服务
type Server struct {
	e      *echo.Echo
	host   string
	port   int
	logger config.Logger
}

// NewServer 创建一个新的监控HTTP服务
func NewServer(cfg *config.Config, st store.Store, client consulclient.Client, refresher handler.Refresher, settings *config.Settings, logger config.Logger) *Server {
	// 创建Echo实例
	e := echo.New()
	e.HideBanner = true

	// 添加中间件
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// 创建监控处理器并注册路由
	monitorHandler := handler.NewMonitorHandler(st, client, refresher, settings, cfg.Consul.Domain, logger)
	monitorHandler.RegisterRoutes(e)

	return &Server{
		e:      e,
		host:   cfg.Server.ListenAddress,
		port:   cfg.Server.Port,
		logger: logger,
	}
}

// Start 以非阻塞方式启动服务
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.logger.Info("监控API服务启动", zap.String("addr", addr))

	go func() {
		if err := s.e.Start(addr); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("监控API服务启动失败", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown 关闭服务
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
