package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"videotrans/config"
	"videotrans/internal/handler"
	"videotrans/internal/queue"
	"videotrans/internal/router"
	"videotrans/internal/service"
	"videotrans/internal/storage"
	"videotrans/log"
)

func main() {
	log.InitLogger()
	defer log.GetLogger().Sync()

	created, err := config.LoadOrCreateConfig()
	if err != nil {
		log.GetLogger().Error("加载配置失败 Config load failed", zap.Error(err))
		return
	}
	if created {
		log.GetLogger().Info("已生成默认配置，请填写后重启 Default config written, fill it in and restart")
		return
	}

	storage.InitDB()
	if count, err := storage.MarkStaleRecords(); err != nil {
		log.GetLogger().Warn("failed to mark stale tasks", zap.Error(err))
	} else if count > 0 {
		log.GetLogger().Info("marked stale tasks as failed", zap.Int64("count", count))
	}

	svc := service.NewService()
	defer svc.Shutdown()

	// optional Redis-backed submission queue; the HTTP API works without it
	var enq handler.Enqueuer
	if config.Conf.Queue.RedisAddr != "" {
		q := queue.NewQueue(config.Conf.Queue, svc)
		if err := q.Start(); err != nil {
			log.GetLogger().Warn("queue worker not started", zap.Error(err))
		} else {
			defer q.Stop()
			enq = q
		}
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.Default()
	router.SetupRouter(engine, svc, enq)

	addr := fmt.Sprintf("%s:%d", config.Conf.Server.Host, config.Conf.Server.Port)
	log.GetLogger().Info("server starting", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() { errCh <- engine.Run(addr) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		log.GetLogger().Error("后端服务启动失败 Server failed", zap.Error(err))
		os.Exit(1)
	case sig := <-quit:
		log.GetLogger().Info("shutting down", zap.String("signal", sig.String()))
	}
}
