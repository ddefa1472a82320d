package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/config"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/handler"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/model"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/repository"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/service"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/cache"
	dbPkg "github.com/RidloJ/fomuso-family-hub-sub000/pkg/db"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/jwt"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/logger"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/metrics"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/ratelimit"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/realtime"
	redisPkg "github.com/RidloJ/fomuso-family-hub-sub000/pkg/redis"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/response"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/storage"
	"github.com/RidloJ/fomuso-family-hub-sub000/pkg/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// backends 实时通道与缓存的具体实现
type backends struct {
	feed     realtime.ChangeFeed
	presence realtime.PresenceChannel
	views    service.ViewCache
	unread   service.UnreadCache
	redis    bool
}

func main() {
	// 1. 加载配置
	cfg := config.LoadConfig()

	// 2. 初始化日志系统
	log := logger.InitLogger(cfg.Log)
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("配置校验失败", zap.Error(err))
	}
	maxAttachment, _ := cfg.Chat.AttachmentLimit()

	log.Info("=== 家庭聊天服务启动 ===")
	log.Info("服务器配置信息",
		zap.String("port", cfg.Server.Port),
		zap.String("database_driver", cfg.Database.Driver),
		zap.String("database_host", cfg.Database.Host),
		zap.String("database_name", cfg.Database.Database),
		zap.String("realtime_backend", cfg.Realtime.Backend),
		zap.Int64("max_attachment_bytes", maxAttachment),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 初始化数据库连接
	gdb, err := dbPkg.InitDB(cfg.Database)
	if err != nil {
		log.Fatal("数据库连接失败", zap.Error(err))
	}
	defer func() {
		if err := dbPkg.CloseDB(); err != nil {
			log.Error("关闭数据库连接失败", zap.Error(err))
		}
	}()
	log.Info("数据库连接成功")

	// 3.1 自动迁移表结构
	if err := dbPkg.AutoMigrate(gdb, model.All()...); err != nil {
		log.Fatal("自动迁移失败", zap.Error(err))
	}
	log.Info("自动迁移完成")

	// 3.2 实时通道与缓存
	rt, err := setupBackends(cfg)
	if err != nil {
		log.Fatal("初始化实时通道失败", zap.Error(err))
	}
	if rt.redis {
		defer redisPkg.Close()
	}

	// 3.3 附件存储（未配置密钥时禁用附件上传）
	var attachments service.AttachmentStore
	if cfg.Storage.AccessKey != "" {
		s3, err := storage.NewS3Storage(cfg.Storage)
		if err != nil {
			log.Fatal("初始化对象存储失败", zap.Error(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = s3.EnsureBucket(ctx, cfg.Storage.Region)
		cancel()
		if err != nil {
			log.Fatal("初始化存储桶失败", zap.Error(err), zap.String("bucket", cfg.Storage.Bucket))
		}
		attachments = s3
		log.Info("对象存储已启用", zap.String("bucket", cfg.Storage.Bucket))
	} else {
		log.Warn("未配置对象存储，附件上传不可用")
	}

	// 3.4 初始化业务服务
	repos := repository.New(gdb)
	jwtSvc := jwt.NewJWTService(cfg.JWT)
	threadSvc := service.NewThreadService(repos, rt.views, cfg.Chat.GroupThreadTitle, cfg.Chat.ViewCacheTTL)
	messageSvc := service.NewMessageService(repos, rt.feed, service.MessageServiceOptions{
		Attachments:   attachments,
		Views:         rt.views,
		Unread:        rt.unread,
		MaxAttachment: maxAttachment,
		CacheTTL:      cfg.Chat.ViewCacheTTL,
	})
	receiptSvc := service.NewReceiptService(repos, rt.unread, cfg.Chat.ReceiptPollInterval)
	unreadSvc := service.NewUnreadService(repos, rt.unread, rt.feed, cfg.Chat.UnreadPollInterval, cfg.Chat.UnreadFanout)
	presenceSvc := service.NewPresenceService(rt.presence, repos, cfg.Presence.LastSeenInterval)

	handlers := &handler.Handlers{
		Threads:       handler.NewThreadHandler(threadSvc, messageSvc),
		Messages:      handler.NewMessageHandler(messageSvc, maxAttachment),
		Receipts:      handler.NewReceiptHandler(receiptSvc, unreadSvc, messageSvc),
		Presence:      handler.NewPresenceHandler(presenceSvc),
		Notifications: handler.NewNotificationHandler(repos.Preferences),
	}

	wsManager := websocket.NewManager()
	wsHandler := websocket.NewHandler(jwtSvc, cfg.WebSocket, websocket.Services{
		Presence:     presenceSvc,
		Unread:       unreadSvc,
		Receipts:     receiptSvc,
		Messages:     messageSvc,
		Feed:         rt.feed,
		Preferences:  repos.Preferences,
		Profiles:     repos.Profiles,
		Notification: cfg.Notification,
	}, wsManager)

	// 3.5 维护任务
	jobCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	if cfg.Maintenance.ReconcileCron != "" {
		scheduler, err := service.NewReconcileScheduler(threadSvc, cfg.Maintenance.ReconcileCron)
		if err != nil {
			log.Fatal("初始化维护任务失败", zap.Error(err))
		}
		go scheduler.Run(jobCtx)
	}

	// 4. 设置Gin模式
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 5. 创建Gin路由
	router := gin.New()
	router.Use(logger.LoggerMiddleware())      // 自定义日志中间件
	router.Use(logger.ErrorLoggerMiddleware()) // 错误日志中间件

	// 6. 设置基础路由
	setupBasicRoutes(router, rt.redis)

	// 6.1 业务路由
	sendLimit := ratelimit.NewPool(cfg.Chat.SendRatePerSecond, cfg.Chat.SendBurst)
	handler.Register(router.Group("/api/v1"), jwtSvc.AuthMiddleware(), sendLimit.Middleware(jwt.GetMemberID), handlers)

	// WebSocket路由
	router.GET("/ws", wsHandler.ServeWS)

	// 7. 创建HTTP服务器
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 8. 启动HTTP服务器
	go func() {
		log.Info("HTTP服务器启动", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP服务器启动失败", zap.Error(err))
		}
	}()

	// 9. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务器...")

	// 先关闭所有实时会话，让成员退出在线频道
	wsManager.CloseAll()
	stopJobs()

	// 设置关闭超时
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 关闭HTTP服务器
	if err := server.Shutdown(ctx); err != nil {
		log.Error("HTTP服务器关闭失败", zap.Error(err))
	}

	log.Info("服务器已安全关闭")
}

// setupBackends 按配置选择内存或Redis实现
func setupBackends(cfg *config.Config) (*backends, error) {
	if cfg.Realtime.Backend == "memory" {
		logger.Warn("使用进程内实时通道，仅适用于单实例部署")
		return &backends{
			feed:     realtime.NewMemoryFeed(),
			presence: realtime.NewMemoryPresence(),
			views:    cache.NewMemory(),
			unread:   cache.NewUnreadCounter(),
		}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := redisPkg.InitRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	logger.Info("Redis连接成功", zap.String("addr", client.Options().Addr))

	return &backends{
		feed:     redisPkg.NewChangeFeed(client, cfg.Realtime.ReconnectInitial, cfg.Realtime.ReconnectMax),
		presence: redisPkg.NewPresence(client, cfg.Presence.Channel, cfg.Presence.EntryTTL),
		views:    redisPkg.NewViewCache(client),
		unread:   redisPkg.NewUnreadCounter(client),
		redis:    true,
	}, nil
}

// setupBasicRoutes 设置基础路由
func setupBasicRoutes(router *gin.Engine, withRedis bool) {
	// 健康检查
	// 完整url为：http://localhost:8080/health
	router.GET("/health", func(c *gin.Context) {
		status := "ok"
		if err := dbPkg.HealthCheck(); err != nil {
			status = "db-down"
		} else if withRedis {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := redisPkg.HealthCheck(ctx); err != nil {
				status = "redis-down"
			}
		}
		response.Success(c, gin.H{
			"status":  status,
			"message": "家庭聊天服务运行状态",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// Prometheus 指标
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// 根路径
	router.GET("/", func(c *gin.Context) {
		response.Success(c, gin.H{
			"message": "欢迎使用家庭聊天服务",
			"version": "1.0.0",
		})
	})
}
