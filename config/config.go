package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 应用配置结构体
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	JWT          JWTConfig          `yaml:"jwt"`
	Log          LogConfig          `yaml:"log"`
	Redis        RedisConfig        `yaml:"redis"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	Storage      StorageConfig      `yaml:"storage"`
	Chat         ChatConfig         `yaml:"chat"`
	Presence     PresenceConfig     `yaml:"presence"`
	Notification NotificationConfig `yaml:"notification"`
	Realtime     RealtimeConfig     `yaml:"realtime"`
	Maintenance  MaintenanceConfig  `yaml:"maintenance"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port         string        `yaml:"port"`         // 服务器监听端口
	ReadTimeout  time.Duration `yaml:"readTimeout"`  // 读取超时时间
	WriteTimeout time.Duration `yaml:"writeTimeout"` // 写入超时时间
	IdleTimeout  time.Duration `yaml:"idleTimeout"`  // 空闲超时时间
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`   // 数据库驱动类型 mysql/postgres/sqlite
	Host     string `yaml:"host"`     // 数据库主机地址
	Port     int    `yaml:"port"`     // 数据库端口
	Username string `yaml:"username"` // 数据库用户名
	Password string `yaml:"password"` // 数据库密码
	Database string `yaml:"database"` // 数据库名称（sqlite 时为文件路径）
	Charset  string `yaml:"charset"`  // 字符集
	MaxIdle  int    `yaml:"maxIdle"`  // 最大空闲连接数
	MaxOpen  int    `yaml:"maxOpen"`  // 最大打开连接数
	LogSQL   bool   `yaml:"logSQL"`   // 是否打印SQL
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret     string        `yaml:"secret"`     // JWT密钥
	ExpireTime time.Duration `yaml:"expireTime"` // JWT过期时间
	Issuer     string        `yaml:"issuer"`     // JWT签发者
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`      // 日志级别
	Filename   string `yaml:"filename"`   // 日志文件名
	MaxSize    int    `yaml:"maxSize"`    // 单个日志文件最大大小(MB)
	MaxBackups int    `yaml:"maxBackups"` // 最大备份文件数
	MaxAge     int    `yaml:"maxAge"`     // 最大保存天数
	Compress   bool   `yaml:"compress"`   // 是否压缩
	Console    bool   `yaml:"console"`    // 同时输出到控制台
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string `yaml:"host"`     // Redis主机地址
	Port     int    `yaml:"port"`     // Redis端口
	Password string `yaml:"password"` // Redis密码
	DB       int    `yaml:"db"`       // Redis数据库编号
}

// WebSocketConfig WebSocket 心跳配置
type WebSocketConfig struct {
	PingInterval time.Duration `yaml:"pingInterval"` // 发送ping的间隔
	ReadTimeout  time.Duration `yaml:"readTimeout"`  // 读超时时间（未收到任何数据则断开）
}

// StorageConfig 附件对象存储（S3兼容）
type StorageConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Region        string `yaml:"region"`
	Bucket        string `yaml:"bucket"`
	AccessKey     string `yaml:"accessKey"`
	SecretKey     string `yaml:"secretKey"`
	UseSSL        bool   `yaml:"useSSL"`
	PublicBaseURL string `yaml:"publicBaseURL"` // 公开访问地址前缀，为空时按 endpoint/bucket 拼接
}

// ChatConfig 聊天相关配置
type ChatConfig struct {
	GroupThreadTitle    string        `yaml:"groupThreadTitle"`    // 家庭群聊的保留标题
	MaxAttachmentSize   string        `yaml:"maxAttachmentSize"`   // 附件大小上限，如 "10 MiB"
	ReceiptPollInterval time.Duration `yaml:"receiptPollInterval"` // 已读回执轮询间隔
	UnreadPollInterval  time.Duration `yaml:"unreadPollInterval"`  // 未读数轮询间隔
	ViewCacheTTL        time.Duration `yaml:"viewCacheTTL"`        // 会话/消息列表缓存TTL
	UnreadFanout        int           `yaml:"unreadFanout"`        // 未读计数并发查询上限
	SendRatePerSecond   float64       `yaml:"sendRatePerSecond"`   // 每个成员每秒可发送消息数
	SendBurst           int           `yaml:"sendBurst"`           // 突发容量
}

// PresenceConfig 在线状态配置
type PresenceConfig struct {
	Channel          string        `yaml:"channel"`          // 共享在线频道名
	LastSeenInterval time.Duration `yaml:"lastSeenInterval"` // 写入 last_seen 的间隔
	EntryTTL         time.Duration `yaml:"entryTTL"`         // 会话在线条目的过期时间
}

// NotificationConfig 新消息提醒配置
type NotificationConfig struct {
	ChimeTonesHz      []float64     `yaml:"chimeTonesHz"`      // 提示音频率序列
	ChimeToneDuration time.Duration `yaml:"chimeToneDuration"` // 每个音的时长
	DismissAfter      time.Duration `yaml:"dismissAfter"`      // 系统通知自动关闭时间
	PermissionTimeout time.Duration `yaml:"permissionTimeout"` // 等待浏览器授权结果的超时
	DedupSize         int           `yaml:"dedupSize"`         // 去重窗口大小
}

// RealtimeConfig 实时通道配置
type RealtimeConfig struct {
	Backend          string        `yaml:"backend"`          // memory / redis
	ReconnectInitial time.Duration `yaml:"reconnectInitial"` // 重连初始退避
	ReconnectMax     time.Duration `yaml:"reconnectMax"`     // 重连最大退避
}

// MaintenanceConfig 维护任务配置
type MaintenanceConfig struct {
	ReconcileCron string `yaml:"reconcileCron"` // 群聊去重任务的 cron 表达式，为空则不调度
}

// LoadConfig 加载配置（混合方式：YAML文件 + .env + 环境变量）
func LoadConfig() *Config {
	return LoadConfigFrom("config/config.yaml")
}

// LoadConfigFrom 从指定路径加载配置
func LoadConfigFrom(filePath string) *Config {
	// .env 不存在时忽略
	_ = godotenv.Load(".env")

	config := loadFromYAML(filePath)
	overrideWithEnvVars(config)
	return config
}

// loadFromYAML 从YAML文件加载配置，未设置的字段使用默认值
func loadFromYAML(filePath string) *Config {
	config := getDefaultConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return config
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return getDefaultConfig()
	}

	return config
}

// overrideWithEnvVars 用环境变量覆盖配置
func overrideWithEnvVars(config *Config) {
	// 服务器配置
	if port := getEnv("SERVER_PORT", ""); port != "" {
		config.Server.Port = port
	}
	if timeout := getEnvDuration("SERVER_READ_TIMEOUT", 0); timeout > 0 {
		config.Server.ReadTimeout = timeout
	}
	if timeout := getEnvDuration("SERVER_WRITE_TIMEOUT", 0); timeout > 0 {
		config.Server.WriteTimeout = timeout
	}
	if timeout := getEnvDuration("SERVER_IDLE_TIMEOUT", 0); timeout > 0 {
		config.Server.IdleTimeout = timeout
	}

	// 数据库配置
	if driver := getEnv("DB_DRIVER", ""); driver != "" {
		config.Database.Driver = driver
	}
	if host := getEnv("DB_HOST", ""); host != "" {
		config.Database.Host = host
	}
	if port := getEnvInt("DB_PORT", 0); port > 0 {
		config.Database.Port = port
	}
	if username := getEnv("DB_USERNAME", ""); username != "" {
		config.Database.Username = username
	}
	if password := getEnv("DB_PASSWORD", ""); password != "" {
		config.Database.Password = password
	}
	if database := getEnv("DB_DATABASE", ""); database != "" {
		config.Database.Database = database
	}
	if maxIdle := getEnvInt("DB_MAX_IDLE", 0); maxIdle > 0 {
		config.Database.MaxIdle = maxIdle
	}
	if maxOpen := getEnvInt("DB_MAX_OPEN", 0); maxOpen > 0 {
		config.Database.MaxOpen = maxOpen
	}
	config.Database.LogSQL = getEnvBool("DB_LOG_SQL", config.Database.LogSQL)

	// JWT配置
	if secret := getEnv("JWT_SECRET", ""); secret != "" {
		config.JWT.Secret = secret
	}
	if issuer := getEnv("JWT_ISSUER", ""); issuer != "" {
		config.JWT.Issuer = issuer
	}

	// 日志配置
	if level := getEnv("LOG_LEVEL", ""); level != "" {
		config.Log.Level = level
	}
	if filename := getEnv("LOG_FILENAME", ""); filename != "" {
		config.Log.Filename = filename
	}
	config.Log.Console = getEnvBool("LOG_CONSOLE", config.Log.Console)

	// Redis配置
	if host := getEnv("REDIS_HOST", ""); host != "" {
		config.Redis.Host = host
	}
	if port := getEnvInt("REDIS_PORT", 0); port > 0 {
		config.Redis.Port = port
	}
	if password := getEnv("REDIS_PASSWORD", ""); password != "" {
		config.Redis.Password = password
	}
	if db := getEnvInt("REDIS_DB", -1); db >= 0 {
		config.Redis.DB = db
	}

	// WebSocket配置
	if d := getEnvDuration("WS_PING_INTERVAL", 0); d > 0 {
		config.WebSocket.PingInterval = d
	}
	if d := getEnvDuration("WS_READ_TIMEOUT", 0); d > 0 {
		config.WebSocket.ReadTimeout = d
	}

	// 对象存储配置
	if endpoint := getEnv("S3_ENDPOINT", ""); endpoint != "" {
		config.Storage.Endpoint = endpoint
	}
	if bucket := getEnv("S3_BUCKET", ""); bucket != "" {
		config.Storage.Bucket = bucket
	}
	if key := getEnv("S3_ACCESS_KEY", ""); key != "" {
		config.Storage.AccessKey = key
	}
	if secret := getEnv("S3_SECRET_KEY", ""); secret != "" {
		config.Storage.SecretKey = secret
	}
	config.Storage.UseSSL = getEnvBool("S3_USE_SSL", config.Storage.UseSSL)

	// 聊天配置
	if size := getEnv("CHAT_MAX_ATTACHMENT_SIZE", ""); size != "" {
		config.Chat.MaxAttachmentSize = size
	}
	if d := getEnvDuration("CHAT_RECEIPT_POLL_INTERVAL", 0); d > 0 {
		config.Chat.ReceiptPollInterval = d
	}
	if d := getEnvDuration("CHAT_UNREAD_POLL_INTERVAL", 0); d > 0 {
		config.Chat.UnreadPollInterval = d
	}

	// 实时通道 / 维护任务
	if backend := getEnv("REALTIME_BACKEND", ""); backend != "" {
		config.Realtime.Backend = backend
	}
	if cron := getEnv("MAINTENANCE_RECONCILE_CRON", ""); cron != "" {
		config.Maintenance.ReconcileCron = cron
	}
}

// Validate 校验配置中需要解析的字段
func (c *Config) Validate() error {
	if _, err := c.Chat.AttachmentLimit(); err != nil {
		return err
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}
	switch c.Realtime.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("不支持的实时通道: %s", c.Realtime.Backend)
	}
	if cron := strings.TrimSpace(c.Maintenance.ReconcileCron); cron != "" && !gronx.IsValid(cron) {
		return fmt.Errorf("无效的维护任务 cron 表达式: %s", cron)
	}
	return nil
}

// AttachmentLimit 解析附件大小上限（字节）
func (c ChatConfig) AttachmentLimit() (int64, error) {
	raw := strings.TrimSpace(c.MaxAttachmentSize)
	if raw == "" {
		return DefaultMaxAttachmentBytes, nil
	}
	v, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("无效的附件大小上限 %q: %w", raw, err)
	}
	return int64(v), nil
}

// DefaultMaxAttachmentBytes 默认附件上限 10 MiB
const DefaultMaxAttachmentBytes = 10 << 20

// getDefaultConfig 获取默认配置
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			Username: "family_hub",
			Password: "",
			Database: "family_hub",
			Charset:  "utf8mb4",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		JWT: JWTConfig{
			Secret:     "your-secret-key",
			ExpireTime: 24 * time.Hour,
			Issuer:     "family-hub",
		},
		Log: LogConfig{
			Level:      "info",
			Filename:   "logs/app.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
			Console:    true,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
			DB:   0,
		},
		WebSocket: WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  90 * time.Second,
		},
		Storage: StorageConfig{
			Endpoint: "localhost:9000",
			Bucket:   "family-hub",
		},
		Chat: ChatConfig{
			GroupThreadTitle:    "Family Chat",
			MaxAttachmentSize:   "10 MiB",
			ReceiptPollInterval: 10 * time.Second,
			UnreadPollInterval:  30 * time.Second,
			ViewCacheTTL:        5 * time.Minute,
			UnreadFanout:        8,
			SendRatePerSecond:   5,
			SendBurst:           10,
		},
		Presence: PresenceConfig{
			Channel:          "online-users",
			LastSeenInterval: 60 * time.Second,
			EntryTTL:         90 * time.Second,
		},
		Notification: NotificationConfig{
			ChimeTonesHz:      []float64{830, 1100},
			ChimeToneDuration: 180 * time.Millisecond,
			DismissAfter:      5 * time.Second,
			PermissionTimeout: 60 * time.Second,
			DedupSize:         256,
		},
		Realtime: RealtimeConfig{
			Backend:          "redis",
			ReconnectInitial: 500 * time.Millisecond,
			ReconnectMax:     30 * time.Second,
		},
		Maintenance: MaintenanceConfig{
			ReconcileCron: "*/15 * * * *",
		},
	}
}

// 辅助函数：获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// 辅助函数：获取整数环境变量
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// 辅助函数：获取布尔环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// 辅助函数：获取时间环境变量
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
