package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/config"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var DB *gorm.DB

// InitDB 初始化数据库连接并保存为全局实例
func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	DB = db
	return db, nil
}

// newGormLogger 慢查询与错误日志；记录不存在属于正常查询结果，不输出
func newGormLogger(w logger.Writer, logSQL bool) logger.Interface {
	level := logger.Warn
	if logSQL {
		level = logger.Info
	}
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

// Open 按配置的驱动打开数据库连接
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	// 配置GORM
	gormConfig := &gorm.Config{
		Logger: newGormLogger(log.New(os.Stdout, "\r\n", log.LstdFlags), cfg.LogSQL),

		// 禁用默认事务（提高性能）
		SkipDefaultTransaction: true,

		// 命名策略
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true, // 使用单数表名
		},

		// 所有时间统一使用UTC，保证跨驱动的比较一致
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	// 获取底层的sql.DB对象
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %w", err)
	}

	// 配置连接池
	if cfg.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	}
	if cfg.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 测试连接
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return db, nil
}

// dialectorFor 根据驱动类型构建 gorm 方言
func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "mysql":
		return gormmysql.Open(MySQLDSN(cfg)), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(cfg.Database + "?_foreign_keys=on&_busy_timeout=5000"), nil
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}
}

// MySQLDSN 构建MySQL连接字符串
func MySQLDSN(cfg config.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	if cfg.Charset != "" {
		mc.Params = map[string]string{"charset": cfg.Charset}
	}
	return mc.FormatDSN()
}

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return DB
}

// CloseDB 关闭数据库连接
func CloseDB() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return fmt.Errorf("获取数据库实例失败: %w", err)
		}
		return sqlDB.Close()
	}
	return nil
}

// HealthCheck 数据库健康检查
func HealthCheck() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("获取数据库实例失败: %w", err)
	}

	return sqlDB.Ping()
}

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB, models ...interface{}) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}

	return db.AutoMigrate(models...)
}
