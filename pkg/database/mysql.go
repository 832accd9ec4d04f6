package database

import (
	"fmt"
	"time"

	"go-storefront/pkg/config"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open picks the gorm dialector named by cfg.Driver.
func Open(cfg config.DatabaseConfig, mysqlCfg config.MysqlConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "", "mysql":
		return InitMySQL(mysqlCfg, cfg.Debug)
	case "sqlite":
		return OpenSQLite(cfg.Path, cfg.Debug)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// MySQLDSN builds the go-sql-driver DSN for cfg.
func MySQLDSN(cfg config.MysqlConfig) string {
	dsn := mysql.NewConfig()
	dsn.User = cfg.User
	dsn.Passwd = cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dsn.DBName = cfg.DbName
	dsn.ParseTime = true
	dsn.Loc = time.Local
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	return dsn.FormatDSN()
}

// InitMySQL 初始化 MySQL 连接
func InitMySQL(cfg config.MysqlConfig, debug bool) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(MySQLDSN(cfg)), &gorm.Config{
		Logger: gormLogger(debug),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	log.Info().Str("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)).Str("db", cfg.DbName).Msg("MySQL connected")
	return db, nil
}

// OpenSQLite opens a SQLite database file. SQLite allows a single writer,
// so the pool is capped at one connection and transactions serialise.
func OpenSQLite(path string, debug bool) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on&_busy_timeout=5000"), &gorm.Config{
		Logger: gormLogger(debug),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	log.Info().Str("path", path).Msg("SQLite opened")
	return db, nil
}

func gormLogger(debug bool) logger.Interface {
	if debug {
		return logger.Default.LogMode(logger.Info)
	}
	return logger.Default.LogMode(logger.Silent)
}
