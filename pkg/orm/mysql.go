package orm

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Driver      string `mapstructure:"driver"` // mysql | sqlite
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"` // 秒
	LogSQL      bool   `mapstructure:"log_sql"`
}

// Open 初始化 GORM, 按 Driver 选择方言
func Open(c *Config) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch c.Driver {
	case "mysql", "":
		dial = mysql.Open(c.DSN)
	case "sqlite":
		dial = sqlite.Open(c.DSN)
	default:
		return nil, fmt.Errorf("orm: unknown driver %q", c.Driver)
	}

	lvl := logger.Warn
	if c.LogSQL {
		lvl = logger.Info
	}
	db, err := gorm.Open(dial, &gorm.Config{Logger: logger.Default.LogMode(lvl)})
	if err != nil {
		return nil, fmt.Errorf("orm: connect %s: %w", c.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if c.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(c.MaxIdle)
	}
	if c.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(c.MaxOpen)
	}
	if c.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(c.MaxLifetime) * time.Second)
	}
	return db, nil
}
