package mysql

import (
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Pool sizes the connection pool. Zero values keep the database/sql defaults.
type Pool struct {
	MaxOpen int
	MaxIdle int
	MaxLife time.Duration
}

// Open creates a GORM *DB backed by MySQL. parseTime is forced on so command log
// timestamps scan into time.Time.
func Open(dsn string, pool Pool) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(withParseTime(dsn)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if pool.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.MaxLife > 0 {
		sqlDB.SetConnMaxLifetime(pool.MaxLife)
	}
	return db, nil
}

func withParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}
