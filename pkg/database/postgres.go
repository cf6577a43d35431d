package database

import (
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB 初始化数据库连接并自动迁移
// dsn: Postgres 连接字符串
// models: 需要建表/迁移的结构体指针
func InitDB(dsn string, models ...interface{}) *gorm.DB {
	// 同步任务轮询很频繁，SQL 日志只留慢查询和错误
	dbLogger := logger.Default.LogMode(logger.Warn)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: dbLogger,
	})
	if err != nil {
		log.Fatalf("[DB] 数据库连接失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("[DB] 获取底层 SQL DB 失败: %v", err)
	}

	// 连接池：worker 池 + HTTP 读路径的并发远小于 100，25 足够
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("[DB] 数据库连接成功")

	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			log.Fatalf("[DB] 自动建表出错: %v", err)
		}
	}

	return db
}
