package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"polls-backend/config"
	"polls-backend/migrations"
	"polls-backend/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 按配置打开数据库连接并执行迁移
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  parseLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "polls.db"
		}
		log.Printf("使用SQLite数据库: %s", dsn)
		dialector = sqlite.Open(dsn)
	default:
		log.Printf("使用MySQL数据库: %s:%s/%s", cfg.Host, cfg.Port, cfg.Name)
		dialector = mysql.Open(cfg.MySQLDSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库连接池失败: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// SQLite 单写者，共享缓存模式下多个连接会互相锁表
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := migrations.Run(db); err != nil {
		return nil, fmt.Errorf("迁移模型失败: %w", err)
	}

	log.Println("数据库连接和迁移成功")
	return db, nil
}

// SeedSampleData 开发环境下写入示例问题
func SeedSampleData(db *gorm.DB, now time.Time) error {
	var count int64
	if err := db.Model(&models.Question{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Println("数据库已有数据，跳过示例数据创建")
		return nil
	}

	log.Println("创建示例数据...")
	end := now.Add(7 * 24 * time.Hour)
	questions := []models.Question{
		{
			Text:      "What's up?",
			PubDate:   now.Add(-time.Hour),
			Available: true,
			Choices:   []models.Choice{{Text: "Not much"}, {Text: "The sky"}, {Text: "Just hacking again"}},
		},
		{
			Text:      "Which language do you like most?",
			PubDate:   now.Add(-48 * time.Hour),
			EndDate:   &end,
			Available: true,
			Choices:   []models.Choice{{Text: "Go"}, {Text: "Python"}, {Text: "Java"}, {Text: "C++"}},
		},
		{
			Text:      "Coming soon: favourite editor?",
			PubDate:   now.Add(24 * time.Hour),
			Available: true,
			Choices:   []models.Choice{{Text: "vim"}, {Text: "emacs"}},
		},
	}
	if err := db.Create(&questions).Error; err != nil {
		return fmt.Errorf("创建示例数据失败: %w", err)
	}

	log.Println("示例数据创建成功")
	return nil
}

// Close 关闭数据库连接
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("获取数据库连接失败: %v", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Printf("关闭数据库连接失败: %v", err)
		return
	}
	log.Println("数据库连接已关闭")
}

func parseLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
