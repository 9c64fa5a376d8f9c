package database

import (
	"fmt"

	"polls-backend/config"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OpenInMemory 打开一个独立命名的内存SQLite数据库，供测试和本地试用
func OpenInMemory() (*gorm.DB, error) {
	return Open(config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		LogLevel: "silent",
	})
}
