package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"pixel-platformer/internal/domain"
)

// MigrateDB 迁移全部库表结构。
// 内容表 (worlds/levels) 由内容工具填充，这里只保证结构和索引存在；
// 进度表上的唯一索引是幂等 upsert 语义的前提，缺了索引
// ON DUPLICATE KEY 就退化成普通插入。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	err := db.AutoMigrate(
		&domain.World{},
		&domain.Level{},
		&domain.Player{},
		&domain.PlayerProgress{},
		&domain.PlayerUnlock{},
		&domain.PlayerWorld{},
	)
	if err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}
