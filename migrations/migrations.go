package migrations

import (
	"fmt"
	"log"

	"polls-backend/models"

	"gorm.io/gorm"
)

const ballotIndexName = "idx_vote_voter_question"

// Run 执行全部迁移：先清理重复选票，再自动迁移表结构
func Run(db *gorm.DB) error {
	if err := DedupeBallots(db); err != nil {
		return err
	}
	if err := db.AutoMigrate(&models.Question{}, &models.Choice{}, &models.Vote{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// DedupeBallots 在建立 (voter_id, question_id) 唯一索引之前，
// 每个投票人每个问题只保留最新的一张选票
func DedupeBallots(db *gorm.DB) error {
	migrator := db.Migrator()
	if !migrator.HasTable(&models.Vote{}) {
		return nil
	}
	if migrator.HasIndex(&models.Vote{}, ballotIndexName) {
		log.Println("迁移跳过: 选票唯一索引已存在")
		return nil
	}

	log.Println("执行迁移: 清理重复选票")
	res := db.Exec(`DELETE FROM votes WHERE id NOT IN (
		SELECT id FROM (SELECT MAX(id) AS id FROM votes GROUP BY voter_id, question_id) AS keep_ids
	)`)
	if res.Error != nil {
		log.Printf("迁移失败: %v", res.Error)
		return fmt.Errorf("dedupe ballots: %w", res.Error)
	}
	log.Printf("迁移成功: 删除了 %d 张重复选票", res.RowsAffected)
	return nil
}
