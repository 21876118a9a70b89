package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pixel-platformer/internal/domain"
	"pixel-platformer/internal/repository"
)

// MySQL 错误码
const (
	mysqlErrDuplicateEntry  = 1062 // 唯一约束冲突
	mysqlErrLockDeadlock    = 1213 // 死锁，事务被回滚
	mysqlErrLockWaitTimeout = 1205 // 锁等待超时
)

// GormProgressionRepository 是 ProgressionRepository 接口的 GORM 实现。
// WithTx 返回的实例绑定事务句柄，通关判定的 check-then-write 序列
// 全部经由它执行。
type GormProgressionRepository struct {
	db *gorm.DB
}

// NewGormProgressionRepository 创建 GormProgressionRepository 实例
func NewGormProgressionRepository(db *gorm.DB) *GormProgressionRepository {
	if db == nil {
		panic("database connection cannot be nil for GormProgressionRepository")
	}
	return &GormProgressionRepository{db: db}
}

// WithTx 在单个数据库事务中执行 fn。
// fn 返回错误时 GORM 回滚整个事务；死锁/锁超时映射为 ErrTransient，
// 由拥有事务的调用方决定重试。
func (r *GormProgressionRepository) WithTx(ctx context.Context, fn func(tx repository.ProgressionRepository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormProgressionRepository{db: tx})
	})
	if err != nil {
		return mapMySQLError(err, "progression transaction")
	}
	return nil
}

// FindLevelForUpdate 加行级锁读取关卡行 (SELECT ... FOR UPDATE)。
// 同一关卡的并发通关事务在这里串行化：后到者阻塞，直到先到者提交，
// 随后观察到已写入的通关记录。
func (r *GormProgressionRepository) FindLevelForUpdate(ctx context.Context, levelID uint) (*domain.Level, error) {
	var level domain.Level
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&level, levelID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrLevelNotFound
		}
		return nil, mapMySQLError(err, fmt.Sprintf("lock level %d", levelID))
	}
	return &level, nil
}

// FindLevelByOrder 查找世界内指定顺序索引的关卡
func (r *GormProgressionRepository) FindLevelByOrder(ctx context.Context, worldID uint, orderIdx int) (*domain.Level, error) {
	var level domain.Level
	err := r.db.WithContext(ctx).
		Where("world_id = ? AND order_idx = ?", worldID, orderIdx).
		First(&level).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrLevelNotFound
		}
		return nil, mapMySQLError(err, fmt.Sprintf("find level by order (world %d, idx %d)", worldID, orderIdx))
	}
	return &level, nil
}

// IsCompleted 报告玩家是否已通关指定关卡
func (r *GormProgressionRepository) IsCompleted(ctx context.Context, playerID, levelID uint) (bool, error) {
	var progress domain.PlayerProgress
	err := r.db.WithContext(ctx).
		Where("player_id = ? AND level_id = ?", playerID, levelID).
		First(&progress).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil // 没有记录等价于未通关
		}
		return false, mapMySQLError(err, fmt.Sprintf("check completion (player %d, level %d)", playerID, levelID))
	}
	return progress.Completed, nil
}

// MarkCompleted 以 upsert 将进度记录写为已通关。
// ON DUPLICATE KEY 只会把 completed 拉成 true，不会反向重置。
func (r *GormProgressionRepository) MarkCompleted(ctx context.Context, playerID, levelID uint, at time.Time) error {
	record := domain.PlayerProgress{
		PlayerID:    playerID,
		LevelID:     levelID,
		Completed:   true,
		CompletedAt: &at,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "player_id"}, {Name: "level_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"completed": true, "completed_at": at}),
		}).
		Create(&record).Error
	if err != nil {
		return mapMySQLError(err, fmt.Sprintf("mark completed (player %d, level %d)", playerID, levelID))
	}
	return nil
}

// InsertUnlock 幂等地插入关卡解锁授权 (重复即 no-op)
func (r *GormProgressionRepository) InsertUnlock(ctx context.Context, playerID, levelID uint) error {
	unlock := domain.PlayerUnlock{PlayerID: playerID, LevelID: levelID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&unlock).Error
	if err != nil {
		return mapMySQLError(err, fmt.Sprintf("insert unlock (player %d, level %d)", playerID, levelID))
	}
	return nil
}

// InsertWorldUnlock 幂等地插入世界解锁授权
func (r *GormProgressionRepository) InsertWorldUnlock(ctx context.Context, playerID, worldID uint) error {
	unlock := domain.PlayerWorld{PlayerID: playerID, WorldID: worldID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&unlock).Error
	if err != nil {
		return mapMySQLError(err, fmt.Sprintf("insert world unlock (player %d, world %d)", playerID, worldID))
	}
	return nil
}

// ListPlayerLevels 返回玩家视角的关卡列表。
// LEFT JOIN 进度与解锁记录；OrderIdx=0 的首关隐式解锁，无需解锁记录。
func (r *GormProgressionRepository) ListPlayerLevels(ctx context.Context, playerID, worldID uint) ([]domain.PlayerLevel, error) {
	type row struct {
		domain.Level
		Completed   bool
		CompletedAt *time.Time
		HasUnlock   bool
	}
	query := r.db.WithContext(ctx).
		Table("levels AS l").
		Select(`l.*,
			COALESCE(pp.completed, false) AS completed,
			pp.completed_at AS completed_at,
			pu.id IS NOT NULL AS has_unlock`).
		Joins("LEFT JOIN player_progress pp ON pp.level_id = l.id AND pp.player_id = ?", playerID).
		Joins("LEFT JOIN player_unlocks pu ON pu.level_id = l.id AND pu.player_id = ?", playerID)
	if worldID != domain.WorldAll {
		query = query.Where("l.world_id = ?", worldID)
	}
	var rows []row
	err := query.Order("l.world_id ASC, l.order_idx ASC").Scan(&rows).Error
	if err != nil {
		return nil, mapMySQLError(err, fmt.Sprintf("list player levels (player %d, world %d)", playerID, worldID))
	}

	levels := make([]domain.PlayerLevel, 0, len(rows))
	for _, rw := range rows {
		levels = append(levels, domain.PlayerLevel{
			Level:       rw.Level,
			Completed:   rw.Completed,
			CompletedAt: rw.CompletedAt,
			Unlocked:    rw.OrderIdx == 0 || rw.HasUnlock,
		})
	}
	return levels, nil
}

// ListCompleted 返回玩家的全部已通关记录
func (r *GormProgressionRepository) ListCompleted(ctx context.Context, playerID uint) ([]domain.PlayerProgress, error) {
	var records []domain.PlayerProgress
	err := r.db.WithContext(ctx).
		Joins("JOIN levels l ON l.id = player_progress.level_id").
		Where("player_progress.player_id = ? AND player_progress.completed = ?", playerID, true).
		Order("l.world_id ASC, l.order_idx ASC").
		Find(&records).Error
	if err != nil {
		return nil, mapMySQLError(err, fmt.Sprintf("list completed (player %d)", playerID))
	}
	return records, nil
}

// mapMySQLError 将底层 MySQL 错误映射为仓库层错误。
// 死锁和锁等待超时是可重试的瞬态错误；唯一约束冲突映射为 ErrDuplicateEntry。
func mapMySQLError(err error, op string) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDuplicateEntry:
			return fmt.Errorf("gorm: %s: %w", op, repository.ErrDuplicateEntry)
		case mysqlErrLockDeadlock, mysqlErrLockWaitTimeout:
			return fmt.Errorf("gorm: %s: %w", op, repository.ErrTransient)
		}
	}
	// 仓库层哨兵错误原样透传，供 errors.Is 判断
	if errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, repository.ErrDuplicateEntry) ||
		errors.Is(err, repository.ErrTransient) {
		return err
	}
	return fmt.Errorf("gorm: %s: %w", op, err)
}
