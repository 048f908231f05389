// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/lib/pq"
	"github.com/wfunc/foosref/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,   // 慢SQL阈值
			LogLevel:      logger.Silent, // 日志级别
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn(host, port, user, password, dbname)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.GormChannelState{}); err != nil {
		return nil, fmt.Errorf("migrate channel_states: %w", err)
	}

	return &GormPostgreSQL{db: db}, nil
}

// SaveChannelState upserts the channel row keyed by channel_id.
func (p *GormPostgreSQL) SaveChannelState(ctx context.Context, state *models.ChannelState) error {
	row := models.GormChannelState{
		ChannelID:  state.ChannelID,
		Players:    pq.StringArray(append([]string{}, state.Players...)),
		Open:       state.Open,
		LastGameAt: state.LastGameAt,
	}

	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"players", "open", "last_game_at", "updated_at"}),
	}).Create(&row).Error
}

// LoadChannelState 加载频道状态
func (p *GormPostgreSQL) LoadChannelState(ctx context.Context, channelID string) (*models.ChannelState, error) {
	var row models.GormChannelState
	if err := p.db.WithContext(ctx).Where("channel_id = ?", channelID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return row.ToChannelState(), nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
