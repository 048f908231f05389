// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL 驱动
	"github.com/wfunc/foosref/models"
)

// PostgreSQL 数据库实现
type PostgreSQL struct {
	db *sql.DB
}

func dsn(host string, port int, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn(host, port, user, password, dbname))
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		return nil, fmt.Errorf("init tables: %w", err)
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构，与 GORM 迁移出的表兼容
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS channel_states (
            id BIGSERIAL PRIMARY KEY,
            channel_id TEXT UNIQUE NOT NULL,
            players TEXT[] NOT NULL DEFAULT '{}',
            open BOOLEAN NOT NULL DEFAULT FALSE,
            last_game_at TIMESTAMPTZ NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            deleted_at TIMESTAMPTZ
        )
    `)
	return err
}

// SaveChannelState 保存频道状态
func (p *PostgreSQL) SaveChannelState(ctx context.Context, state *models.ChannelState) error {
	query := `
        INSERT INTO channel_states (channel_id, players, open, last_game_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (channel_id)
        DO UPDATE SET players = $2, open = $3, last_game_at = $4, updated_at = CURRENT_TIMESTAMP
    `

	_, err := p.db.ExecContext(ctx, query, state.ChannelID, pq.Array(state.Players), state.Open, state.LastGameAt)
	return err
}

// LoadChannelState 加载频道状态
func (p *PostgreSQL) LoadChannelState(ctx context.Context, channelID string) (*models.ChannelState, error) {
	state := &models.ChannelState{ChannelID: channelID}
	query := `SELECT players, open, last_game_at, updated_at FROM channel_states WHERE channel_id = $1`
	err := p.db.QueryRowContext(ctx, query, channelID).Scan(
		pq.Array(&state.Players), &state.Open, &state.LastGameAt, &state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	if state.Players == nil {
		state.Players = []string{}
	}
	return state, nil
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
