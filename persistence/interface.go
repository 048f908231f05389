// persistence/interface.go
package persistence

import (
	"context"
	"errors"

	"github.com/wfunc/foosref/models"
)

// Database 数据库接口
type Database interface {
	SaveChannelState(ctx context.Context, state *models.ChannelState) error
	LoadChannelState(ctx context.Context, channelID string) (*models.ChannelState, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
)
