package message

import (
	"context"
	"errors"

	"message-store/server/internal/model"
)

var ErrNotFound = errors.New("message not found")

type Store interface {
	// Append 将消息追加到末尾并返回其下标（即追加前的长度），不会失败。
	Append(ctx context.Context, msg model.Message) uint64
	// Get 返回 index 处消息的副本；越界时返回 ErrNotFound。
	Get(ctx context.Context, index uint64) (model.Message, error)
	// Replace 整体覆盖 index 处的消息；越界时返回 ErrNotFound 且不做任何修改。
	Replace(ctx context.Context, index uint64, msg model.Message) error
	// Len 返回当前消息条数。
	Len(ctx context.Context) int
}
