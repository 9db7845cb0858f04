package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ConnConfig 控制单个 WebSocket 连接的心跳与写超时。
type ConnConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
}

const (
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	maxClientFrameBytes = 512
)

func (c ConnConfig) withDefaults() ConnConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	return c
}

// Serve 把订阅中的事件以 JSON 文本帧写给客户端，直到客户端断开、订阅结束或 ctx 取消。
// 客户端发来的帧只用于探测断开，内容被丢弃。Serve 返回前会关闭 conn 和 sub。
func Serve(ctx context.Context, conn *websocket.Conn, sub *Subscription, cfg ConnConfig, logger zerolog.Logger) error {
	cfg = cfg.withDefaults()
	defer sub.Close()
	defer conn.Close()

	pongWait := 2 * cfg.PingInterval
	conn.SetReadLimit(maxClientFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	readDone := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				readDone <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			closeGracefully(conn, cfg.WriteTimeout, websocket.CloseGoingAway)
			return nil

		case <-sub.Done():
			closeGracefully(conn, cfg.WriteTimeout, websocket.CloseGoingAway)
			return nil

		case err := <-readDone:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.Debug().Msg("stream client missed pong, closing")
				return nil
			}
			logger.Debug().Err(err).Msg("stream client read ended")
			return nil

		case evt := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				return fmt.Errorf("write event: %w", err)
			}

		case <-ticker.C:
			deadline := time.Now().Add(cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func closeGracefully(conn *websocket.Conn, timeout time.Duration, code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout))
}
