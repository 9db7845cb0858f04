package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"message-store/server/internal/message"
	"message-store/server/internal/model"
	"message-store/server/internal/stream"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type Server struct {
	store  message.Store
	hub    *stream.Hub
	logger zerolog.Logger

	streamConfig stream.ConnConfig
	// baseCtx 在进程关闭时取消，用于结束长连接
	baseCtx context.Context

	// writeMu 让写入与事件发布按同一顺序发生，推送流中的最后一个事件总与存储一致
	writeMu sync.Mutex

	upgrader websocket.Upgrader
}

// Option 配置 Server 的可选项。
type Option func(*Server)

// WithStreamConfig 设置 WebSocket 推送的心跳与写超时。
func WithStreamConfig(cfg stream.ConnConfig) Option {
	return func(s *Server) { s.streamConfig = cfg }
}

// WithBaseContext 设置长连接的生命周期上下文。
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) { s.baseCtx = ctx }
}

func NewServer(store message.Store, hub *stream.Hub, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		store:   store,
		hub:     hub,
		logger:  logger,
		baseCtx: context.Background(),
		upgrader: websocket.Upgrader{
			// 变更推送是只读的公开数据，不限制来源
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Routes() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/stream", s.handleStream)
	engine.POST("/message", s.handleCreate)
	engine.GET("/message/:id", s.handleRead)
	engine.POST("/message/:id", s.handleUpdate)
	return engine
}

// messageRequest 是请求体的解码目标。contents 用指针区分缺省/null 与空字符串。
type messageRequest struct {
	Author   *string `json:"author"`
	Contents *string `json:"contents" binding:"required"`
}

func (r messageRequest) toMessage() model.Message {
	return model.Message{Author: r.Author, Contents: *r.Contents}
}

// bindMessage 要求整个请求体是单个合法 JSON 值，尾随内容也视为非法。
func bindMessage(c *gin.Context) (model.Message, bool) {
	data, err := c.GetRawData()
	if err != nil || !json.Valid(data) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message body"})
		return model.Message{}, false
	}

	var req messageRequest
	if err := binding.JSON.BindBody(data, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message body"})
		return model.Message{}, false
	}
	return req.toMessage(), true
}

func bindIndex(c *gin.Context) (uint64, bool) {
	index, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return 0, false
	}
	return index, true
}

// handleHealthz 返回服务健康状态。
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "messages": s.store.Len(c.Request.Context())})
}

// handleCreate 处理 POST /message，返回新消息的下标（纯文本）。
func (s *Server) handleCreate(c *gin.Context) {
	msg, ok := bindMessage(c)
	if !ok {
		return
	}

	index := s.create(c.Request.Context(), msg)
	c.String(http.StatusOK, strconv.FormatUint(index, 10))
}

// handleRead 处理 GET /message/:id。
func (s *Server) handleRead(c *gin.Context) {
	index, ok := bindIndex(c)
	if !ok {
		return
	}

	msg, err := s.store.Get(c.Request.Context(), index)
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// handleUpdate 处理 POST /message/:id，先解码请求体再解码下标。
func (s *Server) handleUpdate(c *gin.Context) {
	msg, ok := bindMessage(c)
	if !ok {
		return
	}
	index, ok := bindIndex(c)
	if !ok {
		return
	}

	if err := s.replace(c.Request.Context(), index, msg); err != nil {
		s.writeStoreError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

func (s *Server) create(ctx context.Context, msg model.Message) uint64 {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	index := s.store.Append(ctx, msg)
	s.hub.Publish(stream.Event{Type: stream.EventCreated, Index: index, Message: msg})
	return index
}

func (s *Server) replace(ctx context.Context, index uint64, msg model.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.store.Replace(ctx, index, msg); err != nil {
		return err
	}
	s.hub.Publish(stream.Event{Type: stream.EventUpdated, Index: index, Message: msg})
	return nil
}

// handleStream 升级为 WebSocket，推送后续的创建/更新事件。
func (s *Server) handleStream(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "websocket upgrade required"})
		return
	}

	sub, err := s.hub.Subscribe()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stream closed"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时已经写回了错误响应
		sub.Close()
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	logger := s.logger.With().Str("remote", c.Request.RemoteAddr).Logger()
	logger.Info().Msg("stream client connected")
	if err := stream.Serve(s.baseCtx, conn, sub, s.streamConfig, logger); err != nil {
		logger.Warn().Err(err).Msg("stream connection ended with error")
		return
	}
	logger.Info().Int64("dropped", sub.Dropped()).Msg("stream client disconnected")
}

func (s *Server) writeStoreError(c *gin.Context, err error) {
	if errors.Is(err, message.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	s.logger.Error().Err(err).Msg("store operation failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := zerolog.InfoLevel
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = zerolog.ErrorLevel
		}
		s.logger.WithLevel(level).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
