package stream

import (
	"errors"
	"sync"
	"sync/atomic"

	"message-store/server/internal/model"

	"github.com/rs/zerolog"
)

var ErrClosed = errors.New("stream hub closed")

type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
)

// Event 描述一次成功的写操作，推送给所有订阅者。
type Event struct {
	Type    EventType     `json:"type"`
	Index   uint64        `json:"index"`
	Message model.Message `json:"message"`
}

const defaultBufferSize = 64

// Hub 把写事件扇出给所有订阅者。
// Publish 不阻塞：订阅者缓冲已满时丢弃该事件（背压控制），不影响写请求本身。
type Hub struct {
	mu         sync.RWMutex
	subs       map[*Subscription]struct{}
	closed     bool
	bufferSize int
	logger     zerolog.Logger
}

func NewHub(bufferSize int, logger zerolog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		subs:       make(map[*Subscription]struct{}),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe 注册一个新订阅者；Hub 关闭后返回 ErrClosed。
func (h *Hub) Subscribe() (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	sub := &Subscription{
		hub:    h,
		events: make(chan Event, h.bufferSize),
		done:   make(chan struct{}),
	}
	h.subs[sub] = struct{}{}
	h.logger.Debug().Int("subscribers", len(h.subs)).Msg("stream subscriber added")
	return sub, nil
}

// Publish 投递事件，返回成功投递的订阅者数量。
func (h *Hub) Publish(evt Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs {
		select {
		case sub.events <- evt:
			delivered++
		default:
			dropped := sub.dropped.Add(1)
			h.logger.Warn().
				Str("type", string(evt.Type)).
				Uint64("index", evt.Index).
				Int64("dropped", dropped).
				Msg("stream subscriber buffer full, dropping event")
		}
	}
	return delivered
}

// Subscribers 返回当前订阅者数量。
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close 结束所有订阅，之后的 Subscribe 返回 ErrClosed。
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		sub.finish()
	}
	h.subs = nil
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
}

// Subscription 是单个订阅者的事件通道。
type Subscription struct {
	hub       *Hub
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

func (s *Subscription) Events() <-chan Event { return s.events }

// Done 在订阅被关闭（自身或 Hub）后关闭。
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Dropped 返回因缓冲已满被丢弃的事件数。
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close 可重复调用。
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.finish()
}

func (s *Subscription) finish() {
	s.closeOnce.Do(func() { close(s.done) })
}
