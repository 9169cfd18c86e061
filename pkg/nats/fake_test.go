package natsclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errPublish = errors.New("broker rejected message")

type fakeDialer struct {
	mu      sync.Mutex
	configs []DialConfig
	conns   []*fakeConn
	err     error

	// gate блокирует Dial до закрытия.
	gate chan struct{}
	// dialed получает сигнал на входе в Dial.
	dialed chan struct{}
	// setup настраивает каждое новое соединение.
	setup func(*fakeConn)
	// subscribed получает подписки всех соединений.
	subscribed chan *fakeSub
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		dialed:     make(chan struct{}, 16),
		subscribed: make(chan *fakeSub, 4),
	}
}

// nextSub ждёт следующую подписку. Безопасен для вызова из горутин теста.
func (d *fakeDialer) nextSub(t *testing.T) *fakeSub {
	select {
	case sub := <-d.subscribed:
		return sub
	case <-time.After(time.Second):
		t.Error("consumer did not subscribe")
		return nil
	}
}

func (d *fakeDialer) Dial(_ context.Context, cfg DialConfig) (Conn, error) {
	select {
	case d.dialed <- struct{}{}:
	default:
	}
	if d.gate != nil {
		<-d.gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.configs = append(d.configs, cfg)
	if d.err != nil {
		return nil, d.err
	}

	conn := &fakeConn{
		onClose:    cfg.OnClose,
		subscribed: d.subscribed,
	}
	if d.setup != nil {
		d.setup(conn)
	}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.configs)
}

func (d *fakeDialer) clientIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.configs))
	for _, cfg := range d.configs {
		ids = append(ids, cfg.ClientID)
	}
	return ids
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

type fakeConn struct {
	mu         sync.Mutex
	onClose    func()
	channels   []string
	published  [][]byte
	closeCount int

	// failOn номер публикации (с 1), которая завершится ошибкой.
	failOn       int
	subscribeErr error
	subscribed   chan *fakeSub
}

func (c *fakeConn) Publish(_ context.Context, channel string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.channels = append(c.channels, channel)
	c.published = append(c.published, data)
	if c.failOn > 0 && len(c.published) == c.failOn {
		return errPublish
	}
	return nil
}

func (c *fakeConn) Subscribe(
	channel, queue string,
	opts SubscriptionOptions,
	onMessage MessageHandler,
	onError ErrorHandler,
) (Subscription, error) {
	if c.subscribeErr != nil {
		return nil, c.subscribeErr
	}

	sub := &fakeSub{
		channel:   channel,
		queue:     queue,
		opts:      opts,
		onMessage: onMessage,
		onError:   onError,
	}
	c.subscribed <- sub
	return sub, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closeCount++
	onClose := c.onClose
	c.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return nil
}

func (c *fakeConn) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}

func (c *fakeConn) publishedData() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.published))
	for _, data := range c.published {
		out = append(out, string(data))
	}
	return out
}

type fakeSub struct {
	channel   string
	queue     string
	opts      SubscriptionOptions
	onMessage MessageHandler
	onError   ErrorHandler

	mu         sync.Mutex
	acks       map[string]int
	closeCount int
}

// deliver вызывает обработчик сообщения так же, как это делает транспорт.
func (s *fakeSub) deliver(data string) {
	s.onMessage([]byte(data), func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.acks == nil {
			s.acks = make(map[string]int)
		}
		s.acks[data]++
		return nil
	})
}

func (s *fakeSub) ackCount(data string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acks[data]
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	return nil
}

func (s *fakeSub) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}
