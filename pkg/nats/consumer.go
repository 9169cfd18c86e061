package natsclient

import (
	"context"
	"iter"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Политика подписки потребителя очереди.
const (
	QueueAckWait     = 5 * time.Second
	QueueMaxInFlight = 1
)

// QueueMessage сообщение очереди. Пока не вызван Ack, брокер считает его
// недоставленным и после QueueAckWait отдаст повторно.
type QueueMessage struct {
	Data []byte

	ack  func() error
	once sync.Once
	err  error
}

// NewQueueMessage создаёт сообщение с функцией подтверждения.
func NewQueueMessage(data []byte, ack func() error) *QueueMessage {
	return &QueueMessage{Data: data, ack: ack}
}

// Ack подтверждает сообщение. Повторные вызовы ничего не делают.
func (m *QueueMessage) Ack() error {
	first := false
	m.once.Do(func() {
		first = true
		if m.ack != nil {
			m.err = m.ack()
		}
	})
	if !first {
		return nil
	}
	return m.err
}

// MakeQueueConsumer подписывается на канал как участник группы queue с durable-состоянием
// durableName и отдаёт сообщения по одному. Отмена ctx и выход из цикла завершают
// последовательность без ошибки; ошибка подписки отдаётся один раз последней.
func (c *Client) MakeQueueConsumer(
	ctx context.Context,
	channel, queue, durableName, clientIDSuffix string,
) iter.Seq2[*QueueMessage, error] {
	return func(yield func(*QueueMessage, error) bool) {
		log := c.log.With(
			zap.String("channel", channel),
			zap.String("queue", queue),
			zap.String("durable", durableName),
		)
		manager := c.connection(clientIDSuffix)

		conn, err := manager.Acquire(ctx)
		if err != nil {
			if ctx.Err() == nil {
				yield(nil, err)
			}
			return
		}
		defer func() {
			if err := manager.Release(conn); err != nil {
				log.Warn("Failed to close consumer connection", zap.Error(err))
			}
		}()

		messages := make(chan *QueueMessage, 1)
		errs := make(chan error, 1)
		done := make(chan struct{})

		opts := SubscriptionOptions{
			DurableName:         durableName,
			DeliverAllAvailable: true,
			ManualAck:           true,
			AckWait:             QueueAckWait,
			MaxInFlight:         QueueMaxInFlight,
		}

		onMessage := func(data []byte, ack func() error) {
			select {
			case messages <- NewQueueMessage(data, ack):
			case <-done:
			}
		}
		onError := func(err error) {
			select {
			case errs <- err:
			case <-done:
			default:
				// Уже есть необработанная ошибка, последовательность и так завершится.
			}
		}

		sub, err := conn.Subscribe(channel, queue, opts, onMessage, onError)
		if err != nil {
			close(done)
			yield(nil, err)
			return
		}
		defer func() {
			close(done)
			if err := sub.Close(); err != nil {
				log.Warn("Failed to close subscription", zap.Error(err))
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case err := <-errs:
				yield(nil, err)
				return
			case message := <-messages:
				if ctx.Err() != nil {
					return
				}
				if !yield(message, nil) {
					return
				}
			}
		}
	}
}
