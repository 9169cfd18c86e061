package natsclient

import (
	"context"
	"iter"

	"go.uber.org/zap"
)

// PublisherMessage сообщение для публикации.
// ID задаёт вызывающий код; после подтверждения брокером он возвращается как есть.
type PublisherMessage struct {
	ID   string
	Data []byte
}

// Publisher публикует сообщения по одному и отдаёт ID каждого подтверждённого.
// Первая ошибка публикации завершает последовательность, остаток входа не читается.
type Publisher func(ctx context.Context, messages iter.Seq[PublisherMessage]) iter.Seq2[string, error]

type connectResult struct {
	conn Conn
	err  error
}

// MakePublisher создаёт публикатор для канала. Соединение открывается
// при старте итерации, сразу, не дожидаясь первого сообщения,
// и закрывается при её завершении.
func (c *Client) MakePublisher(channel, clientIDSuffix string) Publisher {
	return func(ctx context.Context, messages iter.Seq[PublisherMessage]) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			manager := c.connection(clientIDSuffix)

			pending := make(chan connectResult, 1)
			go func() {
				conn, err := manager.Acquire(ctx)
				pending <- connectResult{conn: conn, err: err}
			}()

			var (
				conn     Conn
				received bool
			)
			await := func() error {
				if !received {
					result := <-pending
					received = true
					conn = result.conn
					if result.err != nil {
						return result.err
					}
				}
				return nil
			}
			defer func() {
				if !received {
					result := <-pending
					conn = result.conn
				}
				if conn != nil {
					if err := manager.Release(conn); err != nil {
						c.log.Warn("Failed to close publisher connection",
							zap.String("channel", channel),
							zap.Error(err),
						)
					}
				}
			}()

			for message := range messages {
				if err := await(); err != nil {
					yield("", err)
					return
				}
				if err := conn.Publish(ctx, channel, message.Data); err != nil {
					yield("", err)
					return
				}
				if !yield(message.ID, nil) {
					return
				}
			}

			if err := await(); err != nil {
				yield("", err)
			}
		}
	}
}

// PublishMessage публикует одно сообщение через отдельное соединение.
func (c *Client) PublishMessage(ctx context.Context, data []byte, channel, clientIDSuffix string) error {
	publisher := c.MakePublisher(channel, clientIDSuffix)
	for _, err := range publisher(ctx, Messages(PublisherMessage{Data: data})) {
		if err != nil {
			return err
		}
	}
	return nil
}

// Messages превращает срез сообщений в последовательность для Publisher.
func Messages(messages ...PublisherMessage) iter.Seq[PublisherMessage] {
	return func(yield func(PublisherMessage) bool) {
		for _, message := range messages {
			if !yield(message) {
				return
			}
		}
	}
}
