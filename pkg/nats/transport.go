package natsclient

import (
	"context"
	"time"
)

// DialConfig параметры подключения к брокеру.
type DialConfig struct {
	ServerURL string
	ClusterID string
	ClientID  string
	// OnClose вызывается, когда брокер или транспорт закрывают соединение.
	OnClose func()
}

// Dialer открывает соединения с брокером.
type Dialer interface {
	Dial(ctx context.Context, cfg DialConfig) (Conn, error)
}

// MessageHandler получает очередное сообщение подписки вместе с функцией подтверждения.
type MessageHandler func(data []byte, ack func() error)

// ErrorHandler получает асинхронные ошибки подписки.
type ErrorHandler func(err error)

// SubscriptionOptions политика durable-подписки.
type SubscriptionOptions struct {
	DurableName         string
	DeliverAllAvailable bool
	ManualAck           bool
	AckWait             time.Duration
	MaxInFlight         int
}

// Conn соединение с брокером.
type Conn interface {
	// Publish публикует data в канал и ждёт подтверждения брокера.
	Publish(ctx context.Context, channel string, data []byte) error
	// Subscribe создаёт подписку группы queue на канал.
	Subscribe(
		channel, queue string,
		opts SubscriptionOptions,
		onMessage MessageHandler,
		onError ErrorHandler,
	) (Subscription, error)
	Close() error
}

// Subscription активная подписка на канал.
type Subscription interface {
	Close() error
}
