package natsclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const streamSetupTimeout = 10 * time.Second

// JetStreamDialer подключается к NATS и работает с каналами через JetStream.
//
// Cluster id задаёт поток: поток <cluster> собирает subject'ы <cluster>.>,
// канал c публикуется в <cluster>.c.
type JetStreamDialer struct {
	log *zap.Logger
}

// NewJetStreamDialer создаёт транспорт по умолчанию.
func NewJetStreamDialer(log *zap.Logger) *JetStreamDialer {
	return &JetStreamDialer{log: log}
}

// StreamName приводит cluster id к допустимому имени потока.
func StreamName(clusterID string) string {
	return sanitizeName(clusterID)
}

// ConsumerName имя durable-потребителя JetStream. Durable-имя действует
// в пределах канала, а потребители JetStream общие для всего потока.
func ConsumerName(channel, durableName string) string {
	return sanitizeName(channel + "_" + durableName)
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// Dial открывает соединение и создаёт поток кластера, если его ещё нет.
func (d *JetStreamDialer) Dial(ctx context.Context, cfg DialConfig) (Conn, error) {
	log := d.log.With(zap.String("clientId", cfg.ClientID), zap.String("clusterId", cfg.ClusterID))

	conn := &jetStreamConn{
		stream: StreamName(cfg.ClusterID),
		log:    log,
		subs:   make(map[*nats.Subscription]ErrorHandler),
	}

	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("NATS async error", zap.Error(err))
			conn.notify(sub, err)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info("NATS connection closed")
			conn.closed()
			if cfg.OnClose != nil {
				cfg.OnClose()
			}
		}),
	}

	nc, err := nats.Connect(cfg.ServerURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to init JetStream: %w", err)
	}
	conn.nc, conn.js = nc, js

	if err := conn.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}

	log.Info("NATS connected", zap.String("url", nc.ConnectedUrl()), zap.String("stream", conn.stream))

	return conn, nil
}

type jetStreamConn struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	stream string
	log    *zap.Logger

	mu   sync.Mutex
	subs map[*nats.Subscription]ErrorHandler
}

func (c *jetStreamConn) subject(channel string) string {
	return c.stream + "." + channel
}

func (c *jetStreamConn) ensureStream(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, streamSetupTimeout)
	defer cancel()

	_, err := c.js.StreamInfo(c.stream, nats.Context(ctx))
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream %s: %w", c.stream, err)
	}

	_, err = c.js.AddStream(&nats.StreamConfig{
		Name:     c.stream,
		Subjects: []string{c.stream + ".>"},
		Storage:  nats.FileStorage,
	}, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create stream %s: %w", c.stream, err)
	}
	return nil
}

// Publish публикует сообщение и ждёт PubAck. Ошибка брокера возвращается
// без обёртки.
func (c *jetStreamConn) Publish(ctx context.Context, channel string, data []byte) error {
	subject := c.subject(channel)
	if _, err := c.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		c.log.Debug("Failed to publish message", zap.String("subject", subject), zap.Error(err))
		return err
	}
	return nil
}

// Subscribe привязывается к durable-потребителю, создавая его при необходимости.
func (c *jetStreamConn) Subscribe(
	channel, queue string,
	opts SubscriptionOptions,
	onMessage MessageHandler,
	onError ErrorHandler,
) (Subscription, error) {
	subject := c.subject(channel)

	consumer := ConsumerName(channel, opts.DurableName)
	if err := c.ensureConsumer(subject, queue, consumer, opts); err != nil {
		return nil, err
	}

	handler := func(msg *nats.Msg) {
		onMessage(msg.Data, func() error { return msg.Ack() })
	}

	subOpts := []nats.SubOpt{nats.Bind(c.stream, consumer)}
	if opts.ManualAck {
		subOpts = append(subOpts, nats.ManualAck())
	}

	// Регистрация под mu: ErrorHandler не должен увидеть подписку без обработчика.
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.js.QueueSubscribe(subject, queue, handler, subOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	c.subs[sub] = onError

	return &jetStreamSubscription{conn: c, sub: sub}, nil
}

func (c *jetStreamConn) ensureConsumer(subject, queue, consumer string, opts SubscriptionOptions) error {
	_, err := c.js.ConsumerInfo(c.stream, consumer)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrConsumerNotFound) {
		return fmt.Errorf("failed to get consumer %s: %w", consumer, err)
	}

	deliverPolicy := nats.DeliverNewPolicy
	if opts.DeliverAllAvailable {
		deliverPolicy = nats.DeliverAllPolicy
	}
	ackPolicy := nats.AckNonePolicy
	if opts.ManualAck {
		ackPolicy = nats.AckExplicitPolicy
	}

	_, err = c.js.AddConsumer(c.stream, &nats.ConsumerConfig{
		Durable:        consumer,
		DeliverSubject: nats.NewInbox(),
		DeliverGroup:   queue,
		DeliverPolicy:  deliverPolicy,
		AckPolicy:      ackPolicy,
		AckWait:        opts.AckWait,
		MaxAckPending:  opts.MaxInFlight,
		FilterSubject:  subject,
	})
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		return fmt.Errorf("failed to create consumer %s: %w", consumer, err)
	}
	return nil
}

func (c *jetStreamConn) notify(sub *nats.Subscription, err error) {
	if sub == nil {
		return
	}

	c.mu.Lock()
	onError, ok := c.subs[sub]
	c.mu.Unlock()

	if ok {
		onError(err)
	}
}

// closed сообщает всем живым подпискам о закрытии соединения.
func (c *jetStreamConn) closed() {
	c.mu.Lock()
	handlers := make([]ErrorHandler, 0, len(c.subs))
	for sub, onError := range c.subs {
		handlers = append(handlers, onError)
		delete(c.subs, sub)
	}
	c.mu.Unlock()

	for _, onError := range handlers {
		onError(nats.ErrConnectionClosed)
	}
}

func (c *jetStreamConn) Close() error {
	c.nc.Close()
	return nil
}

type jetStreamSubscription struct {
	conn *jetStreamConn
	sub  *nats.Subscription
}

// Close отписывается, оставляя durable-потребителя на сервере.
func (s *jetStreamSubscription) Close() error {
	s.conn.mu.Lock()
	delete(s.conn.subs, s.sub)
	s.conn.mu.Unlock()

	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return nil
}
