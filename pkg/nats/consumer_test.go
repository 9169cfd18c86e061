package natsclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueConsumer_SubscriptionOptions(t *testing.T) {
	dialer := newFakeDialer()
	client := newTestClient(dialer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range client.MakeQueueConsumer(ctx, "crc-cargo", "worker", "worker", "-consumer") {
		}
	}()

	sub := dialer.nextSub(t)
	cancel()
	<-done
	require.NotNil(t, sub)

	assert.Equal(t, "crc-cargo", sub.channel)
	assert.Equal(t, "worker", sub.queue)
	assert.Equal(t, SubscriptionOptions{
		DurableName:         "worker",
		DeliverAllAvailable: true,
		ManualAck:           true,
		AckWait:             5 * time.Second,
		MaxInFlight:         1,
	}, sub.opts)
	assert.Equal(t, 1, sub.closes())
	assert.Equal(t, 1, dialer.conn(0).closes())
	assert.Equal(t, []string{"gw_consumer"}, dialer.clientIDs())
}

func TestQueueConsumer_DeliversAndAcks(t *testing.T) {
	dialer := newFakeDialer()
	client := newTestClient(dialer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subs := make(chan *fakeSub, 1)
	go func() {
		if sub := dialer.nextSub(t); sub != nil {
			subs <- sub
			sub.deliver("one")
			sub.deliver("two")
		}
	}()

	var received []string
	for message, err := range client.MakeQueueConsumer(ctx, "crc-cargo", "worker", "worker", "") {
		require.NoError(t, err)
		received = append(received, string(message.Data))
		require.NoError(t, message.Ack())
		require.NoError(t, message.Ack())
		if len(received) == 2 {
			break
		}
	}

	assert.Equal(t, []string{"one", "two"}, received)

	sub := <-subs
	assert.Equal(t, 1, sub.ackCount("one"))
	assert.Equal(t, 1, sub.ackCount("two"))
	assert.Equal(t, 1, sub.closes())
	assert.Equal(t, 1, dialer.conn(0).closes())
}

func TestQueueMessage_AckIsIdempotent(t *testing.T) {
	calls := 0
	message := NewQueueMessage([]byte("x"), func() error {
		calls++
		return errors.New("ack failed")
	})

	assert.Error(t, message.Ack())
	assert.NoError(t, message.Ack())
	assert.Equal(t, 1, calls)
}

func TestQueueConsumer_SubscriptionError(t *testing.T) {
	dialer := newFakeDialer()
	client := newTestClient(dialer)
	subErr := errors.New("slow consumer")

	subs := make(chan *fakeSub, 1)
	go func() {
		if sub := dialer.nextSub(t); sub != nil {
			subs <- sub
			sub.onError(subErr)
			sub.onError(errors.New("second error"))
		}
	}()

	var errs []error
	for message, err := range client.MakeQueueConsumer(context.Background(), "crc-cargo", "worker", "worker", "") {
		assert.Nil(t, message)
		errs = append(errs, err)
	}

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], subErr)
	assert.Equal(t, 1, (<-subs).closes())
	assert.Equal(t, 1, dialer.conn(0).closes())
}

func TestQueueConsumer_SubscribeFailure(t *testing.T) {
	dialer := newFakeDialer()
	subErr := errors.New("consumer not permitted")
	dialer.setup = func(c *fakeConn) { c.subscribeErr = subErr }

	var errs []error
	for _, err := range newTestClient(dialer).MakeQueueConsumer(context.Background(), "crc-cargo", "worker", "worker", "") {
		errs = append(errs, err)
	}

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], subErr)
	assert.Equal(t, 1, dialer.conn(0).closes())
}

func TestQueueConsumer_ConnectFailure(t *testing.T) {
	dialer := newFakeDialer()
	dialer.err = errors.New("connection refused")

	var errs []error
	for _, err := range newTestClient(dialer).MakeQueueConsumer(context.Background(), "crc-cargo", "worker", "worker", "") {
		errs = append(errs, err)
	}

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], dialer.err)
}

func TestQueueConsumer_NoYieldAfterCancellation(t *testing.T) {
	dialer := newFakeDialer()
	client := newTestClient(dialer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subs := make(chan *fakeSub, 1)
	go func() {
		if sub := dialer.nextSub(t); sub != nil {
			subs <- sub
			sub.deliver("first")
		}
	}()

	var (
		received []string
		sub      *fakeSub
	)
	for message, err := range client.MakeQueueConsumer(ctx, "crc-cargo", "worker", "worker", "") {
		require.NoError(t, err)
		received = append(received, string(message.Data))

		cancel()
		sub = <-subs
		go sub.deliver("late")
	}

	assert.Equal(t, []string{"first"}, received)
	require.NotNil(t, sub)
	assert.Equal(t, 1, sub.closes())
	assert.Equal(t, 1, dialer.conn(0).closes())
}
