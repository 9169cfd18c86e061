package natsclient

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(dialer *fakeDialer) *Client {
	return New("nats://example.com", "cluster", "gw", WithDialer(dialer), WithLogger(zap.NewNop()))
}

func numbered(n int) []PublisherMessage {
	messages := make([]PublisherMessage, 0, n)
	for i := 1; i <= n; i++ {
		messages = append(messages, PublisherMessage{ID: fmt.Sprintf("id-%d", i), Data: []byte(fmt.Sprintf("data-%d", i))})
	}
	return messages
}

// counting считает, сколько сообщений публикатор забрал со входа.
func counting(messages []PublisherMessage, pulled *int) iter.Seq[PublisherMessage] {
	return func(yield func(PublisherMessage) bool) {
		for _, message := range messages {
			*pulled++
			if !yield(message) {
				return
			}
		}
	}
}

func collect(seq iter.Seq2[string, error]) ([]string, []error) {
	var (
		ids  []string
		errs []error
	)
	for id, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, errs
}

func TestPublisher_PublishesInOrder(t *testing.T) {
	dialer := newFakeDialer()
	publisher := newTestClient(dialer).MakePublisher("crc-cargo", "-publisher")

	ids, errs := collect(publisher(context.Background(), Messages(numbered(3)...)))

	require.Empty(t, errs)
	assert.Equal(t, []string{"id-1", "id-2", "id-3"}, ids)

	conn := dialer.conn(0)
	assert.Equal(t, []string{"data-1", "data-2", "data-3"}, conn.publishedData())
	assert.Equal(t, []string{"crc-cargo", "crc-cargo", "crc-cargo"}, conn.channels)
	assert.Equal(t, 1, conn.closes())
	assert.Equal(t, []string{"gw_publisher"}, dialer.clientIDs())
}

func TestPublisher_DoesNotConnectUntilIterated(t *testing.T) {
	dialer := newFakeDialer()
	publisher := newTestClient(dialer).MakePublisher("crc-cargo", "")

	seq := publisher(context.Background(), Messages(numbered(1)...))
	assert.Equal(t, 0, dialer.dialCount())

	_, errs := collect(seq)
	require.Empty(t, errs)
	assert.Equal(t, 1, dialer.dialCount())
}

func TestPublisher_ConnectsBeforeFirstMessage(t *testing.T) {
	dialer := newFakeDialer()
	publisher := newTestClient(dialer).MakePublisher("crc-cargo", "")

	input := func(yield func(PublisherMessage) bool) {
		select {
		case <-dialer.dialed:
		case <-time.After(time.Second):
			t.Error("connection was not started before the first message was pulled")
		}
		yield(PublisherMessage{ID: "only", Data: []byte("x")})
	}

	ids, errs := collect(publisher(context.Background(), input))
	require.Empty(t, errs)
	assert.Equal(t, []string{"only"}, ids)
}

func TestPublisher_EmptyInput(t *testing.T) {
	dialer := newFakeDialer()
	publisher := newTestClient(dialer).MakePublisher("crc-cargo", "")

	ids, errs := collect(publisher(context.Background(), Messages()))

	assert.Empty(t, ids)
	assert.Empty(t, errs)
	require.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, 1, dialer.conn(0).closes())
}

func TestPublisher_StopsOnFailure(t *testing.T) {
	for k := 1; k <= 4; k++ {
		t.Run(fmt.Sprintf("failure at %d", k), func(t *testing.T) {
			dialer := newFakeDialer()
			dialer.setup = func(c *fakeConn) { c.failOn = k }
			publisher := newTestClient(dialer).MakePublisher("crc-cargo", "")

			pulled := 0
			ids, errs := collect(publisher(context.Background(), counting(numbered(5), &pulled)))

			require.Len(t, errs, 1)
			assert.Equal(t, errPublish, errs[0])
			assert.Len(t, ids, k-1)
			assert.Equal(t, k, pulled)
			assert.Len(t, dialer.conn(0).publishedData(), k)
			assert.Equal(t, 1, dialer.conn(0).closes())
		})
	}
}

func TestPublisher_CallerBreak(t *testing.T) {
	dialer := newFakeDialer()
	publisher := newTestClient(dialer).MakePublisher("crc-cargo", "")

	pulled := 0
	for id, err := range publisher(context.Background(), counting(numbered(5), &pulled)) {
		require.NoError(t, err)
		assert.Equal(t, "id-1", id)
		break
	}

	assert.Equal(t, 1, pulled)
	assert.Equal(t, 1, dialer.conn(0).closes())
}

func TestPublisher_ConnectFailure(t *testing.T) {
	dialer := newFakeDialer()
	dialer.err = errors.New("connection refused")
	publisher := newTestClient(dialer).MakePublisher("crc-cargo", "")

	pulled := 0
	ids, errs := collect(publisher(context.Background(), counting(numbered(3), &pulled)))

	assert.Empty(t, ids)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], dialer.err)
	assert.Equal(t, 1, pulled)
}

func TestPublishMessage(t *testing.T) {
	dialer := newFakeDialer()
	client := newTestClient(dialer)

	require.NoError(t, client.PublishMessage(context.Background(), []byte("payload"), "crc-parcels", "-parcels"))

	conn := dialer.conn(0)
	assert.Equal(t, []string{"payload"}, conn.publishedData())
	assert.Equal(t, 1, conn.closes())
}

func TestPublishMessage_Error(t *testing.T) {
	dialer := newFakeDialer()
	dialer.setup = func(c *fakeConn) { c.failOn = 1 }

	err := newTestClient(dialer).PublishMessage(context.Background(), []byte("payload"), "crc-parcels", "")
	assert.Equal(t, errPublish, err)
}

func TestPublisher_ConcurrentIterationsShareConnection(t *testing.T) {
	dialer := newFakeDialer()
	publisher := newTestClient(dialer).MakePublisher("crc-cargo", "")

	input := make(chan PublisherMessage)
	fromChannel := func(yield func(PublisherMessage) bool) {
		for message := range input {
			if !yield(message) {
				return
			}
		}
	}

	confirmed := make(chan string)
	go func() {
		defer close(confirmed)
		for id, err := range publisher(context.Background(), fromChannel) {
			if err == nil {
				confirmed <- id
			}
		}
	}()

	input <- PublisherMessage{ID: "first", Data: []byte("first")}
	require.Equal(t, "first", <-confirmed)

	ids, errs := collect(publisher(context.Background(), Messages(numbered(1)...)))
	require.Empty(t, errs)
	assert.Equal(t, []string{"id-1"}, ids)
	assert.Equal(t, 0, dialer.conn(0).closes())

	input <- PublisherMessage{ID: "late", Data: []byte("late")}
	assert.Equal(t, "late", <-confirmed)
	close(input)
	<-confirmed

	assert.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, 1, dialer.conn(0).closes())
}
