// Package pohttp доставляет посылки, принятые от пиров, их получателям
// в Интернете по протоколу PoHTTP.
package pohttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/Alexey-zaliznuak/relaygate/pkg/entities"
	"github.com/Alexey-zaliznuak/relaygate/pkg/entities/parcel"
	"github.com/Alexey-zaliznuak/relaygate/pkg/entities/storage"
	natsclient "github.com/Alexey-zaliznuak/relaygate/pkg/nats"
)

type Streaming interface {
	MakeQueueConsumer(
		ctx context.Context,
		channel, queue, durableName, clientIDSuffix string,
	) iter.Seq2[*natsclient.QueueMessage, error]
	Disconnect()
}

type ParcelStore interface {
	RetrieveInternetBoundParcel(ctx context.Context, key string) ([]byte, error)
	DeleteInternetBoundParcel(ctx context.Context, key string) error
}

type Deliverer interface {
	DeliverParcel(ctx context.Context, recipientAddress string, parcel []byte) error
}

// Worker обрабатывает очередь crc-parcels.
type Worker struct {
	Name      string
	Streaming Streaming
	Parcels   ParcelStore
	Client    Deliverer
	Logger    *zap.Logger
	Now       func() time.Time
}

// Run доставляет посылки, пока не отменён ctx.
//
// Посылка, которую не удалось доставить из-за временной ошибки, остаётся
// неподтверждённой и будет доставлена повторно после истечения ack wait.
func (w *Worker) Run(ctx context.Context) error {
	log := w.Logger.With(zap.String("worker", w.Name))
	defer w.Streaming.Disconnect()

	messages := w.Streaming.MakeQueueConsumer(ctx, entities.ChannelCRCParcels, entities.WorkerQueue, entities.WorkerDurable, "")
	for message, err := range messages {
		if err != nil {
			return fmt.Errorf("failed to consume parcels: %w", err)
		}

		done, err := w.process(ctx, message.Data, log)
		if err != nil {
			return err
		}
		if !done {
			continue
		}

		if err := message.Ack(); err != nil {
			return fmt.Errorf("failed to ack parcel: %w", err)
		}
	}

	return nil
}

// process возвращает true, если сообщение можно подтвердить.
func (w *Worker) process(ctx context.Context, data []byte, log *zap.Logger) (bool, error) {
	var queued parcel.QueuedInternetBoundMessage
	if err := json.Unmarshal(data, &queued); err != nil || queued.ParcelObjectKey == "" {
		log.Info("Queued parcel message is invalid", zap.Error(err))
		return true, nil
	}

	log = log.With(zap.String("parcelObjectKey", queued.ParcelObjectKey))

	if queued.Expired(w.now()) {
		if err := w.Parcels.DeleteInternetBoundParcel(ctx, queued.ParcelObjectKey); err != nil {
			return false, fmt.Errorf("failed to delete expired parcel: %w", err)
		}
		log.Debug("Expired parcel was discarded")
		return true, nil
	}

	serialized, err := w.Parcels.RetrieveInternetBoundParcel(ctx, queued.ParcelObjectKey)
	if errors.Is(err, storage.ErrNotFound) {
		log.Info("Parcel object is missing")
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to retrieve parcel: %w", err)
	}

	err = w.Client.DeliverParcel(ctx, queued.ParcelRecipientAddress, serialized)
	switch {
	case err == nil:
		log.Debug("Parcel was delivered")
	case errors.Is(err, ErrInvalidParcel), errors.Is(err, ErrInvalidRecipient):
		log.Info("Parcel was refused by the recipient", zap.Error(err))
	default:
		log.Warn("Failed to deliver parcel", zap.Error(err))
		return false, nil
	}

	if err := w.Parcels.DeleteInternetBoundParcel(ctx, queued.ParcelObjectKey); err != nil {
		return false, fmt.Errorf("failed to delete delivered parcel: %w", err)
	}
	return true, nil
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
