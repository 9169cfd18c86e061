package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Alexey-zaliznuak/relaygate/internal/parcelstore"
	"github.com/Alexey-zaliznuak/relaygate/pkg/entities"
	"github.com/Alexey-zaliznuak/relaygate/pkg/entities/gateway"
	"github.com/Alexey-zaliznuak/relaygate/pkg/logger"
	natsclient "github.com/Alexey-zaliznuak/relaygate/pkg/nats"
	"github.com/Alexey-zaliznuak/relaygate/pkg/relaynet"
)

const cargoClientIDSuffix = "-cargo"

// Streaming клиент брокера, через который шлюз ставит работу в очереди.
type Streaming interface {
	MakePublisher(channel, clientIDSuffix string) natsclient.Publisher
	PublishMessage(ctx context.Context, data []byte, channel, clientIDSuffix string) error
}

// ParcelStore хранилище посылок для пиров.
type ParcelStore interface {
	StoreGatewayBoundParcel(
		ctx context.Context,
		p *relaynet.Parcel,
		raw []byte,
		peerGatewayAddress string,
		publisher parcelstore.MessagePublisher,
	) (string, error)
}

// Worker фоновый обработчик очереди.
type Worker interface {
	Run(ctx context.Context) error
}

type BaseGateway struct {
	config    *gateway.GatewayConfig
	streaming Streaming
	parcels   ParcelStore
	workers   []Worker
	log       *zap.Logger

	cargoPublisher natsclient.Publisher
}

// Option настраивает BaseGateway.
type Option func(*BaseGateway)

// WithWorkers задаёт воркеры, которые запускает Start.
func WithWorkers(workers ...Worker) Option {
	return func(g *BaseGateway) {
		g.workers = append(g.workers, workers...)
	}
}

// WithLogger задаёт логгер шлюза.
func WithLogger(log *zap.Logger) Option {
	return func(g *BaseGateway) {
		g.log = log
	}
}

// NewBaseGateway создаёт шлюз.
func NewBaseGateway(cfg *gateway.GatewayConfig, streaming Streaming, parcels ParcelStore, opts ...Option) *BaseGateway {
	g := &BaseGateway{
		config:         cfg,
		streaming:      streaming,
		parcels:        parcels,
		log:            logger.Log,
		cargoPublisher: streaming.MakePublisher(entities.ChannelCRCCargo, cargoClientIDSuffix),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *BaseGateway) RelayCargo(ctx context.Context, cargo []byte) (string, error) {
	id := uuid.NewString()

	for _, err := range g.cargoPublisher(ctx, natsclient.Messages(natsclient.PublisherMessage{ID: id, Data: cargo})) {
		if err != nil {
			return "", fmt.Errorf("failed to queue cargo: %w", err)
		}
	}

	g.log.Debug("Cargo was queued", zap.String("cargoMessageId", id))
	return id, nil
}

func (g *BaseGateway) ReceiveParcel(ctx context.Context, raw []byte) error {
	p, err := relaynet.DeserializeParcel(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrInvalidParcel, err)
	}

	peerGatewayAddress, ok := p.PeerGatewayAddress()
	if !ok {
		return fmt.Errorf("%w: sender CA chain is empty", gateway.ErrUnauthorizedParcel)
	}

	key, err := g.parcels.StoreGatewayBoundParcel(ctx, p, raw, peerGatewayAddress, g.streaming)
	if errors.Is(err, relaynet.ErrInvalidMessage) {
		return fmt.Errorf("%w: %v", gateway.ErrUnauthorizedParcel, err)
	}
	if err != nil {
		return fmt.Errorf("failed to store parcel %s: %w", p.ID, err)
	}

	g.log.Debug("Parcel was received",
		zap.String("parcelId", p.ID),
		zap.String("parcelObjectKey", key),
		zap.String("peerGatewayAddress", peerGatewayAddress),
	)
	return nil
}

// Start запускает воркеры. Канал получает ошибку каждого упавшего
// воркера и закрывается, когда все воркеры завершились. Без воркеров
// канал закрывается после отмены ctx.
func (g *BaseGateway) Start(ctx context.Context) <-chan error {
	errs := make(chan error, len(g.workers))

	var wg sync.WaitGroup
	for _, worker := range g.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker.Run(ctx); err != nil {
				errs <- err
			}
		}()
	}

	go func() {
		wg.Wait()
		if len(g.workers) == 0 {
			<-ctx.Done()
		}
		close(errs)
	}()

	return errs
}

func (g *BaseGateway) GetConfig() *gateway.GatewayConfig {
	return g.config
}
