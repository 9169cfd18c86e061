// Gateway service принимает cargo и посылки, доставляет посылки в Интернет.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Alexey-zaliznuak/relaygate/internal/crc"
	"github.com/Alexey-zaliznuak/relaygate/internal/gateway"
	"github.com/Alexey-zaliznuak/relaygate/internal/gateway/config"
	gatewayhttp "github.com/Alexey-zaliznuak/relaygate/internal/gateway/http"
	"github.com/Alexey-zaliznuak/relaygate/internal/parcelstore"
	"github.com/Alexey-zaliznuak/relaygate/internal/pohttp"
	"github.com/Alexey-zaliznuak/relaygate/internal/storage/badger"
	"github.com/Alexey-zaliznuak/relaygate/internal/storage/etcd"
	entities "github.com/Alexey-zaliznuak/relaygate/pkg/entities/gateway"
	"github.com/Alexey-zaliznuak/relaygate/pkg/logger"
	natsclient "github.com/Alexey-zaliznuak/relaygate/pkg/nats"

	_ "github.com/Alexey-zaliznuak/relaygate/docs/swagger" // Swagger docs
)

func main() {
	// Загрузка конфигурации
	cfg := config.NewGatewayConfigBuilder().FromEnv().Build()

	if err := logger.InitializeWithFile(cfg.LogLevel, logger.FileConfig{Filename: cfg.LogFile}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	err := run(cfg)
	logger.Log.Sync()
	if err != nil {
		log.Fatalf("Gateway failed: %v", err)
	}
}

func run(cfg *entities.GatewayConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Log.Info("Starting gateway",
		zap.String("httpAddr", cfg.HTTPAddr),
		zap.Strings("workers", cfg.Workers),
		zap.String("parcelStoreDir", cfg.ParcelStoreDir),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Хранилище посылок
	objects, err := badger.New(badger.Config{Dir: cfg.ParcelStoreDir})
	if err != nil {
		return err
	}
	defer objects.Close()

	parcels := parcelstore.New(objects, logger.Log)

	ingress, err := natsclient.InitFromEnv(cfg.WorkerName+"-gateway", natsclient.WithLogger(logger.Log))
	if err != nil {
		return err
	}
	defer ingress.Disconnect()

	workers, closeWorkers, err := buildWorkers(cfg, parcels)
	if err != nil {
		return err
	}
	defer closeWorkers()

	gw := gateway.NewBaseGateway(cfg, ingress, parcels,
		gateway.WithWorkers(workers...),
		gateway.WithLogger(logger.Log),
	)

	workerErrs := gw.Start(ctx)

	// Создание HTTP сервера
	server := gatewayhttp.NewServer(gw, gatewayhttp.Config{
		Addr:         cfg.HTTPAddr,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IngressRate:  cfg.IngressRate,
		IngressBurst: cfg.IngressBurst,
	})

	serverErrs := make(chan error, 1)
	go func() {
		logger.Log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrs <- err
		}
	}()

	// Ожидание сигнала остановки или падения воркера
	var failure error
	select {
	case <-ctx.Done():
		logger.Log.Info("Shutting down")
	case err := <-serverErrs:
		failure = fmt.Errorf("http server: %w", err)
	case err, ok := <-workerErrs:
		if ok {
			failure = fmt.Errorf("worker: %w", err)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warn("HTTP server shutdown error", zap.Error(err))
	}

	for err := range workerErrs {
		logger.Log.Warn("Worker stopped with error", zap.Error(err))
	}

	logger.Log.Info("Gateway stopped")
	return failure
}

// buildWorkers создаёт включённые в конфигурации воркеры. У каждого свой
// клиент брокера: воркер отключает его при выходе.
func buildWorkers(cfg *entities.GatewayConfig, parcels *parcelstore.Store) ([]gateway.Worker, func(), error) {
	var (
		workers []gateway.Worker
		closers []func() error
	)
	closeAll := func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}
	fail := func(err error) ([]gateway.Worker, func(), error) {
		closeAll()
		return nil, nil, err
	}

	if cfg.RunsWorker(entities.WorkerCRC) {
		store, err := etcd.New(etcd.Config{
			Endpoints:   cfg.EtcdEndpoints,
			DialTimeout: cfg.EtcdDialTimeout,
			OpTimeout:   cfg.EtcdOpTimeout,
		})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, store.Close)

		name := cfg.WorkerName + "-crc"
		streaming, err := natsclient.InitFromEnv(name, natsclient.WithLogger(logger.Log))
		if err != nil {
			return fail(err)
		}

		workers = append(workers, &crc.Worker{
			Name:        name,
			Streaming:   streaming,
			PrivateKeys: store,
			PublicKeys:  store,
			Parcels:     parcels,
			Records:     store,
			Logger:      logger.Log,
		})
	}

	if cfg.RunsWorker(entities.WorkerPoHTTP) {
		name := cfg.WorkerName + "-pohttp"
		streaming, err := natsclient.InitFromEnv(name, natsclient.WithLogger(logger.Log))
		if err != nil {
			return fail(err)
		}

		workers = append(workers, &pohttp.Worker{
			Name:      name,
			Streaming: streaming,
			Parcels:   parcels,
			Client: pohttp.NewClient(pohttp.ClientConfig{
				GatewayAddress: cfg.PoHTTPAddress,
				Logger:         logger.Log,
			}),
			Logger: logger.Log,
		})
	}

	return workers, closeAll, nil
}
