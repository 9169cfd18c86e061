package config

import (
	"time"

	"github.com/Alexey-zaliznuak/relaygate/pkg/config"
	"github.com/Alexey-zaliznuak/relaygate/pkg/entities/gateway"
)

// GatewayConfigBuilder для построения конфигурации.
type GatewayConfigBuilder struct {
	cfg *gateway.GatewayConfig
}

// NewGatewayConfigBuilder создаёт новый builder с дефолтными значениями.
func NewGatewayConfigBuilder() *GatewayConfigBuilder {
	return &GatewayConfigBuilder{
		cfg: &gateway.GatewayConfig{
			HTTPAddr:         ":8080",
			HTTPReadTimeout:  15 * time.Second,
			HTTPWriteTimeout: 15 * time.Second,

			IngressRate:  50,
			IngressBurst: 100,

			EtcdEndpoints:   []string{"localhost:2379"},
			EtcdDialTimeout: 5 * time.Second,
			EtcdOpTimeout:   5 * time.Second,

			ParcelStoreDir: "data/parcels",

			Workers:    []string{gateway.WorkerCRC, gateway.WorkerPoHTTP},
			WorkerName: "relaygate",

			LogLevel: "info",
		},
	}
}

// WithHTTPAddr устанавливает адрес HTTP сервера.
func (b *GatewayConfigBuilder) WithHTTPAddr(addr string) *GatewayConfigBuilder {
	b.cfg.HTTPAddr = addr
	return b
}

// WithWorkers задаёт воркеры, запускаемые процессом.
func (b *GatewayConfigBuilder) WithWorkers(workers ...string) *GatewayConfigBuilder {
	b.cfg.Workers = workers
	return b
}

// FromEnv загружает конфигурацию из переменных окружения.
func (b *GatewayConfigBuilder) FromEnv() *GatewayConfigBuilder {
	b.cfg.HTTPAddr = config.GetEnv("HTTP_ADDR", b.cfg.HTTPAddr)
	b.cfg.HTTPReadTimeout = config.GetEnvDuration("HTTP_READ_TIMEOUT", b.cfg.HTTPReadTimeout)
	b.cfg.HTTPWriteTimeout = config.GetEnvDuration("HTTP_WRITE_TIMEOUT", b.cfg.HTTPWriteTimeout)

	b.cfg.IngressRate = config.GetEnvFloat("INGRESS_RATE", b.cfg.IngressRate)
	b.cfg.IngressBurst = config.GetEnvInt("INGRESS_BURST", b.cfg.IngressBurst)

	b.cfg.EtcdEndpoints = config.GetEnvSlice("ETCD_ENDPOINTS", ",", b.cfg.EtcdEndpoints)
	b.cfg.EtcdDialTimeout = config.GetEnvDuration("ETCD_DIAL_TIMEOUT", b.cfg.EtcdDialTimeout)
	b.cfg.EtcdOpTimeout = config.GetEnvDuration("ETCD_OP_TIMEOUT", b.cfg.EtcdOpTimeout)

	b.cfg.ParcelStoreDir = config.GetEnv("PARCEL_STORE_DIR", b.cfg.ParcelStoreDir)

	b.cfg.Workers = config.GetEnvSlice("GATEWAY_WORKERS", ",", b.cfg.Workers)
	b.cfg.WorkerName = config.GetEnv("WORKER_NAME", b.cfg.WorkerName)

	b.cfg.PoHTTPAddress = config.GetEnv("GATEWAY_POHTTP_ADDRESS", b.cfg.PoHTTPAddress)

	b.cfg.LogLevel = config.GetEnv("LOG_LEVEL", b.cfg.LogLevel)
	b.cfg.LogFile = config.GetEnv("LOG_FILE", b.cfg.LogFile)

	return b
}

// Build возвращает готовую конфигурацию.
func (b *GatewayConfigBuilder) Build() *gateway.GatewayConfig {
	return b.cfg
}
