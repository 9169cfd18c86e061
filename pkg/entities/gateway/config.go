package gateway

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Воркеры, которые процесс шлюза может запускать рядом с HTTP сервером.
const (
	WorkerCRC    = "crc"
	WorkerPoHTTP = "pohttp"

	// WorkerNone запускает только HTTP сервер.
	WorkerNone = "none"
)

var ErrUnknownWorker = errors.New("unknown worker")

type GatewayConfig struct {
	// HTTP
	HTTPAddr         string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration

	// Ограничение входящих запросов на один IP
	IngressRate  float64
	IngressBurst int

	// etcd
	EtcdEndpoints   []string
	EtcdDialTimeout time.Duration
	EtcdOpTimeout   time.Duration

	// Каталог BadgerDB с посылками
	ParcelStoreDir string

	// Воркеры
	Workers    []string
	WorkerName string

	// Собственный публичный адрес для PoHTTP
	PoHTTPAddress string

	// Логирование
	LogLevel string
	LogFile  string
}

// RunsWorker сообщает, включён ли воркер name.
func (c *GatewayConfig) RunsWorker(name string) bool {
	return slices.Contains(c.Workers, name)
}

// Validate проверяет список воркеров. WorkerNone допустим только один.
func (c *GatewayConfig) Validate() error {
	for _, name := range c.Workers {
		switch name {
		case WorkerCRC, WorkerPoHTTP:
		case WorkerNone:
			if len(c.Workers) > 1 {
				return fmt.Errorf("%w: %q cannot be combined with other workers", ErrUnknownWorker, WorkerNone)
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownWorker, name)
		}
	}
	return nil
}
