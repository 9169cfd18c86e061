// Package natsclient предоставляет клиент потокового брокера поверх
// NATS JetStream: ленивое переиспользуемое соединение, конвейер публикации
// и durable-потребителя очереди с ручным подтверждением.
package natsclient

import (
	"errors"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/Alexey-zaliznuak/relaygate/pkg/config"
	"github.com/Alexey-zaliznuak/relaygate/pkg/logger"
)

// Переменные окружения клиента.
const (
	EnvServerURL = "NATS_SERVER_URL"
	EnvClusterID = "NATS_CLUSTER_ID"
)

// ErrMissingEnvVar возвращается InitFromEnv, если не задана обязательная переменная.
var ErrMissingEnvVar = config.ErrMissingEnv

// Client клиент потокового брокера для одного базового client id.
type Client struct {
	ServerURL string
	ClusterID string
	ClientID  string

	dialer Dialer
	log    *zap.Logger

	mu       sync.Mutex
	managers map[string]*connectionManager
}

// Option настраивает Client.
type Option func(*Client)

// WithDialer подменяет транспорт брокера.
func WithDialer(dialer Dialer) Option {
	return func(c *Client) {
		c.dialer = dialer
	}
}

// WithLogger задаёт логгер клиента.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New создаёт клиент. Подключение откладывается до первого использования.
func New(serverURL, clusterID, clientID string, opts ...Option) *Client {
	c := &Client{
		ServerURL: serverURL,
		ClusterID: clusterID,
		ClientID:  clientID,
		managers:  make(map[string]*connectionManager),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.log == nil {
		c.log = logger.Log
	}
	if c.dialer == nil {
		c.dialer = NewJetStreamDialer(c.log)
	}

	return c
}

// InitFromEnv создаёт клиент из NATS_SERVER_URL и NATS_CLUSTER_ID.
func InitFromEnv(clientID string, opts ...Option) (*Client, error) {
	serverURL, err := config.LookupEnvRequired(EnvServerURL)
	if err != nil {
		return nil, err
	}

	clusterID, err := config.LookupEnvRequired(EnvClusterID)
	if err != nil {
		return nil, err
	}

	return New(serverURL, clusterID, NormalizeClientID(clientID), opts...), nil
}

// NormalizeClientID заменяет все не буквенно-цифровые символы на "_":
// брокер принимает client id только из безопасного набора символов.
func NormalizeClientID(id string) string {
	runes := []rune(id)
	for i, r := range runes {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			runes[i] = '_'
		}
	}
	return string(runes)
}

// connection возвращает менеджер соединения для ClientID+suffix.
func (c *Client) connection(clientIDSuffix string) *connectionManager {
	clientID := NormalizeClientID(c.ClientID + clientIDSuffix)

	c.mu.Lock()
	defer c.mu.Unlock()

	manager, ok := c.managers[clientID]
	if !ok {
		manager = newConnectionManager(c.dialer, DialConfig{
			ServerURL: c.ServerURL,
			ClusterID: c.ClusterID,
			ClientID:  clientID,
		})
		c.managers[clientID] = manager
	}
	return manager
}

// Disconnect закрывает все открытые клиентом соединения.
func (c *Client) Disconnect() {
	c.mu.Lock()
	managers := make([]*connectionManager, 0, len(c.managers))
	for _, manager := range c.managers {
		managers = append(managers, manager)
	}
	c.mu.Unlock()

	var errs []error
	for _, manager := range managers {
		if err := manager.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		c.log.Warn("Failed to close NATS connections", zap.Error(err))
	}
}
