// generate-key создаёт X25519-ключ шлюза и сохраняет его в etcd.
package main

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"log"
	"os"
	"time"

	"github.com/Alexey-zaliznuak/relaygate/internal/gateway/config"
	"github.com/Alexey-zaliznuak/relaygate/internal/storage/etcd"
)

func main() {
	cfg := config.NewGatewayConfigBuilder().FromEnv().Build()

	store, err := etcd.New(etcd.Config{
		Endpoints:   cfg.EtcdEndpoints,
		DialTimeout: cfg.EtcdDialTimeout,
		OpTimeout:   cfg.EtcdOpTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to connect to etcd: %v", err)
	}
	defer store.Close()

	key, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		log.Fatalf("Failed to generate key: %v", err)
	}

	keyID := make([]byte, 8)
	if _, err := rand.Read(keyID); err != nil {
		log.Fatalf("Failed to generate key id: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.SaveKey(ctx, keyID, key); err != nil {
		log.Fatalf("Failed to save key: %v", err)
	}

	der, err := x509.MarshalPKIXPublicKey(key.PublicKey())
	if err != nil {
		log.Fatalf("Failed to encode public key: %v", err)
	}

	log.Printf("Key id: %s", hex.EncodeToString(keyID))
	pem.Encode(os.Stdout, &pem.Block{Type: "PUBLIC KEY", Bytes: der})
}
