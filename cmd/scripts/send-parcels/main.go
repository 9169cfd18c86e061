package main

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Alexey-zaliznuak/relaygate/pkg/relaynet"
)

func main() {
	url := flag.String("url", "http://localhost:8080/api/v1/pohttp", "PoHTTP endpoint of the gateway")
	recipient := flag.String("recipient", "0recipient", "recipient private address")
	cnt := flag.Int("n", 10, "number of parcels")
	flag.Parse()

	peerKey, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatal(err)
	}
	senderKey, senderSigningKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatal(err)
	}

	now := time.Now()
	peer := relaynet.NewCertificate("peer", peerKey, now.Add(-time.Minute), 24*time.Hour)
	sender := relaynet.NewCertificate("sender", senderKey, now.Add(-time.Minute), 24*time.Hour)

	client := http.Client{Timeout: 10 * time.Second}

	var (
		mu       sync.Mutex
		statuses = make(map[int]int)
		wg       sync.WaitGroup
	)
	for range *cnt {
		wg.Add(1)
		go func() {
			defer wg.Done()

			parcel := &relaynet.Parcel{Message: relaynet.Message{
				ID:                       rand.Text(),
				RecipientAddress:         *recipient,
				CreationDate:             now.UTC().Truncate(time.Second),
				TTL:                      time.Hour,
				Payload:                  []byte("ping"),
				SenderCertificate:        sender,
				SenderCaCertificateChain: []relaynet.Certificate{peer},
			}}
			raw, err := parcel.Serialize(senderSigningKey)
			if err != nil {
				log.Println(err)
				return
			}

			status := http.StatusInternalServerError
			resp, err := client.Post(*url, "application/vnd.relaynet.parcel", bytes.NewReader(raw))
			if err != nil {
				log.Println(err)
			} else {
				status = resp.StatusCode
				resp.Body.Close()
			}

			mu.Lock()
			statuses[status]++
			mu.Unlock()
		}()
	}

	wg.Wait()
	for status, n := range statuses {
		log.Printf("Status %d: %d\n", status, n)
	}

	log.Printf("Peer gateway address: %s", peer.CalculateSubjectPrivateAddress())
}
