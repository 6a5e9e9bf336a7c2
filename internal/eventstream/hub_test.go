package eventstream

import (
	"testing"
	"time"
)

// TestBroadcastDeliversToRegisteredClient exercises the full Run loop
// (register -> broadcast -> client.send) without a real websocket
// connection, since client.sendEvent never touches conn until delivery.
func TestBroadcastDeliversToRegisteredClient(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := &client{hub: h, send: make(chan []byte, 1)}
	h.register <- c

	h.Broadcast(Envelope{Type: EventLicenseBound, Payload: map[string]string{"license_id": "lic-1"}})

	select {
	case msg := <-c.send:
		if len(msg) == 0 {
			t.Fatal("expected a non-empty encoded envelope")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast event")
	}
}

func TestBroadcastWithNoClientsDoesNotBlock(t *testing.T) {
	h := NewHub()
	go h.Run()

	for i := 0; i < 300; i++ {
		h.Broadcast(Envelope{Type: EventLicenseExpired})
	}
}
