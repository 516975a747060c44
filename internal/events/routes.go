package events

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Subscribers authenticate through the JWT middleware before the
	// upgrade, so origin checking adds nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RegisterRoutes wires the event stream endpoint to the router.
func RegisterRoutes(router chi.Router, broadcaster *Broadcaster) {
	router.Get("/v1/castbreeze/events", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("events: websocket upgrade failed: %v", err)
			return
		}
		broadcaster.Subscribe(conn)
	})
}
