package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/collabtown/town-api/town"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebsocketHandler serves the same event stream as /events over a
// websocket, and accepts inbound cursor updates on the read side.
type WebsocketHandler struct {
	town *town.Town
}

func (h *WebsocketHandler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	ws, err := upgrader.Upgrade(rw, req, nil)
	if err != nil {
		log.Println("Failed to upgrade connection", err)
		return
	}
	defer ws.Close()

	username := req.URL.Query().Get("username")

	sub := h.town.Broker().Subscribe()
	defer func() {
		sub.Close()
		if username != "" && h.town.Presence().Remove(username) {
			h.town.Broker().PublishUsers()
		}
		log.Printf("Closing websocket client %s", sub.ID)
	}()

	if username != "" {
		h.town.Presence().Touch(username)
		h.town.Broker().PublishUsers()
	}

	readerDone := make(chan struct{})
	go h.readLoop(ws, username, readerDone)

	keepalive := time.NewTimer(keepAliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				log.Printf("event marshal failed, skipping frame: %v", err)
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Println("Websocket write error", err)
				return
			}
			resetKeepalive(keepalive)

		case <-keepalive.C:
			if username != "" {
				before := h.town.Presence().List()
				h.town.Presence().Touch(username)
				if !rostersEqual(before, h.town.Presence().List()) {
					h.town.Broker().PublishUsers()
				}
			}
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Println("Websocket ping error", err)
				return
			}
			keepalive.Reset(keepAliveInterval)

		case <-readerDone:
			return

		case <-req.Context().Done():
			return
		}
	}
}

// readLoop consumes inbound frames. Clients only send cursor updates; each
// one doubles as a presence heartbeat.
func (h *WebsocketHandler) readLoop(ws *websocket.Conn, username string, done chan<- struct{}) {
	defer close(done)

	for {
		_, p, err := ws.ReadMessage()
		if err != nil {
			log.Println("Websocket read error", err)
			return
		}

		var event town.Event
		if err := json.Unmarshal(p, &event); err != nil {
			log.Println("Websocket message unreadable", err)
			continue
		}
		if event.Type != town.EventCursor {
			continue
		}
		if username != "" {
			event.Username = username
			h.town.Presence().Touch(username)
		}

		h.town.Broker().Publish(event)
	}
}
