package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/collabtown/town-api/town"
)

// keepAliveInterval is how long a subscriber may sit idle before a no-op
// frame goes out and its presence heartbeat is refreshed.
const keepAliveInterval = 10 * time.Second

// EventsHandler streams the broadcast channel to one client as
// server-sent events.
type EventsHandler struct {
	town *town.Town
}

func (h *EventsHandler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	flusher, ok := rw.(http.Flusher)

	if !ok {
		http.Error(rw, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")

	username := req.URL.Query().Get("username")

	sub := h.town.Broker().Subscribe()
	defer func() {
		sub.Close()
		if username != "" && h.town.Presence().Remove(username) {
			h.town.Broker().PublishUsers()
		}
		log.Printf("Closing events client %s", sub.ID)
	}()

	if username != "" {
		h.town.Presence().Touch(username)
		h.town.Broker().PublishUsers()
	}

	notify := req.Context().Done()
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
			fmt.Fprintf(rw, "data: %s\n\n", payload)
			flusher.Flush()
			resetKeepalive(keepalive)

		case <-keepalive.C:
			h.refreshPresence(username)
			fmt.Fprint(rw, ": keepalive\n\n")
			flusher.Flush()
			keepalive.Reset(keepAliveInterval)

		case <-notify:
			return
		}
	}
}

// refreshPresence re-touches the owning user and re-broadcasts the roster
// when the sweep changed it.
func (h *EventsHandler) refreshPresence(username string) {
	if username == "" {
		return
	}
	before := h.town.Presence().List()
	h.town.Presence().Touch(username)
	after := h.town.Presence().List()
	if !rostersEqual(before, after) {
		h.town.Broker().PublishUsers()
	}
}

func rostersEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func resetKeepalive(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(keepAliveInterval)
}
