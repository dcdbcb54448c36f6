package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quill/internal/event"
)

type eventPayload struct {
	Type      string    `json:"type"`
	Revision  int64     `json:"revision,omitempty"`
	Succeeded *bool     `json:"succeeded,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Source    string    `json:"source,omitempty"`
	Inserted  []string  `json:"inserted,omitempty"`
	Removed   []string  `json:"removed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !validateToken(r, s.AuthToken) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.Bus == nil {
		http.Error(w, "events unavailable", http.StatusInternalServerError)
		return
	}
	output, cancel := s.Bus.Subscribe()
	defer cancel()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, s.AllowedOrigins)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case item, ok := <-output:
				if !ok {
					return
				}
				payload, ok := buildEventPayload(item)
				if !ok {
					continue
				}
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
				if err := conn.WriteJSON(payload); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func buildEventPayload(item event.Event) (eventPayload, bool) {
	switch typed := item.(type) {
	case event.CompileEvent:
		succeeded := typed.Succeeded
		return eventPayload{
			Type:      typed.Type(),
			Revision:  typed.Revision,
			Succeeded: &succeeded,
			Detail:    typed.Diagnostic,
			Timestamp: typed.Timestamp(),
		}, true
	case event.ChangeEvent:
		return eventPayload{
			Type:      typed.Type(),
			Source:    typed.Source,
			Inserted:  typed.Inserted,
			Removed:   typed.Removed,
			Timestamp: typed.Timestamp(),
		}, true
	default:
		return eventPayload{}, false
	}
}
