package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"project-api/pkg/events"
)

const (
	keepAlive   = 15 * time.Second
	replayLimit = 500
)

func (s *Server) handleEventList(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		writeJSON(w, 200, []events.Event{})
		return
	}
	ctx := r.Context()
	actorID := actorFrom(ctx).ID
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > replayLimit {
		limit = 50
	}

	var list []events.Event
	var err error
	if after := r.URL.Query().Get("after"); after != "" {
		if uuid.Validate(after) != nil {
			writeError(w, 400, "after must be an event id")
			return
		}
		list, err = s.Events.Since(ctx, actorID, after, limit)
	} else {
		list, err = s.Events.Recent(ctx, actorID, limit)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, list)
}

func (s *Server) handleEventTypes(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		writeJSON(w, 200, []string{})
		return
	}
	types, err := s.Events.Types(r.Context(), actorFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, types)
}

// handleEventStream streams the caller's mutations as server-sent events.
// A client reconnecting with Last-Event-ID (or ?after=) first receives what
// it missed from the event log.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, 500, "streaming not supported")
		return
	}
	ctx := r.Context()
	actorID := actorFrom(ctx).ID

	// Subscribe before replaying or sending headers so nothing published in
	// between is lost.
	ch := s.Bus.Subscribe()
	defer s.Bus.Unsubscribe(ch)

	lastID := r.Header.Get("Last-Event-ID")
	if lastID == "" {
		lastID = r.URL.Query().Get("after")
	}
	if lastID != "" && uuid.Validate(lastID) != nil {
		writeError(w, 400, "Last-Event-ID must be an event id")
		return
	}
	var backlog []events.Event
	if lastID != "" && s.Events != nil {
		var err error
		backlog, err = s.Events.Since(ctx, actorID, lastID, replayLimit)
		if err != nil {
			s.fail(w, r, err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(e events.Event) {
		data, err := json.Marshal(e)
		if err != nil {
			s.Logger.Warn("encode event", "error", err)
			return
		}
		fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, data)
		lastID = e.ID
	}
	for _, e := range backlog {
		send(e)
	}
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case e := <-ch:
			// IDs are time-ordered; anything at or before lastID was replayed.
			if e.ActorID != actorID || (lastID != "" && e.ID <= lastID) {
				continue
			}
			send(e)
			flusher.Flush()
		}
	}
}
