package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/seantiz/bambubridge/internal/model"
)

// eventLine is a single event in the history response and SSE stream.
type eventLine struct {
	Seq       int    `json:"seq"`
	Line      string `json:"line"`
	CreatedAt string `json:"created_at"`
}

// eventHistoryResponse is the JSON response for GET /v1/jobs/{id}/events.
type eventHistoryResponse struct {
	JobID  string      `json:"job_id"`
	Events []eventLine `json:"events"`
}

func newEventLine(ev model.JobEvent) eventLine {
	return eventLine{
		Seq:       ev.Seq,
		Line:      ev.Line,
		CreatedAt: ev.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleGetEventHistory(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}

	events, err := s.store.GetEvents(r.Context(), job.ID)
	if err != nil {
		s.logger.Error("get job events", "job_id", job.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get events")
		return
	}

	lines := make([]eventLine, len(events))
	for i, ev := range events {
		lines[i] = newEventLine(ev)
	}

	s.writeJSON(w, http.StatusOK, eventHistoryResponse{
		JobID:  job.ID,
		Events: lines,
	})
}

// handleStreamEvents replays a job's stored events over SSE and then follows
// live events until the job closes or the client goes away.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}

	// Subscribe before reading history so nothing published in between is
	// lost. Live events already covered by the history are skipped by seq.
	var (
		ch    <-chan model.JobEvent
		unsub = func() {}
	)
	if job.FinishedAt == nil {
		ch, unsub = s.printer.Broker().Subscribe(job.ID)
	}
	defer unsub()

	history, err := s.store.GetEvents(r.Context(), job.ID)
	if err != nil {
		s.logger.Error("get job events for stream", "job_id", job.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get events")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("set write deadline for SSE", "error", err)
	}

	eventStreamsOpen.Inc()
	defer eventStreamsOpen.Dec()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	last := -1
	for _, ev := range history {
		if err := writeSSEData(w, newEventLine(ev)); err != nil {
			return
		}
		last = ev.Seq
	}
	flush()

	if ch == nil {
		_ = writeSSEEvent(w, "done", "stream complete")
		flush()
		return
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", "stream complete")
				flush()
				return
			}
			if ev.Seq <= last {
				continue
			}
			if err := writeSSEData(w, newEventLine(ev)); err != nil {
				return // Client gone.
			}
			last = ev.Seq
			flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEData writes ev as a JSON SSE data event.
func writeSSEData(w http.ResponseWriter, ev eventLine) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
