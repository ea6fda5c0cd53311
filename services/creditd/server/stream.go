package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"trustlend/core/events"
	"trustlend/integrations/exports"
)

const wsWriteTimeout = 10 * time.Second

// streamEvents upgrades to a websocket and relays committed events. Clients
// resume by passing the last sequence they saw as ?since=.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.fail(w, r, badRequest("since must be an unsigned integer"))
			return
		}
		since = parsed
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.relayEvents(ctx, conn, since); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) relayEvents(ctx context.Context, conn *websocket.Conn, since uint64) error {
	updates, cancel, backlog := s.engine.Events().Subscribe(ctx, since)
	defer cancel()

	for _, env := range backlog {
		if err := writeEnvelope(ctx, conn, env); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEnvelope(ctx, conn, env); err != nil {
				return err
			}
		}
	}
}

func writeEnvelope(ctx context.Context, conn *websocket.Conn, env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (s *Server) exportLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := s.engine.Loans()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	switch format {
	case "", "csv":
		data, checksum, err := exports.LoansCSV(loans)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeExport(w, "text/csv", "loans.csv", checksum, data)
	case "jsonl":
		data, checksum, err := exports.LoansJSONL(loans)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeExport(w, "application/x-ndjson", "loans.jsonl", checksum, data)
	case "parquet":
		w.Header().Set("Content-Type", "application/vnd.apache.parquet")
		w.Header().Set("Content-Disposition", `attachment; filename="loans.parquet"`)
		if err := exports.WriteLoansParquet(w, loans); err != nil {
			s.logger.Error("parquet export failed", "error", err)
		}
	default:
		s.fail(w, r, badRequest(fmt.Sprintf("unsupported export format %q", format)))
	}
}

func writeExport(w http.ResponseWriter, contentType, filename, checksum string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("X-Checksum-SHA256", checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
