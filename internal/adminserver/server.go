// Package adminserver implements the EdgeRouter admin protocol (§6) as
// a single HTTP endpoint accepting internal/wire.AdminRequest bodies
// and returning internal/wire.AdminResponse bodies, grounded on the
// admin surface described by the original source's
// Edge/forwardingtableclient.h. JSON over HTTP stands in for the
// original's protobuf/gRPC wire, per SPEC_FULL.md's §6 discussion.
package adminserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/edgelambda/dispatcher/dispatch"
	"github.com/edgelambda/dispatcher/internal/wire"
)

// Server handles admin HTTP requests against a single *dispatch.ForwardingTable.
type Server struct {
	table *dispatch.ForwardingTable
}

// New creates an admin Server bound to table.
func New(table *dispatch.ForwardingTable) *Server {
	return &Server{table: table}
}

// ServeHTTP implements http.Handler: decode one AdminRequest, dispatch
// on its Op, encode one AdminResponse.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req wire.AdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, status := s.handle(req)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logrus.WithError(err).Warn("adminserver: encoding response failed")
	}
}

func (s *Server) handle(req wire.AdminRequest) (wire.AdminResponse, int) {
	switch req.Op {
	case wire.OpNumTables:
		return wire.AdminResponse{RetCode: "OK", NumTables: s.table.NumTables()}, http.StatusOK

	case wire.OpDump:
		return wire.AdminResponse{RetCode: "OK", Dump: s.table.Dump()}, http.StatusOK

	case wire.OpFlush:
		s.table.Flush()
		return wire.AdminResponse{RetCode: "OK"}, http.StatusOK

	case wire.OpChange:
		if err := s.table.Change(req.Lambda, req.Destination, req.Weight, req.Final); err != nil {
			return errResponse(err)
		}
		return wire.AdminResponse{RetCode: "OK"}, http.StatusOK

	case wire.OpRemove:
		if err := s.table.Remove(req.Lambda, req.Destination); err != nil {
			return errResponse(err)
		}
		return wire.AdminResponse{RetCode: "OK"}, http.StatusOK

	case wire.OpTable:
		if req.TableID != 0 {
			return errResponse(errors.New("unknown table id"))
		}
		return wire.AdminResponse{RetCode: "OK", Table: snapshotToWire(s.table.Snapshot())}, http.StatusOK

	default:
		return errResponse(errors.New("unknown admin operation"))
	}
}

// errResponse maps a dispatch error into an AdminResponse plus an HTTP
// status (§7): not-found-ish errors become 404/409-ish client errors,
// configuration errors become 400, anything else 500.
func errResponse(err error) (wire.AdminResponse, int) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dispatch.ErrDestinationNotFound), errors.Is(err, dispatch.ErrNoDestinations):
		status = http.StatusNotFound
	case errors.Is(err, dispatch.ErrDestinationAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, dispatch.ErrInvalidConfiguration), errors.Is(err, dispatch.ErrInvalidWeight):
		status = http.StatusBadRequest
	}
	return wire.AdminResponse{RetCode: err.Error()}, status
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(wire.AdminResponse{RetCode: err.Error()})
}

func snapshotToWire(snap dispatch.TableSnapshot) map[string]map[string]wire.DestinationEntry {
	out := make(map[string]map[string]wire.DestinationEntry, len(snap))
	for lambda, dests := range snap {
		entries := make(map[string]wire.DestinationEntry, len(dests))
		for id, el := range dests {
			entries[id] = wire.DestinationEntry{Weight: el.Weight, Final: el.Final}
		}
		out[lambda] = entries
	}
	return out
}
