package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rmrfslashbin/device-gateway/internal/db"
)

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	LastPass string `json:"last_pass,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if last := s.discovery.Last(); last != nil {
		resp.LastPass = last.ID
	}

	if err := s.db.PingContext(r.Context()); err != nil {
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := db.GetStats(r.Context(), s.db)
	if err != nil {
		s.logger.Error("failed to read stats", "error", err)
		writeInternalError(w, "failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables": stats,
		"total":  stats.Total(),
	})
}

// handleListDevices returns the devices of the last pass with their
// controls. Before the first pass of this process it falls back to what is
// stored in the database.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if last := s.discovery.Last(); last != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"pass_id": last.ID,
			"devices": last.Devices,
			"count":   len(last.Devices),
		})
		return
	}

	stored, err := db.LoadDevices(r.Context(), s.db)
	if err != nil {
		s.logger.Error("failed to load devices", "error", err)
		writeInternalError(w, "failed to load devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": stored,
		"count":   len(stored),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "device id must be a positive integer")
		return
	}

	if last := s.discovery.Last(); last != nil {
		if d, ok := last.Device(id); ok {
			writeJSON(w, http.StatusOK, d)
			return
		}
	}

	stored, err := db.LoadDevice(r.Context(), s.db, id)
	if err != nil {
		s.logger.Error("failed to load device", "device_id", id, "error", err)
		writeInternalError(w, "failed to load device")
		return
	}
	if stored == nil {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	result, err := s.discovery.Discover(r.Context())
	if err != nil {
		s.logger.Error("discovery request failed", "error", err)
		writeInternalError(w, "discovery pass failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListHazards describes the hazards of the last pass, or of the stored
// devices before the first pass of this process.
func (s *Server) handleListHazards(w http.ResponseWriter, r *http.Request) {
	last := s.discovery.Last()
	if last == nil {
		ids, err := db.ListHazards(r.Context(), s.db)
		if err != nil {
			s.logger.Error("failed to load hazards", "error", err)
			writeInternalError(w, "failed to load hazards")
			return
		}
		described := s.catalog.Describe(ids)
		writeJSON(w, http.StatusOK, map[string]any{
			"hazards": described,
			"count":   len(described),
		})
		return
	}

	described := s.catalog.Describe(last.Hazards)
	writeJSON(w, http.StatusOK, map[string]any{
		"pass_id": last.ID,
		"hazards": described,
		"count":   len(described),
	})
}
