package api

import (
	"net/http"
)

func (s *Server) handleAPIWindows(w http.ResponseWriter, r *http.Request) {
	ev, err := s.evaluate(r, "api")
	if err != nil {
		writeError(w, err)
		return
	}
	summary := s.narrator.Describe(r.Context(), ev)
	writeJSON(w, http.StatusOK, buildWindowsResponse(ev, summary, r.URL.Query().Encode()))
}

type HealthStatus struct {
	Status           string   `json:"status"`
	Database         string   `json:"database"`
	MigrationVersion int      `json:"migration_version,omitempty"`
	RecentErrors     []string `json:"recent_ingest_errors,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok", Database: "disabled"}
	if s.store == nil {
		writeJSON(w, http.StatusOK, health)
		return
	}

	if err := s.store.Ping(); err != nil {
		health.Status = "error"
		health.Database = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	health.Database = "ok"

	version, err := s.store.MigrationVersion()
	if err != nil {
		health.Status = "error"
		health.Database = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	health.MigrationVersion = version

	runs, err := s.store.GetRecentIngestErrors(5)
	if err == nil {
		for _, run := range runs {
			msg := run.Source + "/" + run.Endpoint
			if run.ErrorMessage.Valid {
				msg += ": " + run.ErrorMessage.String
			}
			health.RecentErrors = append(health.RecentErrors, msg)
		}
	}
	writeJSON(w, http.StatusOK, health)
}
