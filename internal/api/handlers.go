package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/harunnryd/autosend/internal/autosend"
	"github.com/harunnryd/autosend/internal/errors"
	"github.com/harunnryd/autosend/internal/jobs"
	"github.com/harunnryd/autosend/internal/logger"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var sc autosend.SendContext
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&sc); err != nil {
		s.respondError(w, r, errors.InvalidInput("invalid send context: "+err.Error()))
		return
	}
	if sc.DraftID == "" || sc.LeadID == "" || sc.WorkspaceID == "" {
		s.respondError(w, r, errors.InvalidInput("workspace_id, lead_id and draft_id are required"))
		return
	}
	if sc.Channel != "" && !sc.Channel.Valid() {
		s.respondError(w, r, errors.InvalidInput("unknown channel "+string(sc.Channel)))
		return
	}

	ctx := logger.WithLeadID(r.Context(), sc.LeadID)
	respondJSON(w, http.StatusOK, autosend.NewReport(s.deps.Executor.Decide(ctx, sc)))
}

func (s *Server) handleDecideDraft(w http.ResponseWriter, r *http.Request) {
	if s.deps.Loader == nil {
		s.respondError(w, r, errors.NotFound("draft lookup is not configured"))
		return
	}

	draftID := chi.URLParam(r, "draftID")
	sc, err := s.deps.Loader.LoadSendContext(r.Context(), draftID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	sc.ValidateImmediateSend = sc.ValidateImmediateSend || s.deps.ValidateImmediateSend
	if v := r.URL.Query().Get("include_preview"); v != "" {
		sc.IncludeDraftPreview, _ = strconv.ParseBool(v)
	}

	ctx := logger.WithLeadID(r.Context(), sc.LeadID)
	respondJSON(w, http.StatusOK, autosend.NewReport(s.deps.Executor.Decide(ctx, *sc)))
}

func (s *Server) handleExecuteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	report := autosend.NewReport(s.deps.Executor.ValidateAndExecute(r.Context(), jobID))

	status := http.StatusOK
	if report.Action == autosend.ActionSkip && report.Reason == autosend.ReasonJobNotFound {
		status = http.StatusNotFound
	}
	respondJSON(w, status, report)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := jobs.Filter{Status: jobs.Status(strings.TrimSpace(q.Get("status")))}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.respondError(w, r, errors.InvalidInput("limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	list, err := s.deps.Jobs.List(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if list == nil {
		list = []jobs.Job{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": list, "count": len(list)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}
	healthy := true
	if s.deps.Health != nil {
		for name, err := range s.deps.Health(r.Context()) {
			if err != nil {
				healthy = false
				components[name] = err.Error()
				continue
			}
			components[name] = "ok"
		}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	body := map[string]any{"status": status, "components": components}
	if s.deps.Uptime != nil {
		body["uptime_seconds"] = int64(s.deps.Uptime().Seconds())
	}
	respondJSON(w, code, body)
}
