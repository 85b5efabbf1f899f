package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/kgr-crawler/internal/dispatcher"
	"github.com/JakeFAU/kgr-crawler/internal/keyword"
	"github.com/JakeFAU/kgr-crawler/internal/metrics"
	"github.com/JakeFAU/kgr-crawler/internal/partition"
	"github.com/JakeFAU/kgr-crawler/internal/tracker"
)

// submitRequest is the JSON intake body. Keywords may be a comma-separated
// string or an array of strings.
type submitRequest struct {
	ID       string          `json:"id"`
	Keywords json.RawMessage `json:"keywords"`
	Volumes  map[string]int  `json:"volumes"`
}

type batchDTO struct {
	ID     string              `json:"id"`
	Status keyword.BatchStatus `json:"status"`
	Error  string              `json:"error,omitempty"`
}

type submitResponse struct {
	JobID        string         `json:"job_id"`
	Status       keyword.Status `json:"status"`
	TotalBatches int            `json:"total_batches"`
	Batches      []batchDTO     `json:"batches"`
}

type resultsResponse struct {
	JobID   string                  `json:"job_id"`
	Status  keyword.Status          `json:"status"`
	Count   int                     `json:"count"`
	Results []keyword.ScoredKeyword `json:"results"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.parseJob(w, r)
	if err != nil {
		var verr *keyword.ValidationError
		switch {
		case errors.Is(err, errUnsupportedMedia):
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
		case errors.Is(err, errBodyTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	if err := s.deps.Tracker.Reserve(job.ID); err != nil {
		if errors.Is(err, tracker.ErrJobExists) {
			writeError(w, http.StatusConflict, "job already exists")
			return
		}
		s.logger.Error("reserve job failed", zap.String("job_id", job.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to track job")
		return
	}

	outcomes := s.deps.Dispatcher.DispatchJob(r.Context(), job)
	st, err := s.deps.Tracker.Track(s.deps.BaseContext, job)
	if err != nil {
		s.deps.Tracker.Release(job.ID)
		s.logger.Error("track job failed", zap.String("job_id", job.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to track job")
		return
	}
	metrics.ObserveJob("submitted")
	s.logger.Info("job accepted",
		zap.String("job_id", job.ID),
		zap.Int("keywords", len(job.Keywords)),
		zap.Int("batches", len(job.Batches)),
		zap.Int("dispatch_failed", dispatcher.Failed(outcomes)),
	)

	errByBatch := make(map[string]string, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			errByBatch[o.BatchID] = o.Err.Error()
		}
	}
	resp := submitResponse{
		JobID:        job.ID,
		Status:       st.Status,
		TotalBatches: len(job.Batches),
		Batches:      make([]batchDTO, 0, len(job.Batches)),
	}
	for _, b := range job.Batches {
		resp.Batches = append(resp.Batches, batchDTO{ID: b.ID(), Status: b.Status, Error: errByBatch[b.ID()]})
	}
	writeJSON(w, http.StatusAccepted, resp)
}

var (
	errUnsupportedMedia = errors.New("content type must be application/json or multipart/form-data")
	errBodyTooLarge     = errors.New("request body too large")
)

func (s *Server) parseJob(w http.ResponseWriter, r *http.Request) (*keyword.Job, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, errUnsupportedMedia
	}
	limit := s.cfg.Server.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	switch mediaType {
	case "application/json":
		return s.parseJSONJob(http.MaxBytesReader(w, r.Body, limit))
	case "multipart/form-data":
		return s.parseMultipartJob(w, r, limit)
	default:
		return nil, errUnsupportedMedia
	}
}

func (s *Server) parseJSONJob(body io.Reader) (*keyword.Job, error) {
	var req submitRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, &keyword.ValidationError{Field: "body", Reason: "invalid JSON"}
	}
	if strings.TrimSpace(req.ID) == "" {
		return nil, &keyword.ValidationError{Field: "id", Reason: "job id is required"}
	}
	raw := bytes.TrimSpace(req.Keywords)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, &keyword.ValidationError{Field: "keywords", Reason: "keywords are required"}
	}
	if raw[0] == '[' {
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, &keyword.ValidationError{Field: "keywords", Reason: "must be a string or an array of strings"}
		}
		return s.deps.Partitioner.Partition(req.ID, trimKeywords(list), req.Volumes)
	}
	var inline string
	if err := json.Unmarshal(raw, &inline); err != nil {
		return nil, &keyword.ValidationError{Field: "keywords", Reason: "must be a string or an array of strings"}
	}
	parsed, err := partition.ParseSource(partition.Source{Inline: inline})
	if err != nil {
		return nil, err
	}
	for k, v := range req.Volumes {
		parsed.Volumes[k] = v
	}
	return s.deps.Partitioner.Partition(req.ID, parsed.Keywords, parsed.Volumes)
}

func (s *Server) parseMultipartJob(w http.ResponseWriter, r *http.Request, limit int64) (*keyword.Job, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, &keyword.ValidationError{Field: "body", Reason: "invalid multipart form"}
	}
	id := strings.TrimSpace(r.FormValue("id"))
	if id == "" {
		return nil, &keyword.ValidationError{Field: "id", Reason: "job id is required"}
	}
	src := partition.Source{Inline: r.FormValue("keywords")}
	for _, field := range []string{"file", "csvFile"} {
		f, _, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, &keyword.ValidationError{Field: field, Reason: "unreadable upload"}
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, &keyword.ValidationError{Field: field, Reason: "unreadable upload"}
		}
		src.File = data
		break
	}
	return s.deps.Partitioner.PartitionSource(id, src)
}

func trimKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	st, err := s.deps.Tracker.Status(jobID)
	if err != nil {
		s.writeLookupError(w, jobID, err)
		return
	}
	batches, err := s.deps.Tracker.Batches(jobID)
	if err != nil {
		s.writeLookupError(w, jobID, err)
		return
	}
	dtos := make([]batchDTO, 0, len(batches))
	for _, b := range batches {
		dtos = append(dtos, batchDTO{ID: b.ID(), Status: b.Status})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job":     st,
		"batches": dtos,
	})
}

func (s *Server) getJobResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	q, err := parseFilterQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := s.deps.Tracker.Filter(jobID, q)
	if err != nil {
		s.writeLookupError(w, jobID, err)
		return
	}
	st, err := s.deps.Tracker.Status(jobID)
	if err != nil {
		s.writeLookupError(w, jobID, err)
		return
	}
	if results == nil {
		results = []keyword.ScoredKeyword{}
	}
	writeJSON(w, http.StatusOK, resultsResponse{
		JobID:   jobID,
		Status:  st.Status,
		Count:   len(results),
		Results: results,
	})
}

func parseFilterQuery(r *http.Request) (keyword.FilterQuery, error) {
	var q keyword.FilterQuery
	values := r.URL.Query()
	if raw := values.Get("minSearchVolume"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return q, errors.New("invalid minSearchVolume")
		}
		q.MinSearchVolume = v
	}
	if raw := values.Get("maxKgrScore"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return q, errors.New("invalid maxKgrScore")
		}
		q.MaxKGR = v
	}
	return q, nil
}

func (s *Server) getBatchArtifact(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	if _, err := keyword.ParseBatchKey(batchID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch id")
		return
	}
	if s.deps.Results == nil {
		writeError(w, http.StatusServiceUnavailable, "result store unavailable")
		return
	}
	art, err := s.deps.Results.Get(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, keyword.ErrArtifactNotFound) {
			writeError(w, http.StatusNotFound, "artifact not found")
			return
		}
		s.logger.Error("artifact lookup failed", zap.String("batch_id", batchID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "result store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"batch_id": batchID, "url": art.URL})
}

func (s *Server) streamJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sub, err := s.deps.Events.Subscribe(jobID)
	if err != nil {
		s.writeLookupError(w, jobID, err)
		return
	}
	defer s.deps.Events.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case st := <-sub.Events():
			if err := writeEvent(w, "batch_update", st); err != nil {
				s.logger.Debug("event stream closed", zap.String("job_id", jobID), zap.Error(err))
				return
			}
			flusher.Flush()
			if st.Status.Terminal() {
				return
			}
		}
	}
}

func writeEvent(w io.Writer, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (s *Server) writeLookupError(w http.ResponseWriter, jobID string, err error) {
	switch {
	case errors.Is(err, keyword.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, tracker.ErrJobProcessing):
		writeError(w, http.StatusConflict, "job still processing")
	default:
		s.logger.Error("job lookup failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
	}
}
