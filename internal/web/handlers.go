package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/csvimport/internal/core"
	"github.com/JonMunkholm/csvimport/internal/logging"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

var validate = validator.New()

type fieldSummary struct {
	Key      string         `json:"key"`
	Label    string         `json:"label"`
	Type     core.FieldType `json:"type"`
	Required bool           `json:"required"`
	Group    string         `json:"group,omitempty"`
	Options  []string       `json:"options,omitempty"`
}

type operationSummary struct {
	PageID      string         `json:"page_id"`
	ID          string         `json:"id"`
	Label       string         `json:"label"`
	Description string         `json:"description,omitempty"`
	Fields      []fieldSummary `json:"fields"`
}

type dryRunRequest struct {
	File     string        `json:"file" validate:"required"`
	FieldMap core.FieldMap `json:"field_map" validate:"required"`
}

type startRequest struct {
	File string `json:"file" validate:"required"`
	Name string `json:"name"`
}

type batchRequest struct {
	File     string        `json:"file" validate:"required"`
	Offset   int           `json:"offset" validate:"min=0"`
	FieldMap core.FieldMap `json:"field_map" validate:"required"`
}

type completeRequest struct {
	Status core.RunStatus `json:"status" validate:"required,oneof=complete cancelled error"`
	File   string         `json:"file"`
}

type statsResponse struct {
	Stats      core.RunStats `json:"stats"`
	Percentage int           `json:"percentage"`
}

func operationParams(r *http.Request) (page, operation string) {
	return chi.URLParam(r, "page"), chi.URLParam(r, "operation")
}

// decodeRequest reads a JSON body into dst and validates its tags.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"batches": s.service.Limiter().Status(),
	})
}

// handleListOperations lists registered operations, optionally only those
// of the page named by ?page=.
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	ops := s.service.Operations()
	if page := r.URL.Query().Get("page"); page != "" {
		ops = s.service.PageOperations(page)
	}
	out := make([]operationSummary, 0, len(ops))
	for _, op := range ops {
		fields := make([]fieldSummary, 0, len(op.Fields))
		for _, f := range op.Fields {
			fields = append(fields, fieldSummary{
				Key:      f.Key,
				Label:    f.DisplayLabel(),
				Type:     f.Type,
				Required: f.Required,
				Group:    f.Group,
				Options:  f.Options,
			})
		}
		out = append(out, operationSummary{
			PageID:      op.PageID,
			ID:          op.ID,
			Label:       op.Label,
			Description: op.Description,
			Fields:      fields,
		})
	}
	writeJSON(w, out)
}

// handleUpload stores a multipart CSV upload and proposes a field map.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	page, operation := operationParams(r)
	op, err := s.service.Operation(page, operation)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	// Leave room for the multipart envelope around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		respondError(w, r, err, status)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	up, err := s.files.Save(r.Context(), header.Filename, file)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	logging.WithFields(r.Context(), "operation", op.Key().String()).
		Info("upload received", "file", up.Handle, "rows", up.TotalRows)

	writeJSONStatus(w, http.StatusCreated, map[string]any{
		"file":       up.Handle,
		"name":       up.Name,
		"size":       up.Size,
		"headers":    up.Headers,
		"total_rows": up.TotalRows,
		"field_map":  core.SuggestFieldMap(op.Fields, up.Headers),
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	page, operation := operationParams(r)
	if _, err := s.service.Operation(page, operation); err != nil {
		respondError(w, r, err, 0)
		return
	}
	handle := r.URL.Query().Get("file")
	if handle == "" {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}

	rows := 0
	if v := r.URL.Query().Get("rows"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "rows must be a positive integer")
			return
		}
		rows = n
	}

	preview, err := s.service.GetPreview(r.Context(), handle, rows)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, preview)
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	page, operation := operationParams(r)
	sample, err := s.service.GenerateSample(page, operation)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", page+"-"+operation+"-sample.csv"))
	_, _ = w.Write([]byte(sample))
}

func (s *Server) handleFieldMap(w http.ResponseWriter, r *http.Request) {
	page, operation := operationParams(r)
	handle := r.URL.Query().Get("file")
	if handle == "" {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}

	fm, err := s.service.SuggestFieldMap(r.Context(), page, operation, handle)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, map[string]any{"field_map": fm})
}

func (s *Server) handleDryRun(w http.ResponseWriter, r *http.Request) {
	page, operation := operationParams(r)
	var req dryRunRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	report, err := s.service.DryRun(r.Context(), page, operation, req.File, req.FieldMap)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, report)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	page, operation := operationParams(r)
	var req startRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := s.service.StartRun(r.Context(), page, operation, core.FileMeta{Handle: req.File, Name: req.Name})
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	page, operation := operationParams(r)
	var req batchRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := s.service.RunBatch(r.Context(), page, operation, req.File, req.Offset, req.FieldMap)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, resp)
}

// handleComplete seals the run and discards the uploaded file when one is named.
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	page, operation := operationParams(r)
	var req completeRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	st, err := s.service.Complete(r.Context(), page, operation, req.Status)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	s.discardFile(r, req.File)
	writeJSON(w, statsResponse{Stats: st, Percentage: core.Percentage(st)})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	page, operation := operationParams(r)
	st, err := s.service.Cancel(r.Context(), page, operation)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	s.discardFile(r, r.URL.Query().Get("file"))
	writeJSON(w, statsResponse{Stats: st, Percentage: core.Percentage(st)})
}

func (s *Server) handleRequestCancel(w http.ResponseWriter, r *http.Request) {
	page, operation := operationParams(r)
	st, err := s.service.RequestCancel(r.Context(), page, operation)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, statsResponse{Stats: st, Percentage: core.Percentage(st)})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	page, operation := operationParams(r)
	st, err := s.service.GetStats(r.Context(), page, operation)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, statsResponse{Stats: st, Percentage: core.Percentage(st)})
}

func (s *Server) handleClearStats(w http.ResponseWriter, r *http.Request) {
	page, operation := operationParams(r)
	if err := s.service.ClearStats(r.Context(), page, operation); err != nil {
		respondError(w, r, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) discardFile(r *http.Request, handle string) {
	if handle == "" {
		return
	}
	if err := s.files.Delete(r.Context(), handle); err != nil {
		logging.FromContext(r.Context()).Warn("failed to delete uploaded file", "file", handle, "error", err)
	}
}
