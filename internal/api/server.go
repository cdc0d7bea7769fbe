package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"

	"sniprag/internal/activities"
	"sniprag/internal/config"
	"sniprag/internal/engine"
	"sniprag/internal/fetch"
	"sniprag/internal/index"
	"sniprag/internal/models"
	"sniprag/internal/util"
	"sniprag/internal/workflows"
)

type Server struct {
	cfg      config.Config
	engine   *engine.Engine
	temporal tclient.Client
	log      logrus.FieldLogger
}

// NewServer serves eng over HTTP. tc may be nil, in which case remote
// ingestion runs synchronously and directory ingestion is unavailable.
func NewServer(cfg config.Config, eng *engine.Engine, tc tclient.Client, log logrus.FieldLogger) *Server {
	return &Server{cfg: cfg, engine: eng, temporal: tc, log: log}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/remote", s.handleRemote)
	mux.HandleFunc("/documents/", s.handleDocumentScoped)
	mux.HandleFunc("/ingest/directory", s.handleIngestDirectory)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/stats", s.handleStats)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "strategy": s.engine.Strategy()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"documents": s.engine.Documents()})
	case http.MethodPost:
		s.handleUpload(w, r)
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

// handleUpload accepts either a multipart form with a single file or a raw
// application/pdf body. The document id comes from ?document_id= or the
// form field of the same name, else it is derived from filename and hash.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.cfg.FetchMaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.FetchMaxBytes)
	}

	documentID := strings.TrimSpace(r.URL.Query().Get("document_id"))
	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	var data []byte
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid multipart body: %w", err))
			return
		}
		if v := strings.TrimSpace(r.FormValue("document_id")); v != "" {
			documentID = v
		}
		fh, ok := firstSingleFile(r.MultipartForm.File)
		if !ok {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
			return
		}
		filename = fh.Filename
		f, err := fh.Open()
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		data, err = io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
			return
		}
	} else {
		data, err = io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeErr(w, http.StatusRequestEntityTooLarge, fetch.ErrTooLarge)
				return
			}
			writeErr(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
			return
		}
	}
	if len(data) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no files provided"))
		return
	}
	if documentID == "" {
		if filename == "" {
			filename = "upload.pdf"
		}
		documentID = activities.DocumentIDFor(filename, util.SHA256Hex(data))
	}

	rep, err := s.engine.ProcessDocument(r.Context(), documentID, data)
	s.writeReport(w, rep, err)
}

func (s *Server) writeReport(w http.ResponseWriter, rep engine.Report, err error) {
	if err != nil {
		if rep.State == models.StateFailed {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"report": rep,
				"error": map[string]any{
					"code":    "SR-ING-4220",
					"message": rep.FailReason,
				},
			})
			return
		}
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"report": rep})
}

func (s *Server) handleRemote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		URI        string `json:"uri"`
		DocumentID string `json:"document_id"`
		Region     string `json:"region"`
		Endpoint   string `json:"endpoint"`
		Wait       bool   `json:"wait"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.URI = strings.TrimSpace(req.URI)
	if req.URI == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("uri is required"))
		return
	}
	if req.DocumentID == "" {
		req.DocumentID = activities.DocumentIDFor(pathOfURI(req.URI), util.SHA256Hex([]byte(req.URI)))
	}

	if s.temporal != nil && !req.Wait {
		wfID := "document-" + strings.ReplaceAll(strings.ToLower(req.DocumentID), "_", "-")
		we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
			ID:                                       wfID,
			TaskQueue:                                s.cfg.TemporalTaskQueue,
			WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
			WorkflowExecutionErrorWhenAlreadyStarted: true,
		}, workflows.DocumentIngestWorkflow, workflows.DocumentIngestInput{
			URI:            req.URI,
			DocumentID:     req.DocumentID,
			WriteArtifacts: true,
		})
		if err != nil {
			writeErr(w, http.StatusConflict, err)
			return
		}
		s.log.WithFields(logrus.Fields{"document_id": req.DocumentID, "workflow_id": we.GetID()}).Info("remote ingest started")
		writeJSON(w, http.StatusAccepted, map[string]any{
			"document_id": req.DocumentID,
			"workflow_id": we.GetID(),
			"run_id":      we.GetRunID(),
		})
		return
	}

	creds := fetch.Credentials{Region: req.Region, Endpoint: req.Endpoint}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		creds.BearerToken = strings.TrimPrefix(auth, "Bearer ")
	}
	rep, err := s.engine.ProcessDocumentFromRemote(r.Context(), req.URI, req.DocumentID, creds)
	s.writeReport(w, rep, err)
}

func (s *Server) handleIngestDirectory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("temporal is not enabled"))
		return
	}
	var req struct {
		Dir string `json:"dir"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
	}
	dir := s.cfg.DataInRoot
	if req.Dir != "" {
		joined, err := util.SafeJoin(s.cfg.DataInRoot, req.Dir)
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		dir = joined
	}

	runID := uuid.NewString()
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:        "ingest-" + runID,
		TaskQueue: s.cfg.TemporalTaskQueue,
	}, workflows.DirectoryIngestWorkflow, workflows.DirectoryIngestInput{
		RunID:                 runID,
		InputDir:              dir,
		MaxConcurrentChildren: s.cfg.IngestMaxChildren,
		WriteArtifacts:        true,
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	s.log.WithFields(logrus.Fields{"run_id": runID, "input_dir": dir}).Info("directory ingest started")
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":          runID,
		"workflow_id":     we.GetID(),
		"temporal_run_id": we.GetRunID(),
		"input_dir":       dir,
	})
}

func (s *Server) handleDocumentScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	documentID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			doc, err := s.engine.Document(documentID)
			if err != nil {
				writeErr(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, doc)
		case http.MethodDelete:
			if err := s.engine.RemoveDocument(r.Context(), documentID); err != nil {
				writeErr(w, statusFor(err), err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
	case len(parts) == 2 && parts[1] == "chunks":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		entries, err := s.engine.Chunks(documentID)
		if err != nil {
			writeErr(w, statusFor(err), err)
			return
		}
		out := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			out = append(out, map[string]any{
				"chunk_id":   e.ChunkID,
				"text":       e.Text,
				"metadata":   e.Metadata,
				"generation": e.Generation,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"chunks": out})
	case len(parts) == 4 && parts[1] == "chunks" && parts[3] == "snippet":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		padding, err := s.paddingParam(r)
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		png, err := s.engine.Snippet(r.Context(), documentID, parts[2], padding)
		if err != nil {
			writeErr(w, statusFor(err), err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

type searchResponse struct {
	Query   string                `json:"query"`
	Results []models.SearchResult `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req := engine.SearchRequest{TopK: 5, IncludeImages: true}
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.Query = q.Get("q")
		if v := q.Get("top_k"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid top_k: %w", err))
				return
			}
			req.TopK = n
		}
		if q.Has("padding") {
			p, err := strconv.Atoi(q.Get("padding"))
			if err != nil {
				writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid padding: %w", err))
				return
			}
			req.SnippetPadding = &p
		}
		if v := q.Get("images"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid images flag: %w", err))
				return
			}
			req.IncludeImages = b
		}
		req.Filter = index.Filter{DocumentIDs: q["document_id"], Kind: models.ChunkKind(q.Get("chunk_kind"))}
		if v := q.Get("page"); v != "" {
			p, err := strconv.Atoi(v)
			if err != nil {
				writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid page: %w", err))
				return
			}
			req.Filter.Page = &p
		}
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
	default:
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	results, err := s.engine.Search(r.Context(), req)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: req.Query, Results: results})
}

func (s *Server) paddingParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("padding")
	if v == "" {
		return s.cfg.DefaultPadding, nil
	}
	p, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid padding: %w", err)
	}
	if p < 0 {
		return 0, fmt.Errorf("%w: %d", util.ErrInvalidPadding, p)
	}
	return p, nil
}

func pathOfURI(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		uri = uri[:i]
	}
	return filepath.Base(uri)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, util.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, util.ErrInvalidPadding), errors.Is(err, util.ErrInvalidTopK),
		errors.Is(err, util.ErrInvalidDocumentID), errors.Is(err, util.ErrEmptyDocument),
		errors.Is(err, fetch.ErrUnsupportedScheme):
		return http.StatusBadRequest
	case errors.Is(err, fetch.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, util.ErrImage):
		return http.StatusConflict
	case errors.Is(err, util.ErrEmbedding):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func firstSingleFile[T any](m map[string][]T) (T, bool) {
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	var zero T
	return zero, false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "SR-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status == http.StatusServiceUnavailable:
		return apiError{Code: "SR-API-5030", Message: "Workflow orchestration is not enabled on this server."}
	case status == http.StatusBadGateway:
		return apiError{Code: "SR-API-5020", Message: "Embedding provider unavailable. Retry shortly."}
	case status >= 500:
		switch {
		case strings.Contains(raw, "index inconsistency"):
			return apiError{
				Code:    "SR-IDX-5001",
				Message: "Search index is inconsistent. Re-ingest the affected documents.",
			}
		case strings.Contains(raw, "persist snapshot"), strings.Contains(raw, "connection refused"), strings.Contains(raw, "dial tcp"):
			return apiError{
				Code:    "SR-DB-5002",
				Message: "Snapshot store is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "SR-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "SR-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "SR-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "SR-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "SR-API-4005"
		msg = "This endpoint does not support the requested method."
	case status == http.StatusRequestEntityTooLarge:
		code = "SR-API-4013"
		msg = "Document exceeds the configured size limit."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		switch {
		case strings.Contains(raw, "invalid snippet padding"), strings.Contains(raw, "invalid padding"):
			msg = "Snippet padding must be a non-negative integer."
		case strings.Contains(raw, "topk must be"), strings.Contains(raw, "invalid top_k"):
			msg = "top_k must be a positive integer."
		case strings.Contains(raw, "document id is required"):
			msg = "Document id is required."
		case strings.Contains(raw, "uri is required"):
			msg = "A source uri is required."
		case strings.Contains(raw, "unsupported uri scheme"):
			msg = "Only file, http(s) and s3 uris are supported."
		case strings.Contains(raw, "no files provided"):
			msg = "No PDF file was provided."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		case strings.Contains(raw, "generation") && strings.Contains(raw, "replaced"):
			msg = "The chunk belongs to a replaced generation. Search again."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
