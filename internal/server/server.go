package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"paper-rag/internal/analyzer"
	"paper-rag/internal/archive"
	"paper-rag/internal/export"
	"paper-rag/internal/models"
	"paper-rag/internal/rag"
	"paper-rag/internal/session"
)

// 50MB per request
const maxUploadSize = 50 << 20

// Server exposes one session over HTTP. Requests touching the session are
// serialised.
type Server struct {
	mu       sync.Mutex
	service  *rag.Service
	session  *session.Session
	insights *analyzer.Insights
	archive  *archive.Archive
}

// New creates a server. insights and arc may be nil.
func New(service *rag.Service, sess *session.Session, insights *analyzer.Insights, arc *archive.Archive) *Server {
	return &Server{service: service, session: sess, insights: insights, archive: arc}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/upload", s.uploadHandler)
	mux.HandleFunc("/ask", s.askHandler)
	mux.HandleFunc("/history", s.historyHandler)
	mux.HandleFunc("/clear", s.clearHandler)
	mux.HandleFunc("/reset", s.resetHandler)
	mux.HandleFunc("/export", s.exportHandler)
	mux.HandleFunc("/analysis", s.analysisHandler)
	mux.HandleFunc("/analysis/term", s.termHandler)
	mux.HandleFunc("/analysis/equation", s.equationHandler)
	mux.HandleFunc("/analysis/section", s.sectionHandler)
	mux.HandleFunc("/archive", s.archiveListHandler)
	mux.HandleFunc("/archive/{id}", s.archiveGetHandler)
	return mux
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info().Msg("HTTP server stopped")
	return nil
}

type errorResponse struct {
	Error     string            `json:"error"`
	Retryable bool              `json:"retryable,omitempty"`
	Report    *rag.IngestReport `json:"report,omitempty"`
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, rag.ErrServiceUnavailable):
		return http.StatusBadGateway, true
	case errors.Is(err, rag.ErrNoContent):
		return http.StatusUnprocessableEntity, false
	case errors.Is(err, rag.ErrNoIndex):
		return http.StatusConflict, false
	case errors.Is(err, rag.ErrEmptyQuestion):
		return http.StatusBadRequest, false
	case errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound, false
	default:
		return http.StatusInternalServerError, false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

func writeError(w http.ResponseWriter, err error, report *rag.IngestReport) {
	status, retryable := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Retryable: retryable, Report: report})
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"session":   s.session.ID,
		"has_index": s.session.HasIndex(),
	})
}

// POST /upload  multipart form, one or more "files" fields
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}
	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		http.Error(w, "missing files field", http.StatusBadRequest)
		return
	}

	uploads := make([]rag.Upload, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			http.Error(w, "failed to open upload", http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			http.Error(w, "failed to read upload", http.StatusBadRequest)
			return
		}
		uploads = append(uploads, rag.Upload{Filename: h.Filename, Data: data})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	report, err := s.service.Ingest(r.Context(), s.session, uploads)
	if err != nil {
		writeError(w, err, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type askRequest struct {
	Question string `json:"question"`
}

// POST /ask  { "question": "..." }
func (s *Server) askHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	turn, err := s.service.Ask(r.Context(), s.session, req.Question)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"session": s.session.ID,
		"turns":   s.session.History(),
	})
}

func (s *Server) clearHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.service.ClearHistory(s.session)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.service.Reset(r.Context(), s.session); err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session": s.session.ID})
}

func documentNames(docs []*models.Document) []string {
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Filename
	}
	return names
}

// GET /export?format=md&archive=true
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	t := export.NewTranscript(s.session.ID, documentNames(s.session.Documents()), s.session.History())
	s.mu.Unlock()

	if keep, _ := strconv.ParseBool(r.URL.Query().Get("archive")); keep && s.archive != nil {
		if err := s.archive.Save(t); err != nil {
			writeError(w, err, nil)
			return
		}
	}

	data, err := export.Render(t, format)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", t.Filename(format)))
	w.Write(data)
}

type documentAnalysis struct {
	Filename string `json:"filename"`
	*analyzer.Report
}

// GET /analysis?insights=true
func (s *Server) analysisHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	withInsights, _ := strconv.ParseBool(r.URL.Query().Get("insights"))

	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.session.Documents()
	if len(docs) == 0 {
		writeError(w, rag.ErrNoContent, nil)
		return
	}
	out := make([]documentAnalysis, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentAnalysis{
			Filename: d.Filename,
			Report:   s.insights.Report(r.Context(), d.RawText(), withInsights),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

const excerptRadius = 250

// excerpt returns text around the first mention of needle in any document
func (s *Server) excerpt(needle string) string {
	for _, d := range s.session.Documents() {
		if e := analyzer.Excerpt(d.RawText(), needle, excerptRadius); e != "" {
			return analyzer.NormalizePDFText(e)
		}
	}
	return ""
}

// GET /analysis/term?term=attention
func (s *Server) termHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	if term == "" {
		http.Error(w, "term is required", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.session.Documents()) == 0 {
		writeError(w, rag.ErrNoContent, nil)
		return
	}
	excerpt := s.excerpt(term)
	writeJSON(w, http.StatusOK, analyzer.Term{
		Term:       term,
		Definition: s.insights.DefineTerm(r.Context(), term, excerpt),
		Context:    excerpt,
	})
}

// GET /analysis/equation?equation=...
func (s *Server) equationHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	equation := strings.TrimSpace(r.URL.Query().Get("equation"))
	if equation == "" {
		http.Error(w, "equation is required", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.insights.ExplainEquation(r.Context(), equation, s.excerpt(equation)))
}

// GET /analysis/section?document=paper.pdf&id=methodology
func (s *Server) sectionHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.session.Documents() {
		if d.Filename != q.Get("document") {
			continue
		}
		for _, sec := range analyzer.Sections(d.RawText()) {
			if sec.ID != q.Get("id") {
				continue
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"section": sec,
				"summary": s.insights.SummarizeSection(r.Context(), sec, s.session.Level),
			})
			return
		}
	}
	http.Error(w, "section not found", http.StatusNotFound)
}

// GET /archive?limit=10 or /archive?session=<id>
func (s *Server) archiveListHandler(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if s.archive == nil {
		http.Error(w, "archive disabled", http.StatusNotFound)
		return
	}
	var (
		list []export.Transcript
		err  error
	)
	if sessionID := r.URL.Query().Get("session"); sessionID != "" {
		list, err = s.archive.BySession(sessionID)
	} else {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		list, err = s.archive.List(limit)
	}
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) archiveGetHandler(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, "archive disabled", http.StatusNotFound)
		return
	}
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		t, err := s.archive.Get(id)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodDelete:
		if err := s.archive.Delete(id); err != nil {
			writeError(w, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
