// Package server exposes the anomaly pipeline over HTTP: CSV uploads in,
// result packs (optionally narrated by the LLM) out.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/finsight-labs/riskscan/pkg/io/csv"
	"github.com/finsight-labs/riskscan/pkg/llm"
	"github.com/finsight-labs/riskscan/pkg/pipeline"
	"github.com/finsight-labs/riskscan/pkg/table"
)

const defaultMaxUploadSize = 100 << 20 // 100MB

// Config carries the server's edge settings.
type Config struct {
	Model         string
	HasAPIKey     bool
	MaxUploadSize int64
}

// Server wires HTTP handlers to the pipeline and the LLM client.
type Server struct {
	pipeline *pipeline.Pipeline
	llm      llm.Client
	config   Config
}

// New creates a Server.
func New(p *pipeline.Pipeline, client llm.Client, cfg Config) *Server {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = defaultMaxUploadSize
	}
	return &Server{
		pipeline: p,
		llm:      client,
		config:   cfg,
	}
}

// Router builds the chi router with all routes registered.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ping", s.handlePing)
	r.Post("/analyze_fast", s.handleAnalyzeFast)
	r.Post("/analyze", s.handleAnalyze)
	r.Post("/executive_summary", s.handleExecutiveSummary)
	r.Post("/explain_anomaly", s.handleExplainAnomaly)

	return r
}

type analyzeResponse struct {
	RequestID      string        `json:"request_id"`
	Meta           pipeline.Meta `json:"meta"`
	DatasetSummary string        `json:"dataset_summary"`
	TopAnomalies   []table.Row   `json:"top_anomalies"`
	LLMResult      any           `json:"llm_result"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"model":       s.config.Model,
		"has_api_key": s.config.HasAPIKey,
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pong": true})
}

func (s *Server) handleAnalyzeFast(w http.ResponseWriter, r *http.Request) {
	tbl, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	pack, err := s.pipeline.Analyze(tbl, pipeline.DefaultMaxRows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Analysis failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		RequestID:      uuid.NewString(),
		Meta:           pack.Meta,
		DatasetSummary: pack.DatasetSummary,
		TopAnomalies:   pack.Anomalies,
		LLMResult:      map[string]string{"note": "Fast mode (no LLM)."},
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	tbl, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	pack, err := s.pipeline.Analyze(tbl, pipeline.DefaultMaxRows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Analysis failed: "+err.Error())
		return
	}

	anomaliesJSON, err := json.MarshalIndent(pack.Anomalies, "", "  ")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	raw, err := s.complete(r.Context(), llm.Request{
		System:    llm.SystemPrompt + "\nReturn STRICT JSON only.",
		User:      llm.RiskReportPrompt(pack.DatasetSummary, string(anomaliesJSON)),
		MaxTokens: 650,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, "Mistral API error: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		RequestID:      uuid.NewString(),
		Meta:           pack.Meta,
		DatasetSummary: pack.DatasetSummary,
		TopAnomalies:   pack.Anomalies,
		LLMResult:      jsonOrRaw(raw),
	})
}

type executiveSummaryRequest struct {
	DatasetSummary string `json:"dataset_summary"`
	TopAnomalies   []any  `json:"top_anomalies"`
}

func (s *Server) handleExecutiveSummary(w http.ResponseWriter, r *http.Request) {
	var req executiveSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}

	anomaliesJSON, err := json.Marshal(req.TopAnomalies)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, err := s.complete(r.Context(), llm.Request{
		System:    llm.ExecutiveSystemPrompt,
		User:      llm.ExecutiveSummaryPrompt(req.DatasetSummary, string(anomaliesJSON)),
		MaxTokens: 220,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, "Mistral API error: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"executive_summary": strings.TrimSpace(raw),
	})
}

type explainAnomalyRequest struct {
	DatasetSummary string         `json:"dataset_summary"`
	Row            map[string]any `json:"row"`
}

func (s *Server) handleExplainAnomaly(w http.ResponseWriter, r *http.Request) {
	var req explainAnomalyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}

	rowJSON, err := json.Marshal(req.Row)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, err := s.complete(r.Context(), llm.Request{
		System:    llm.InvestigatorSystemPrompt,
		User:      llm.ExplainAnomalyPrompt(req.DatasetSummary, string(rowJSON)),
		MaxTokens: 350,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, "Mistral API error: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"explanation": jsonOrRaw(raw),
	})
}

// readUpload extracts and parses the uploaded CSV. It writes the error
// response itself and returns ok=false when the request is rejected.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*table.Table, bool) {
	if err := r.ParseMultipartForm(s.config.MaxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field: "+err.Error())
		return nil, false
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		writeError(w, http.StatusBadRequest, "Please upload a CSV file.")
		return nil, false
	}

	tbl, err := csv.Parse(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "CSV parsing error: "+err.Error())
		return nil, false
	}
	if tbl.NumRows() == 0 {
		writeError(w, http.StatusBadRequest, "CSV is empty.")
		return nil, false
	}

	return tbl, true
}

func (s *Server) complete(ctx context.Context, req llm.Request) (string, error) {
	return s.llm.Complete(ctx, req)
}

// jsonOrRaw decodes the model output as JSON, falling back to wrapping the
// raw text when the model did not return valid JSON.
func jsonOrRaw(raw string) any {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return map[string]string{"raw_model_output": raw}
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
