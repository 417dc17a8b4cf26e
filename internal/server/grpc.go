package server

import (
	"CoverPool/internal/ingestion"
	"CoverPool/internal/observability"
	"CoverPool/internal/persistence"
	"CoverPool/internal/projection"
	"CoverPool/internal/query"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer wraps the gRPC server and the HTTP/JSON API mux.
// The gRPC surface carries health checks and reflection; the JSON API is
// served on a gateway mux so both surfaces share one routing layer.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	deps          *ServerDeps
	healthChecker *observability.HealthChecker
}

// PoolStatusFunc returns the current live pool summary. The orchestrator
// provides a function backed by a copy maintained outside the core's
// single-writer loop, so queries never race with event processing.
type PoolStatusFunc func() query.PoolStatusResponse

// ServerDeps holds all dependencies needed by the API services.
type ServerDeps struct {
	DB            *sql.DB
	QueryService  *query.QueryService
	IngestService *ingestion.GRPCIngestService
	SnapshotMgr   *persistence.SnapshotManager
	PoolStatus    PoolStatusFunc
	StartTime     time.Time
	HealthChecker *observability.HealthChecker
}

// NewGRPCServer creates a new gRPC server with health and reflection
// registered.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) *GRPCServer {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		deps:          deps,
		healthChecker: deps.HealthChecker,
	}
}

// StartGRPC starts the gRPC server (blocking).
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: gRPC server shutting down...")
		s.grpcServer.GracefulStop()
	}()

	log.Printf("INFO: gRPC server listening on %s", s.grpcAddr)
	return s.grpcServer.Serve(lis)
}

// StartHTTPGateway starts the HTTP/JSON API (blocking).
// HTTP/JSON is served for tooling, dashboards, curl.
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	mux := runtime.NewServeMux()

	if err := s.registerRoutes(mux); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/", mux)

	s.httpServer = &http.Server{
		Addr:    s.httpAddr,
		Handler: httpMux,
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP gateway shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP gateway listening on %s", s.httpAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *GRPCServer) registerRoutes(mux *runtime.ServeMux) error {
	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/pool/status", s.handlePoolStatus},
		{"GET", "/v1/pool/accounts", s.handlePoolAccounts},
		{"GET", "/v1/members/{member}/balance", s.handleMemberBalance},
		{"GET", "/v1/members/{member}/journals", s.handleMemberJournals},
		{"GET", "/v1/events", s.handleEvents},
		{"POST", "/v1/staking/deposits", s.handleInjectDeposit},
		{"POST", "/v1/staking/withdrawals", s.handleInjectWithdrawal},
		{"POST", "/v1/governance/products", s.handleInjectProduct},
		{"POST", "/v1/governance/fee", s.handleInjectFee},
		{"POST", "/v1/admin/sweep", s.handleInjectSweep},
		{"POST", "/v1/admin/projections/rebuild", s.handleRebuildProjections},
		{"GET", "/v1/admin/integrity", s.handleVerifyIntegrity},
		{"GET", "/v1/admin/eventlog", s.handleEventLogInfo},
	}

	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return fmt.Errorf("%s %s: %w", r.method, r.pattern, err)
		}
	}
	return nil
}

// --- Query handlers ---

func (s *GRPCServer) handlePoolStatus(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if s.deps.PoolStatus == nil {
		writeError(w, http.StatusServiceUnavailable, "pool status unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.PoolStatus())
}

func (s *GRPCServer) handlePoolAccounts(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := s.deps.QueryService.GetPoolAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("pool accounts: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *GRPCServer) handleMemberBalance(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	member, err := uuid.Parse(pathParams["member"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid member: %v", err))
		return
	}

	resp, err := s.deps.QueryService.GetMemberBalance(r.Context(), member)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("member balance: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *GRPCServer) handleMemberJournals(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	member, err := uuid.Parse(pathParams["member"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid member: %v", err))
		return
	}

	limit := queryInt(r, "limit", 100)
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var afterSeq *int64
	if v := queryInt(r, "from_sequence", 0); v > 0 {
		afterSeq = &v
	}

	entries, err := s.deps.QueryService.GetJournalHistory(r.Context(), member, int(limit), afterSeq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("journals: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"journals": entries})
}

func (s *GRPCServer) handleEvents(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	limit := queryInt(r, "limit", 100)
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var afterSeq *int64
	if v := queryInt(r, "from_sequence", 0); v > 0 {
		afterSeq = &v
	}
	var eventType *string
	if v := r.URL.Query().Get("event_type"); v != "" {
		eventType = &v
	}

	entries, err := s.deps.QueryService.GetEventHistory(r.Context(), eventType, int(limit), afterSeq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("events: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": entries})
}

// --- Ingest handlers ---
// These feed the same event channel as NATS ingestion; they exist for
// admin operations and manual injection, not high-throughput traffic.

func (s *GRPCServer) handleInjectDeposit(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Position  string `json:"position"`
		TrancheID int64  `json:"tranche_id"`
		Amount    int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode: %v", err))
		return
	}
	position, err := uuid.Parse(req.Position)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid position: %v", err))
		return
	}

	if err := s.deps.IngestService.InjectDeposit(r.Context(), position, req.TrancheID, req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *GRPCServer) handleInjectWithdrawal(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Position        string  `json:"position"`
		WithdrawStake   bool    `json:"withdraw_stake"`
		WithdrawRewards bool    `json:"withdraw_rewards"`
		TrancheIDs      []int64 `json:"tranche_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode: %v", err))
		return
	}
	position, err := uuid.Parse(req.Position)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid position: %v", err))
		return
	}

	if err := s.deps.IngestService.InjectWithdrawal(r.Context(), position, req.WithdrawStake, req.WithdrawRewards, req.TrancheIDs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *GRPCServer) handleInjectProduct(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		ProductID    int64 `json:"product_id"`
		Weight       int64 `json:"weight"`
		TargetPrice  int64 `json:"target_price"`
		InitialPrice int64 `json:"initial_price"`
		FixedPrice   bool  `json:"fixed_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode: %v", err))
		return
	}

	if err := s.deps.IngestService.InjectProductUpdate(r.Context(), req.ProductID, req.Weight, req.TargetPrice, req.InitialPrice, req.FixedPrice); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *GRPCServer) handleInjectFee(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req struct {
		Fee int64 `json:"fee"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode: %v", err))
		return
	}

	if err := s.deps.IngestService.InjectFeeUpdate(r.Context(), req.Fee); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *GRPCServer) handleInjectSweep(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if err := s.deps.IngestService.InjectSweep(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

// --- Admin handlers ---

func (s *GRPCServer) handleRebuildProjections(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if err := projection.RebuildProjections(r.Context(), s.deps.DB); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("rebuild failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rebuilt": true})
}

func (s *GRPCServer) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	report, err := s.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("verify integrity: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *GRPCServer) handleEventLogInfo(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	latestSeq, err := s.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("get latest sequence: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"last_sequence": latestSeq,
		"uptime_sec":    int64(time.Since(s.deps.StartTime).Seconds()),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func queryInt(r *http.Request, name string, def int64) int64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
