package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/engine"
	"github.com/a23comunicacoes/oregon-flow/graph"
	"github.com/a23comunicacoes/oregon-flow/logger"
	"github.com/a23comunicacoes/oregon-flow/model"
	"github.com/a23comunicacoes/oregon-flow/trigger"
)

type Server struct {
	http.Server
	Port     int
	graphs   *graph.Service
	executor *engine.Engine
	matcher  *trigger.Matcher
}

func NewServer(httpPort int, graphs *graph.Service, executor *engine.Engine, matcher *trigger.Matcher) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		graphs:   graphs,
		executor: executor,
		matcher:  matcher,
		Port:     httpPort,
	}

	router := mux.NewRouter()
	router.HandleFunc("/flows", s.HandleCreateFlow).Methods(http.MethodPost)
	router.HandleFunc("/flows", s.HandleListFlows).Methods(http.MethodGet)
	router.HandleFunc("/flows/toggle-status/{id}", s.HandleToggleStatus).Methods(http.MethodPut)
	router.HandleFunc("/flows/run/{id}/advance", s.HandleAdvanceRun).Methods(http.MethodPost)
	router.HandleFunc("/flows/run/{id}/release-agent-block", s.HandleReleaseRunAgentBlock).Methods(http.MethodPost)
	// webhook callers speak whatever verb the remote system likes
	router.HandleFunc("/flows/webhook/{key}", s.HandleWebhook)
	router.HandleFunc("/flows/{id}", s.HandleGetFlow).Methods(http.MethodGet)
	router.HandleFunc("/flows/{id}", s.HandleUpdateFlow).Methods(http.MethodPut)
	router.HandleFunc("/flows/{id}", s.HandleDeleteFlow).Methods(http.MethodDelete)
	router.HandleFunc("/flows/{id}/duplicate", s.HandleDuplicateFlow).Methods(http.MethodPost)
	router.HandleFunc("/flows/{id}/toggle-status", s.HandleToggleStatus).Methods(http.MethodPost)
	router.HandleFunc("/flows/{id}/run", s.HandleRunFlow).Methods(http.MethodPost)

	router.HandleFunc("/runs/{id}", s.HandleGetRun).Methods(http.MethodGet)
	router.HandleFunc("/runs/{id}/advance", s.HandleAdvanceRun).Methods(http.MethodPost)

	router.HandleFunc("/messages/incoming", s.HandleIncomingMessage).Methods(http.MethodPost)
	router.HandleFunc("/release-agent-block", s.HandleReleaseAgentBlock).Methods(http.MethodPost)
	router.HandleFunc("/webhook/{key}", s.HandleWebhook).Methods(http.MethodPost)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server")
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message map[string]any) {
	respondWithJSON(w, http.StatusOK, message)
}

func respondOKWithoutBody(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithServiceError maps the domain error taxonomy to http statuses:
// validation 400, missing resource 404, held lease 409, the rest 500.
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case model.IsValidation(err):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case model.IsNotFound(err):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrBusy):
		respondWithError(w, http.StatusConflict, "flow run busy")
	default:
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}
