package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/engine"
	"github.com/a23comunicacoes/oregon-flow/logger"
)

type runFlowRequest struct {
	Phone       string         `json:"phone"`
	ClientId    string         `json:"clientId"`
	ChatId      string         `json:"chatId"`
	StartNodeId string         `json:"startNodeId"`
	Input       map[string]any `json:"input"`
}

type incomingMessageRequest struct {
	Phone    string `json:"phone"`
	ChatId   string `json:"chatId"`
	ClientId string `json:"clientId"`
	Text     string `json:"text"`
}

type releaseAgentBlockRequest struct {
	Phone string `json:"phone"`
}

func (s *Server) HandleRunFlow(w http.ResponseWriter, r *http.Request) {
	flowId := mux.Vars(r)["id"]
	var runReq runFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&runReq); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid run payload")
		return
	}
	defer r.Body.Close()
	if runReq.Phone == "" {
		respondWithError(w, http.StatusBadRequest, "phone is required")
		return
	}
	runId, err := s.executor.StartRun(flowId, runReq.StartNodeId, runReq.Phone, runReq.ClientId, runReq.ChatId, runReq.Input)
	if err != nil {
		logger.Error("error running flow", zap.String("flowId", flowId), zap.Error(err))
		respondWithServiceError(w, err)
		return
	}
	respondOK(w, map[string]any{"runId": runId})
}

func (s *Server) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runId := mux.Vars(r)["id"]
	run, err := s.executor.GetRun(runId)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, run)
}

// HandleAdvanceRun kicks a run forward. A held lease or a not-yet-due wait
// is a quiet no-op from the caller's point of view.
func (s *Server) HandleAdvanceRun(w http.ResponseWriter, r *http.Request) {
	runId := mux.Vars(r)["id"]
	err := s.executor.Advance(runId)
	if errors.Is(err, engine.ErrBusy) {
		respondOK(w, map[string]any{"runId": runId, "advanced": false})
		return
	}
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondOK(w, map[string]any{"runId": runId, "advanced": true})
}

func (s *Server) HandleIncomingMessage(w http.ResponseWriter, r *http.Request) {
	var req incomingMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid message payload")
		return
	}
	defer r.Body.Close()
	if req.Phone == "" {
		respondWithError(w, http.StatusBadRequest, "phone is required")
		return
	}
	if err := s.executor.HandleIncomingMessage(req.Phone, req.ChatId, req.ClientId, req.Text); err != nil && !errors.Is(err, engine.ErrBusy) {
		logger.Error("error handling incoming message", zap.String("phone", req.Phone), zap.Error(err))
		respondWithServiceError(w, err)
		return
	}
	respondOKWithoutBody(w)
}

func (s *Server) HandleReleaseRunAgentBlock(w http.ResponseWriter, r *http.Request) {
	runId := mux.Vars(r)["id"]
	if err := s.executor.ReleaseAgentBlockForRun(runId); err != nil {
		logger.Error("error releasing agent block for run", zap.String("runId", runId), zap.Error(err))
		respondWithServiceError(w, err)
		return
	}
	respondOKWithoutBody(w)
}

func (s *Server) HandleReleaseAgentBlock(w http.ResponseWriter, r *http.Request) {
	var req releaseAgentBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	defer r.Body.Close()
	if req.Phone == "" {
		respondWithError(w, http.StatusBadRequest, "phone is required")
		return
	}
	if err := s.executor.ReleaseAgentBlock(req.Phone); err != nil {
		logger.Error("error releasing agent block", zap.String("phone", req.Phone), zap.Error(err))
		respondWithServiceError(w, err)
		return
	}
	respondOKWithoutBody(w)
}
