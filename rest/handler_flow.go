package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/graph"
	"github.com/a23comunicacoes/oregon-flow/logger"
	"github.com/a23comunicacoes/oregon-flow/model"
)

type flowDetail struct {
	Definition *model.FlowDefinition `json:"definition"`
	Nodes      []*model.FlowNode     `json:"nodes"`
	Edges      []*model.FlowEdge     `json:"edges"`
}

func (s *Server) HandleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var payload graph.DefinitionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid flow payload")
		return
	}
	defer r.Body.Close()
	def, err := s.graphs.Create(&payload)
	if err != nil {
		logger.Error("error creating flow", zap.String("name", payload.Name), zap.Error(err))
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, def)
}

func (s *Server) HandleUpdateFlow(w http.ResponseWriter, r *http.Request) {
	flowId := mux.Vars(r)["id"]
	var payload graph.DefinitionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid flow payload")
		return
	}
	defer r.Body.Close()
	def, err := s.graphs.Update(flowId, &payload)
	if err != nil {
		logger.Error("error updating flow", zap.String("flowId", flowId), zap.Error(err))
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, def)
}

func (s *Server) HandleListFlows(w http.ResponseWriter, r *http.Request) {
	defs, err := s.graphs.List()
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, defs)
}

func (s *Server) HandleGetFlow(w http.ResponseWriter, r *http.Request) {
	flowId := mux.Vars(r)["id"]
	def, nodes, edges, err := s.graphs.GetFlow(flowId, false)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, flowDetail{Definition: def, Nodes: nodes, Edges: edges})
}

func (s *Server) HandleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	flowId := mux.Vars(r)["id"]
	if err := s.graphs.Delete(flowId); err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondOKWithoutBody(w)
}

func (s *Server) HandleDuplicateFlow(w http.ResponseWriter, r *http.Request) {
	flowId := mux.Vars(r)["id"]
	def, err := s.graphs.Duplicate(flowId)
	if err != nil {
		logger.Error("error duplicating flow", zap.String("flowId", flowId), zap.Error(err))
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, def)
}

func (s *Server) HandleToggleStatus(w http.ResponseWriter, r *http.Request) {
	flowId := mux.Vars(r)["id"]
	status, err := s.graphs.ToggleStatus(flowId)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondOK(w, map[string]any{"id": flowId, "status": status})
}
