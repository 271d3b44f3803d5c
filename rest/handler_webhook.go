package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/a23comunicacoes/oregon-flow/logger"
)

// HandleWebhook starts the flow bound to the path key. The request body is
// handed to the run as its initial context, with phone/clientId/chatId
// lifted out when present.
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	def, err := s.matcher.MatchForWebhook(key)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		body = map[string]any{}
	}
	defer r.Body.Close()

	phone, _ := body["phone"].(string)
	clientId, _ := body["clientId"].(string)
	chatId, _ := body["chatId"].(string)

	runId, err := s.executor.StartRun(def.Id, "", phone, clientId, chatId, body)
	if err != nil {
		logger.Error("error starting webhook flow", zap.String("key", key), zap.String("flowId", def.Id), zap.Error(err))
		respondWithServiceError(w, err)
		return
	}
	respondOK(w, map[string]any{"runId": runId})
}
