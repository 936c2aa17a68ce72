package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/assistgateway/internal/llm"
)

type ModelsHandler struct {
	gateway llm.Gateway
}

func NewModelsHandler(gw llm.Gateway) *ModelsHandler {
	return &ModelsHandler{gateway: gw}
}

// Models lists the vision providers registered with the gateway and the model each uses.
func (h *ModelsHandler) Models(w http.ResponseWriter, r *http.Request) {
	models := h.gateway.ListModels()
	if models == nil {
		models = []llm.ModelInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}
