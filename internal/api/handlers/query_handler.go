package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	middleware "github.com/kelechi-nwosu/enrichd/internal/api/middlewares"
	"github.com/kelechi-nwosu/enrichd/internal/models"
)

type queryAnswerer interface {
	Answer(ctx context.Context, question, tenantID string) (*models.QueryResponse, error)
}

// QueryHandler answers questions against a tenant's indexed sections.
type QueryHandler struct {
	answerer queryAnswerer
	logger   *zap.Logger
}

func NewQueryHandler(answerer queryAnswerer, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{answerer: answerer, logger: logger}
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	// An authenticated tenant claim wins over the body field.
	tenantID := req.TenantID
	if fromToken, ok := middleware.TenantFromContext(r.Context()); ok {
		tenantID = fromToken
	}

	resp, err := h.answerer.Answer(r.Context(), req.Question, tenantID)
	if err != nil {
		h.logger.Error("query failed", zap.String("tenant", tenantID), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
