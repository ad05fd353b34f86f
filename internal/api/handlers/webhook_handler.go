package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	middleware "github.com/kelechi-nwosu/enrichd/internal/api/middlewares"
	"github.com/kelechi-nwosu/enrichd/internal/models"
	"github.com/kelechi-nwosu/enrichd/internal/services"
)

type notificationProcessor interface {
	ProcessBatch(ctx context.Context, batch models.NotificationBatch) int
	ProcessFile(ctx context.Context, ref models.FileReference) (*services.PipelineResult, error)
}

// WebhookHandler receives change notifications from the file store and
// manual enrichment requests on the same endpoint.
type WebhookHandler struct {
	processor notificationProcessor
	logger    *zap.Logger
}

func NewWebhookHandler(processor notificationProcessor, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{processor: processor, logger: logger}
}

// Validate answers the store's endpoint-validation handshake. Without a
// validationToken it doubles as a readiness probe.
func (h *WebhookHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(token))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("notification endpoint is up"))
}

// notificationPayload covers both shapes delivered to the endpoint: a batch
// from the store (value array) or a manual request naming a single file.
type notificationPayload struct {
	Value []models.ChangeNotification `json:"value"`
	models.ManualEnrichRequest
}

// Receive handles POSTed notifications. The validation handshake can arrive
// on POST as well and takes priority over the body.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(token))
		return
	}

	var payload notificationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if len(payload.Value) > 0 {
		h.receiveBatch(w, r, payload.Value)
		return
	}
	h.receiveManual(w, r, payload)
}

func (h *WebhookHandler) receiveBatch(w http.ResponseWriter, r *http.Request, value []models.ChangeNotification) {
	processed := h.processor.ProcessBatch(r.Context(), models.NotificationBatch{Value: value})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":        "notifications received",
		"processedCount": processed,
	})
}

func (h *WebhookHandler) receiveManual(w http.ResponseWriter, r *http.Request, payload notificationPayload) {
	if payload.DriveID == "" || payload.ItemID == "" {
		http.Error(w, "driveId and itemId are required", http.StatusBadRequest)
		return
	}

	tenantID := payload.TenantID
	if fromToken, ok := middleware.TenantFromContext(r.Context()); ok {
		tenantID = fromToken
	}

	ref := models.FileReference{
		DriveID:  payload.DriveID,
		ItemID:   payload.ItemID,
		FileName: payload.FileName,
		Uploader: payload.UploaderEmail,
		TenantID: tenantID,
	}

	res, err := h.processor.ProcessFile(r.Context(), ref)
	if err != nil {
		h.logger.Error("manual enrichment failed", zap.String("file", ref.Key()), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if res.Skipped {
		json.NewEncoder(w).Encode(map[string]string{"message": res.Reason})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"enrichedUrl": res.EnrichedURL})
}
