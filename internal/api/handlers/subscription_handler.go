package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kelechi-nwosu/enrichd/internal/models"
)

type subscriptionCreator interface {
	Create(ctx context.Context, resource string) (*models.Subscription, error)
}

type driveResolver interface {
	ResolveDriveID(ctx context.Context, siteID, folderPath string) (string, error)
}

// SubscriptionHandler provisions change-notification subscriptions on demand.
type SubscriptionHandler struct {
	manager        subscriptionCreator
	resolver       driveResolver
	renewThreshold time.Duration
	logger         *zap.Logger

	defaultSiteID  string
	defaultDriveID string
}

type SubscriptionHandlerConfig struct {
	RenewThreshold time.Duration
	SiteID         string
	DriveID        string
}

func NewSubscriptionHandler(manager subscriptionCreator, resolver driveResolver, cfg SubscriptionHandlerConfig, logger *zap.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionHandler{
		manager:        manager,
		resolver:       resolver,
		renewThreshold: cfg.RenewThreshold,
		logger:         logger,
		defaultSiteID:  cfg.SiteID,
		defaultDriveID: cfg.DriveID,
	}
}

type subscriptionRequest struct {
	Resource         string `json:"resource"`
	SiteID           string `json:"siteId"`
	DriveID          string `json:"driveId"`
	SourceFolderPath string `json:"sourceFolderPath"`
}

// Create registers a subscription. The target can be named three ways, in
// precedence order: an explicit resource path, a drive id, or a site id plus
// folder path that gets resolved to a drive first.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	if req.SiteID == "" {
		req.SiteID = r.URL.Query().Get("siteId")
	}
	if req.DriveID == "" {
		req.DriveID = r.URL.Query().Get("driveId")
	}

	resource, err := h.resolveResource(r.Context(), req)
	if err != nil {
		h.logger.Error("could not resolve subscription target", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": err.Error(),
			"hint":  "provide resource, driveId, or siteId (optionally with sourceFolderPath)",
		})
		return
	}

	sub, err := h.manager.Create(r.Context(), resource)
	if err != nil {
		h.logger.Error("subscription create failed", zap.String("resource", resource), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{
			"error": err.Error(),
			"hint":  "check that the notification URL is publicly reachable and the store accepted the validation handshake",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":         true,
		"subscriptionId":  sub.ID,
		"resource":        sub.Resource,
		"expiration":      sub.ExpirationTime.Format(time.RFC3339),
		"notificationUrl": sub.NotificationURL,
		"renewBefore":     sub.ExpirationTime.Add(-h.renewThreshold).Format(time.RFC3339),
	})
}

func (h *SubscriptionHandler) resolveResource(ctx context.Context, req subscriptionRequest) (string, error) {
	if req.Resource != "" {
		return req.Resource, nil
	}

	driveID := req.DriveID
	if driveID == "" {
		driveID = h.defaultDriveID
	}
	if driveID == "" {
		siteID := req.SiteID
		if siteID == "" {
			siteID = h.defaultSiteID
		}
		if siteID == "" {
			return "", fmt.Errorf("no subscription target given")
		}
		resolved, err := h.resolver.ResolveDriveID(ctx, siteID, req.SourceFolderPath)
		if err != nil {
			return "", fmt.Errorf("resolve drive for site %s: %w", siteID, err)
		}
		driveID = resolved
	}
	return fmt.Sprintf("drives/%s/root", driveID), nil
}
