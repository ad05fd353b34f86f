package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kelechi-nwosu/enrichd/internal/models"
)

// CreateSubscription registers a webhook subscription with the remote store.
// The provider enforces a hard maximum lifetime; extension past it is not
// supported, which is why renewal is create-new-then-delete-old.
func (c *Client) CreateSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("marshal subscription: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/subscriptions", bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	var created models.Subscription
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("decode subscription response: %w", err)
	}
	return &created, nil
}

func (c *Client) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	path := "/subscriptions/" + url.PathEscape(subscriptionID)
	if _, err := c.do(ctx, http.MethodDelete, path, nil, ""); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

func (c *Client) ListSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	var resp struct {
		Value []models.Subscription `json:"value"`
	}
	if err := c.getJSON(ctx, "/subscriptions", &resp); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return resp.Value, nil
}
