// Package drive implements core.DriveClient against the provider's REST API
// (drives, items, metadata list fields, webhook subscriptions).
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kelechi-nwosu/enrichd/internal/core"
	"github.com/kelechi-nwosu/enrichd/internal/core/retry"
	"github.com/kelechi-nwosu/enrichd/internal/models"
)

const (
	// requestsPerSecond proactively throttles calls below the provider's
	// documented throttling threshold.
	requestsPerSecond = 4
	defaultTimeout    = 2 * time.Minute
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger,
	}
}

var _ core.DriveClient = (*Client)(nil)

// statusError carries the remote status code so callers can classify it.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("drive api: status %d: %s", e.code, e.body)
}

// do performs one authenticated request. Throttling errors and 5xx responses
// come back wrapped as transient so the retry policy picks them up.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 400 {
		sErr := &statusError{code: resp.StatusCode, body: truncate(string(respBody), 300)}
		if retry.TransientStatus(resp.StatusCode) {
			return nil, retry.Transient(sErr)
		}
		return nil, sErr
	}
	return respBody, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	data, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

type itemPayload struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	WebURL       string    `json:"webUrl"`
	LastModified time.Time `json:"lastModifiedDateTime"`
	Folder       *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder,omitempty"`
	CreatedBy *struct {
		User struct {
			Email       string `json:"email"`
			DisplayName string `json:"displayName"`
		} `json:"user"`
	} `json:"createdBy,omitempty"`
}

func (p itemPayload) toModel() models.DriveItem {
	item := models.DriveItem{
		ID:           p.ID,
		Name:         p.Name,
		WebURL:       p.WebURL,
		IsFolder:     p.Folder != nil,
		LastModified: p.LastModified,
	}
	if p.CreatedBy != nil {
		item.CreatedByEmail = p.CreatedBy.User.Email
	}
	return item
}

func (c *Client) GetItem(ctx context.Context, driveID, itemID string) (*models.DriveItem, error) {
	var p itemPayload
	path := fmt.Sprintf("/drives/%s/items/%s", url.PathEscape(driveID), url.PathEscape(itemID))
	if err := c.getJSON(ctx, path, &p); err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	item := p.toModel()
	return &item, nil
}

func (c *Client) DownloadFile(ctx context.Context, driveID, itemID string) ([]byte, error) {
	path := fmt.Sprintf("/drives/%s/items/%s/content", url.PathEscape(driveID), url.PathEscape(itemID))
	data, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	return data, nil
}

func (c *Client) UploadFile(ctx context.Context, driveID, folder, name string, data []byte) (string, error) {
	path := fmt.Sprintf("/drives/%s/root:/%s/%s:/content",
		url.PathEscape(driveID), url.PathEscape(folder), url.PathEscape(name))
	respBody, err := c.do(ctx, http.MethodPut, path, bytes.NewReader(data),
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}

	var p itemPayload
	if err := json.Unmarshal(respBody, &p); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	return p.WebURL, nil
}

func (c *Client) GetMetadata(ctx context.Context, driveID, itemID string) (map[string]string, error) {
	var resp struct {
		Fields map[string]any `json:"fields"`
	}
	path := fmt.Sprintf("/drives/%s/items/%s/listItem?expand=fields",
		url.PathEscape(driveID), url.PathEscape(itemID))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("get metadata: %w", err)
	}

	fields := make(map[string]string, len(resp.Fields))
	for k, v := range resp.Fields {
		fields[k] = fmt.Sprint(v)
	}
	return fields, nil
}

func (c *Client) SetMetadata(ctx context.Context, driveID, itemID string, fields map[string]string) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	path := fmt.Sprintf("/drives/%s/items/%s/listItem/fields",
		url.PathEscape(driveID), url.PathEscape(itemID))
	if _, err := c.do(ctx, http.MethodPatch, path, bytes.NewReader(body), "application/json"); err != nil {
		return fmt.Errorf("set metadata: %w", err)
	}
	return nil
}

// ListRecentItems returns up to max children of the drive root, most recently
// modified first.
func (c *Client) ListRecentItems(ctx context.Context, driveID string, max int) ([]models.DriveItem, error) {
	var resp struct {
		Value []itemPayload `json:"value"`
	}
	path := fmt.Sprintf("/drives/%s/root/children?$top=%d", url.PathEscape(driveID), max)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("list recent items: %w", err)
	}

	items := make([]models.DriveItem, 0, len(resp.Value))
	for _, p := range resp.Value {
		items = append(items, p.toModel())
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].LastModified.After(items[j].LastModified)
	})
	return items, nil
}

// ResolveDriveID looks up the drive backing folderPath on a site. With an
// empty folderPath the site's first (default) document library wins.
func (c *Client) ResolveDriveID(ctx context.Context, siteID, folderPath string) (string, error) {
	var resp struct {
		Value []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"value"`
	}
	path := fmt.Sprintf("/sites/%s/drives", url.PathEscape(siteID))
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return "", fmt.Errorf("resolve drive: %w", err)
	}
	if len(resp.Value) == 0 {
		return "", fmt.Errorf("no drives found for site %s", siteID)
	}

	if folderPath != "" {
		want := strings.Trim(folderPath, "/")
		for _, d := range resp.Value {
			if strings.EqualFold(d.Name, want) {
				return d.ID, nil
			}
		}
	}
	return resp.Value[0].ID, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
