package core

import (
	"context"

	"github.com/kelechi-nwosu/enrichd/internal/models"
)

// DriveClient defines all operations against the remote file+metadata store.
// It abstracts the provider's REST API so higher layers never depend on a
// specific vendor.
type DriveClient interface {
	GetItem(ctx context.Context, driveID, itemID string) (*models.DriveItem, error)
	DownloadFile(ctx context.Context, driveID, itemID string) ([]byte, error)
	UploadFile(ctx context.Context, driveID, folder, name string, data []byte) (webURL string, err error)

	GetMetadata(ctx context.Context, driveID, itemID string) (map[string]string, error)
	SetMetadata(ctx context.Context, driveID, itemID string, fields map[string]string) error

	ListRecentItems(ctx context.Context, driveID string, max int) ([]models.DriveItem, error)
	ResolveDriveID(ctx context.Context, siteID, folderPath string) (string, error)

	CreateSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)
	DeleteSubscription(ctx context.Context, subscriptionID string) error
	ListSubscriptions(ctx context.Context) ([]models.Subscription, error)
}

// VectorStore persists and retrieves section embeddings, tenant-partitioned.
type VectorStore interface {
	Upsert(ctx context.Context, rec *models.EmbeddingRecord) error
	ListByTenant(ctx context.Context, tenantID string, max int) ([]models.EmbeddingRecord, error)
	Close() error
}

// ObjectClient defines interactions with S3 or any object storage. Used as
// the side-channel for failed AI responses and enriched-copy archival.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	DeleteFile(ctx context.Context, bucket, key string) error
}

// ImageTextExtractor is the OCR hook. The default implementation returns
// empty text; a real OCR backend can be plugged in without touching the
// pipeline.
type ImageTextExtractor interface {
	ExtractText(ctx context.Context, img models.ImageData) (string, error)
}

// NoopImageTextExtractor satisfies ImageTextExtractor without doing OCR.
type NoopImageTextExtractor struct{}

func (NoopImageTextExtractor) ExtractText(ctx context.Context, img models.ImageData) (string, error) {
	return "", nil
}
