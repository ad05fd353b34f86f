package models

import (
	"time"
)

// Processing status values written to the remote store's metadata fields.
// They are the cross-process idempotency signal; the in-process gate only
// prevents duplicates within a single instance.
const (
	StatusProcessing   = "Processing"
	StatusCompleted    = "Completed"
	StatusManualReview = "ManualReview"
)

// Metadata field names on the remote store.
const (
	MetaStatus   = "EnrichmentStatus"
	MetaEnriched = "Enriched"
)

// ChangeNotification is one item of a delivered webhook batch. Transient;
// it is normalized into a FileReference and never persisted.
type ChangeNotification struct {
	SubscriptionID string        `json:"subscriptionId"`
	ChangeType     string        `json:"changeType"`
	Resource       string        `json:"resource"`
	ClientState    string        `json:"clientState,omitempty"`
	ResourceData   *ResourceData `json:"resourceData,omitempty"`
}

// ResourceData carries the optional item identifiers embedded in a notification.
type ResourceData struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	DriveID   string `json:"driveId,omitempty"`
	CreatedBy string `json:"createdBy,omitempty"`
}

// NotificationBatch is the POST body the delivery service sends.
type NotificationBatch struct {
	Value []ChangeNotification `json:"value"`
}

// FileReference identifies one file to enrich. DriveID and ItemID must both
// be non-empty before the pipeline runs; TenantID falls back to "default".
type FileReference struct {
	TenantID string `json:"tenantId"`
	DriveID  string `json:"driveId"`
	ItemID   string `json:"itemId"`
	FileName string `json:"fileName"`
	Uploader string `json:"uploader,omitempty"`
}

// Key returns the concurrency-gate key for this file.
func (f FileReference) Key() string {
	return f.DriveID + ":" + f.ItemID
}

// DriveItem is the remote store's view of a file or folder.
type DriveItem struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	WebURL         string    `json:"webUrl"`
	IsFolder       bool      `json:"-"`
	LastModified   time.Time `json:"lastModifiedDateTime"`
	CreatedByEmail string    `json:"-"`
}

// Section is one titled chunk of an enriched document.
type Section struct {
	ID      string `json:"id"`
	Heading string `json:"heading"`
	Summary string `json:"summary"`
	Body    string `json:"body"`
}

// ImageData is an embedded image extracted from the source document.
type ImageData struct {
	Name    string `json:"name"`
	Bytes   []byte `json:"-"`
	OcrText string `json:"ocrText,omitempty"`
}

// StructuredDocument is the section model produced by the AI enricher or the
// rule-based sectioner and consumed by the assembler and the indexer.
type StructuredDocument struct {
	Title    string      `json:"title"`
	Sections []Section   `json:"sections"`
	Images   []ImageData `json:"-"`
}

// EmbeddingRecord is one stored section vector, partitioned by tenant.
// Written once per section per successful run; only ever replaced by a full
// upsert keyed by ID.
type EmbeddingRecord struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenantId" db:"tenant_id"`
	FileID    string    `json:"fileId" db:"file_id"`
	FileURL   string    `json:"fileUrl" db:"file_url"`
	SectionID string    `json:"sectionId" db:"section_id"`
	Heading   string    `json:"heading" db:"heading"`
	Summary   string    `json:"summary" db:"summary"`
	Body      string    `json:"body" db:"body"`
	Embedding []float32 `json:"-" db:"embedding"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Subscription mirrors the remote store's webhook subscription resource.
// Never mutated in place; renewal replaces it with a fresh subscription.
type Subscription struct {
	ID              string    `json:"id"`
	Resource        string    `json:"resource"`
	ChangeType      string    `json:"changeType"`
	NotificationURL string    `json:"notificationUrl"`
	ExpirationTime  time.Time `json:"expirationDateTime"`
	ClientState     string    `json:"clientState,omitempty"`
}

// ManualEnrichRequest is the direct-invocation payload accepted alongside
// webhook batches, mainly for testing and reprocessing.
type ManualEnrichRequest struct {
	DriveID       string `json:"driveId"`
	ItemID        string `json:"itemId"`
	FileName      string `json:"fileName"`
	UploaderEmail string `json:"uploaderEmail,omitempty"`
	TenantID      string `json:"tenantId,omitempty"`
}

// QueryRequest is the read-path question payload.
type QueryRequest struct {
	Question string `json:"question"`
	TenantID string `json:"tenantId,omitempty"`
}

// QuerySource is one ranked section behind a synthesized answer.
type QuerySource struct {
	FileURL string  `json:"fileUrl"`
	Heading string  `json:"heading"`
	Score   float64 `json:"score"`
}

// QueryResponse is the synthesized answer plus its supporting sections.
type QueryResponse struct {
	Answer  string        `json:"answer"`
	Sources []QuerySource `json:"sources"`
}
