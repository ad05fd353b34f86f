package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kelechi-nwosu/enrichd/internal/core"
	"github.com/kelechi-nwosu/enrichd/internal/core/codec"
	"github.com/kelechi-nwosu/enrichd/internal/core/enrich"
	"github.com/kelechi-nwosu/enrichd/internal/core/locks"
	"github.com/kelechi-nwosu/enrichd/internal/core/retry"
	"github.com/kelechi-nwosu/enrichd/internal/models"
)

const defaultTenant = "default"

// maxResolveCandidates bounds the drive-root listing used when a
// notification arrives without an item id.
const maxResolveCandidates = 10

// Consumer-side views of the enrichment stages, narrow enough to fake in
// tests.
type sectionEnricher interface {
	Enrich(ctx context.Context, rawText string, imageOcrTexts []string, correlationID string) (*enrich.ParseOutcome, error)
}

type documentAssembler interface {
	Assemble(doc *models.StructuredDocument) ([]byte, error)
}

type sectionIndexer interface {
	IndexSections(ctx context.Context, ref models.FileReference, fileURL string, doc *models.StructuredDocument) int
}

// NotificationProcessor normalizes change notifications and drives the
// per-file enrichment pipeline behind the idempotency gate.
type NotificationProcessor struct {
	drive     core.DriveClient
	codec     codec.Codec
	enricher  sectionEnricher // nil runs the rule-based sectioner instead
	assembler documentAssembler
	indexer   sectionIndexer // nil skips embedding storage
	ocr       core.ImageTextExtractor
	archive   core.ObjectClient // optional enriched-copy archival
	gates     *locks.Registry
	retry     retry.Policy
	logger    *zap.Logger

	archiveBucket string
	targetFolder  string
	clientState   string
}

type ProcessorConfig struct {
	ArchiveBucket string
	TargetFolder  string
	ClientState   string
}

func NewNotificationProcessor(
	drive core.DriveClient,
	cdc codec.Codec,
	enricher sectionEnricher,
	assembler documentAssembler,
	indexer sectionIndexer,
	ocr core.ImageTextExtractor,
	archive core.ObjectClient,
	retryPolicy retry.Policy,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ocr == nil {
		ocr = core.NoopImageTextExtractor{}
	}
	if cfg.TargetFolder == "" {
		cfg.TargetFolder = "Enriched"
	}
	return &NotificationProcessor{
		drive:         drive,
		codec:         cdc,
		enricher:      enricher,
		assembler:     assembler,
		indexer:       indexer,
		ocr:           ocr,
		archive:       archive,
		gates:         locks.NewRegistry(),
		retry:         retryPolicy,
		logger:        logger,
		archiveBucket: cfg.ArchiveBucket,
		targetFolder:  cfg.TargetFolder,
		clientState:   cfg.ClientState,
	}
}

// PipelineResult is the per-file outcome. Skipped results are successful
// no-ops (busy gate, already enriched, nothing to resolve).
type PipelineResult struct {
	EnrichedURL string
	Skipped     bool
	Reason      string
}

// ProcessBatch handles one delivered notification batch sequentially and
// returns the number of files actually enriched. An item failure never
// aborts its siblings.
func (p *NotificationProcessor) ProcessBatch(ctx context.Context, batch models.NotificationBatch) int {
	processed := 0
	for i, n := range batch.Value {
		ref := p.resolve(ctx, n)
		if ref == nil {
			continue
		}

		res, err := p.ProcessFile(ctx, *ref)
		if err != nil {
			p.logger.Error("notification item failed",
				zap.Int("item", i),
				zap.String("file", ref.Key()),
				zap.Error(err))
			continue
		}
		if res.Skipped {
			p.logger.Info("notification item skipped",
				zap.String("file", ref.Key()),
				zap.String("reason", res.Reason))
			continue
		}
		processed++
	}
	return processed
}

// resolve normalizes one notification into a FileReference, querying the
// drive when the item id is missing. A nil return means skip: there is
// nothing meaningful to retry against.
func (p *NotificationProcessor) resolve(ctx context.Context, n models.ChangeNotification) *models.FileReference {
	if n.ChangeType != "updated" {
		p.logger.Debug("ignoring notification", zap.String("changeType", n.ChangeType))
		return nil
	}
	if p.clientState != "" && n.ClientState != "" && n.ClientState != p.clientState {
		p.logger.Warn("client state mismatch, dropping notification",
			zap.String("subscription", n.SubscriptionID))
		return nil
	}

	ref := &models.FileReference{TenantID: tenantFromResource(n.Resource)}
	if n.ResourceData != nil {
		ref.DriveID = n.ResourceData.DriveID
		ref.ItemID = n.ResourceData.ID
		ref.FileName = n.ResourceData.Name
		ref.Uploader = n.ResourceData.CreatedBy
	}
	if ref.DriveID == "" {
		ref.DriveID = driveIDFromResource(n.Resource)
	}
	if ref.DriveID == "" {
		p.logger.Warn("notification has no resource data and no resolvable resource path",
			zap.String("resource", n.Resource))
		return nil
	}

	if ref.ItemID == "" {
		if !p.resolveItem(ctx, ref) {
			return nil
		}
	}
	return ref
}

// resolveItem scans recently-changed drive-root items for the first
// unprocessed file, most recently modified first.
func (p *NotificationProcessor) resolveItem(ctx context.Context, ref *models.FileReference) bool {
	var items []models.DriveItem
	err := p.retry.Do(ctx, "list-recent-items", func(ctx context.Context) error {
		var listErr error
		items, listErr = p.drive.ListRecentItems(ctx, ref.DriveID, maxResolveCandidates)
		return listErr
	})
	if err != nil {
		p.logger.Warn("could not list recent items", zap.String("drive", ref.DriveID), zap.Error(err))
		return false
	}

	for _, item := range items {
		if item.IsFolder {
			continue
		}
		meta, err := p.drive.GetMetadata(ctx, ref.DriveID, item.ID)
		if err != nil {
			p.logger.Warn("metadata read failed during resolution, skipping candidate",
				zap.String("item", item.ID), zap.Error(err))
			continue
		}
		if isTrue(meta[models.MetaEnriched]) {
			continue
		}
		ref.ItemID = item.ID
		ref.FileName = item.Name
		if ref.Uploader == "" {
			ref.Uploader = item.CreatedByEmail
		}
		return true
	}

	p.logger.Info("no unprocessed candidate found", zap.String("drive", ref.DriveID))
	return false
}

// ProcessFile runs the full enrichment pipeline for one file. The local gate
// and the remote status metadata together form the idempotency gate; the
// local half is best-effort and single-process only.
func (p *NotificationProcessor) ProcessFile(ctx context.Context, ref models.FileReference) (*PipelineResult, error) {
	if ref.DriveID == "" || ref.ItemID == "" {
		return nil, errors.New("driveId and itemId are required")
	}
	if ref.TenantID == "" {
		ref.TenantID = defaultTenant
	}

	handle, ok := p.gates.TryAcquire(ref.Key())
	if !ok {
		return &PipelineResult{Skipped: true, Reason: "another invocation is processing this file"}, nil
	}
	defer handle.Release()

	// Remote state is checked only after the local gate is held; checking
	// before would give a false sense of safety.
	var meta map[string]string
	err := p.retry.Do(ctx, "get-metadata", func(ctx context.Context) error {
		var metaErr error
		meta, metaErr = p.drive.GetMetadata(ctx, ref.DriveID, ref.ItemID)
		return metaErr
	})
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if isTrue(meta[models.MetaEnriched]) {
		return &PipelineResult{Skipped: true, Reason: "already enriched"}, nil
	}
	if meta[models.MetaStatus] == models.StatusProcessing {
		return &PipelineResult{Skipped: true, Reason: "marked processing by another instance"}, nil
	}

	p.setMetadata(ctx, ref, map[string]string{models.MetaStatus: models.StatusProcessing})

	url, err := p.runPipeline(ctx, ref)
	if err != nil {
		var vErr *enrich.ValidationError
		if errors.As(err, &vErr) {
			p.setMetadata(ctx, ref, map[string]string{models.MetaStatus: models.StatusManualReview})
		}
		return nil, err
	}

	p.setMetadata(ctx, ref, map[string]string{
		models.MetaStatus:   models.StatusCompleted,
		models.MetaEnriched: "true",
	})
	return &PipelineResult{EnrichedURL: url}, nil
}

// runPipeline is the critical section: download, section, assemble, upload,
// index.
func (p *NotificationProcessor) runPipeline(ctx context.Context, ref models.FileReference) (string, error) {
	var data []byte
	err := p.retry.Do(ctx, "download-file", func(ctx context.Context) error {
		var dlErr error
		data, dlErr = p.drive.DownloadFile(ctx, ref.DriveID, ref.ItemID)
		return dlErr
	})
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}

	text, images, err := p.codec.Parse(data, ref.FileName)
	if err != nil {
		return "", fmt.Errorf("parse document: %w", err)
	}

	ocrTexts := p.extractImageTexts(ctx, images)

	doc, err := p.structure(ctx, ref, text, ocrTexts)
	if err != nil {
		return "", err
	}
	doc.Images = images
	if doc.Title == "" {
		doc.Title = titleFromFileName(ref.FileName)
	}

	enriched, err := p.assembler.Assemble(doc)
	if err != nil {
		return "", err
	}

	outName := enrichedName(ref.FileName)
	var webURL string
	err = p.retry.Do(ctx, "upload-file", func(ctx context.Context) error {
		var upErr error
		webURL, upErr = p.drive.UploadFile(ctx, ref.DriveID, p.targetFolder, outName, enriched)
		return upErr
	})
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	p.archiveCopy(ctx, ref, outName, enriched)

	indexed := 0
	if p.indexer != nil {
		indexed = p.indexer.IndexSections(ctx, ref, webURL, doc)
	}
	p.logger.Info("file enriched",
		zap.String("file", ref.Key()),
		zap.String("tenant", ref.TenantID),
		zap.Int("sections", len(doc.Sections)),
		zap.Int("indexed", indexed))

	return webURL, nil
}

// structure produces the section model: AI-enriched when a provider is
// configured, rule-based otherwise or for empty text.
func (p *NotificationProcessor) structure(ctx context.Context, ref models.FileReference, text string, ocrTexts []string) (*models.StructuredDocument, error) {
	if p.enricher == nil || strings.TrimSpace(text) == "" {
		return enrich.SectionText(text), nil
	}

	correlationID := ref.DriveID + "-" + ref.ItemID + "-" + uuid.NewString()[:8]
	out, err := p.enricher.Enrich(ctx, text, ocrTexts, correlationID)
	if err != nil {
		return nil, err
	}
	return out.Doc, nil
}

func (p *NotificationProcessor) extractImageTexts(ctx context.Context, images []models.ImageData) []string {
	if len(images) == 0 {
		return nil
	}
	texts := make([]string, 0, len(images))
	for _, img := range images {
		ocr, err := p.ocr.ExtractText(ctx, img)
		if err != nil {
			p.logger.Debug("image text extraction failed", zap.String("image", img.Name), zap.Error(err))
			continue
		}
		if ocr != "" {
			texts = append(texts, ocr)
		}
	}
	return texts
}

// setMetadata writes metadata best-effort: a failed write is logged and must
// never abort processing.
func (p *NotificationProcessor) setMetadata(ctx context.Context, ref models.FileReference, fields map[string]string) {
	err := p.retry.Do(ctx, "set-metadata", func(ctx context.Context) error {
		return p.drive.SetMetadata(ctx, ref.DriveID, ref.ItemID, fields)
	})
	if err != nil {
		p.logger.Warn("metadata write failed, continuing",
			zap.String("file", ref.Key()),
			zap.Any("fields", fields),
			zap.Error(err))
	}
}

// archiveCopy stores the enriched bytes in object storage best-effort.
func (p *NotificationProcessor) archiveCopy(ctx context.Context, ref models.FileReference, name string, data []byte) {
	if p.archive == nil || p.archiveBucket == "" {
		return
	}
	key := fmt.Sprintf("archive/%s/%s/%s", ref.TenantID, ref.ItemID, name)
	if _, err := p.archive.UploadFile(ctx, p.archiveBucket, key, data,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document"); err != nil {
		p.logger.Warn("archival upload failed, continuing", zap.String("key", key), zap.Error(err))
	}
}

// tenantFromResource pulls a tenant out of the site identifier embedded in a
// resource path like
// "sites/contoso.example.com,9a3b...,77c1.../drives/b!abc/root". The site id
// format is provider-specific; the middle comma segment is a best-effort
// heuristic, with "default" as the fallback.
func tenantFromResource(resource string) string {
	const marker = "sites/"
	idx := strings.Index(resource, marker)
	if idx < 0 {
		return defaultTenant
	}
	site := resource[idx+len(marker):]
	if end := strings.Index(site, "/"); end >= 0 {
		site = site[:end]
	}
	parts := strings.Split(site, ",")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	return defaultTenant
}

func driveIDFromResource(resource string) string {
	const marker = "drives/"
	idx := strings.Index(resource, marker)
	if idx < 0 {
		return ""
	}
	rest := resource[idx+len(marker):]
	if end := strings.Index(rest, "/"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

func titleFromFileName(fileName string) string {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return strings.TrimSpace(base)
}

func enrichedName(fileName string) string {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	if base == "" {
		base = "document"
	}
	return base + "-enriched.docx"
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true")
}
