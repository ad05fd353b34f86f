package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/kelechi-nwosu/enrichd/internal/core/codec"
	"github.com/kelechi-nwosu/enrichd/internal/core/enrich"
	"github.com/kelechi-nwosu/enrichd/internal/models"
)

// fakeDrive is an in-memory core.DriveClient.
type fakeDrive struct {
	mu sync.Mutex

	items    map[string]models.DriveItem // key driveID:itemID
	contents map[string][]byte
	metadata map[string]map[string]string
	recent   []models.DriveItem
	subs     []models.Subscription
	nextSub  int

	uploads       []string
	downloadErr   error
	metadataErr   error
	setMetaErr    error
	uploadErr     error
	listSubsErr   error
	createSubErr  error
	createSubHook func() error
	deleteSubErr  error
	deletedSubs   []string
	downloadCalls int
	uploadCalls   int
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		items:    make(map[string]models.DriveItem),
		contents: make(map[string][]byte),
		metadata: make(map[string]map[string]string),
	}
}

func key(driveID, itemID string) string { return driveID + ":" + itemID }

func (f *fakeDrive) GetItem(ctx context.Context, driveID, itemID string) (*models.DriveItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[key(driveID, itemID)]
	if !ok {
		return nil, errors.New("item not found")
	}
	return &item, nil
}

func (f *fakeDrive) DownloadFile(ctx context.Context, driveID, itemID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadCalls++
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	data, ok := f.contents[key(driveID, itemID)]
	if !ok {
		return nil, errors.New("no content")
	}
	return data, nil
}

func (f *fakeDrive) UploadFile(ctx context.Context, driveID, folder, name string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, folder+"/"+name)
	return "https://store.example.com/" + driveID + "/" + folder + "/" + name, nil
}

func (f *fakeDrive) GetMetadata(ctx context.Context, driveID, itemID string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.metadataErr != nil {
		return nil, f.metadataErr
	}
	meta := f.metadata[key(driveID, itemID)]
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out, nil
}

func (f *fakeDrive) SetMetadata(ctx context.Context, driveID, itemID string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setMetaErr != nil {
		return f.setMetaErr
	}
	k := key(driveID, itemID)
	if f.metadata[k] == nil {
		f.metadata[k] = make(map[string]string)
	}
	for name, v := range fields {
		f.metadata[k][name] = v
	}
	return nil
}

func (f *fakeDrive) ListRecentItems(ctx context.Context, driveID string, max int) ([]models.DriveItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recent) > max {
		return f.recent[:max], nil
	}
	return f.recent, nil
}

func (f *fakeDrive) ResolveDriveID(ctx context.Context, siteID, folderPath string) (string, error) {
	return "resolved-drive", nil
}

func (f *fakeDrive) CreateSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createSubErr != nil {
		return nil, f.createSubErr
	}
	if f.createSubHook != nil {
		if err := f.createSubHook(); err != nil {
			return nil, err
		}
	}
	f.nextSub++
	created := *sub
	created.ID = "sub-" + string(rune('0'+f.nextSub))
	f.subs = append(f.subs, created)
	return &created, nil
}

func (f *fakeDrive) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteSubErr != nil {
		return f.deleteSubErr
	}
	f.deletedSubs = append(f.deletedSubs, subscriptionID)
	return nil
}

func (f *fakeDrive) ListSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listSubsErr != nil {
		return nil, f.listSubsErr
	}
	return append([]models.Subscription(nil), f.subs...), nil
}

// fakeCodec returns fixed text and renders trivially.
type fakeCodec struct {
	text   string
	images []models.ImageData
	err    error
}

func (f *fakeCodec) Parse(data []byte, fileName string) (string, []models.ImageData, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	if f.text != "" {
		return f.text, f.images, nil
	}
	return string(data), f.images, nil
}

func (f *fakeCodec) Build(blocks []codec.Block) ([]byte, error) {
	return []byte("built"), nil
}

// fakeAssembler satisfies documentAssembler without building real bytes.
type fakeAssembler struct {
	err   error
	calls int
}

func (f *fakeAssembler) Assemble(doc *models.StructuredDocument) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("assembled:" + doc.Title), nil
}

// fakeEnricher satisfies sectionEnricher.
type fakeEnricher struct {
	doc   *models.StructuredDocument
	err   error
	calls int
}

func (f *fakeEnricher) Enrich(ctx context.Context, rawText string, ocr []string, correlationID string) (*enrich.ParseOutcome, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &enrich.ParseOutcome{Doc: f.doc, Attempts: 1}, nil
}

// fakeIndexer satisfies sectionIndexer.
type fakeIndexer struct {
	calls int
	last  *models.StructuredDocument
}

func (f *fakeIndexer) IndexSections(ctx context.Context, ref models.FileReference, fileURL string, doc *models.StructuredDocument) int {
	f.calls++
	f.last = doc
	return len(doc.Sections)
}

// fakeVectorStore is the services-side core.VectorStore stub.
type fakeVectorStore struct {
	records []models.EmbeddingRecord
	err     error
	lastMax int
}

func (f *fakeVectorStore) Upsert(ctx context.Context, rec *models.EmbeddingRecord) error {
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeVectorStore) ListByTenant(ctx context.Context, tenantID string, max int) ([]models.EmbeddingRecord, error) {
	f.lastMax = max
	if f.err != nil {
		return nil, f.err
	}
	var out []models.EmbeddingRecord
	for _, r := range f.records {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeVectorStore) Close() error { return nil }

// fakeEmbedder returns a fixed vector per call.
type fakeEmbedder struct {
	vec         []float32
	err         error
	rateLimited int // initial calls answered with a 429
	noVecs      bool
	calls       int
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.rateLimited > 0 {
		f.rateLimited--
		return nil, &googleapi.Error{Code: 429, Message: "quota"}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.noVecs {
		return [][]float32{}, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

// fakeLLM records prompts and returns a canned answer.
type fakeLLM struct {
	answer string
	err    error
	calls  int
	lastU  string
}

func (f *fakeLLM) Generate(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error) {
	f.calls++
	f.lastU = user
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func testSubscription(id string, expires time.Time) models.Subscription {
	return models.Subscription{
		ID:              id,
		Resource:        "drives/d1/root",
		ChangeType:      "updated",
		NotificationURL: "https://hook.example.com/api/notifications",
		ExpirationTime:  expires,
	}
}
