package receipt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"receipto/domain"
	"receipto/entities"
	"receipto/pkg/queue"
)

type fakeBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: make(map[string][]byte)}
}

func (b *fakeBlob) Put(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *fakeBlob) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

func (b *fakeBlob) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

type fakeExtractor struct {
	result *domain.ExtractionResult
	err    error
	calls  int
}

func (e *fakeExtractor) Extract(context.Context, [][]byte, string) (*domain.ExtractionResult, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

type fakeArchive struct {
	cid string
	err error
}

func (a *fakeArchive) Save(context.Context, []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return a.cid, nil
}

type fakeOCR struct {
	text string
	err  error
}

func (o *fakeOCR) Run(context.Context, []byte) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	return o.text, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&entities.User{},
		&entities.Receipt{},
		&entities.ReceiptImage{},
		&entities.PointLog{},
		&entities.PointClaim{},
	))
	require.NoError(t, db.Create(&entities.User{Address: "0xabc", Username: "tester"}).Error)
	return db
}

type testEnv struct {
	db        *gorm.DB
	svc       ReceiptService
	blob      *fakeBlob
	extractor *fakeExtractor
	archive   *fakeArchive
	ocr       *fakeOCR
}

func newTestEnv(t *testing.T, maxAttempts int) *testEnv {
	t.Helper()
	env := &testEnv{
		db:        newTestDB(t),
		blob:      newFakeBlob(),
		extractor: &fakeExtractor{result: goodExtraction()},
		archive:   &fakeArchive{cid: "bafy-test"},
		ocr:       &fakeOCR{text: "TOTAL 12.50"},
	}

	dispatcher := queue.NewDispatcher()
	jobs := queue.NewSyncQueue(dispatcher, maxAttempts)
	env.svc = NewReceiptService(
		env.db,
		NewReceiptRepository(env.db),
		env.blob,
		env.extractor,
		env.archive,
		env.ocr,
		jobs,
		zap.NewNop(),
	)
	env.svc.RegisterJobHandlers(dispatcher)
	return env
}

func goodExtraction() *domain.ExtractionResult {
	merchant := "Corner Grocery"
	issuedAt := time.Now().Add(-24 * time.Hour)
	country := "DE"
	currency := "EUR"
	total := 12.50
	payment := "card"
	return &domain.ExtractionResult{
		MerchantName:  &merchant,
		IssuedAt:      &issuedAt,
		CountryCode:   &country,
		Currency:      &currency,
		TotalAmount:   &total,
		PaymentMethod: &payment,
		QualityRate:   80,
	}
}

func testImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 4), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func seedPendingReceipt(t *testing.T, env *testEnv) (*entities.Receipt, *entities.ReceiptImage) {
	t.Helper()
	receipt := &entities.Receipt{
		ID:          ksuid.New().String(),
		UserAddress: "0xabc",
		Status:      domain.ReceiptStatusPending,
	}
	img := &entities.ReceiptImage{
		ID:        uuid.New(),
		ReceiptID: receipt.ID,
	}
	require.NoError(t, env.db.Create(receipt).Error)
	require.NoError(t, env.db.Create(img).Error)
	require.NoError(t, env.blob.Put(context.Background(), img.ID.String(), []byte("jpeg-bytes"), "image/jpeg"))
	return receipt, img
}

func TestSubmitReceiptFullPipeline(t *testing.T) {
	env := newTestEnv(t, 1)

	err := env.svc.SubmitReceipt(context.Background(), "0xabc", testImage(t), "DE")
	require.NoError(t, err)

	var receipt entities.Receipt
	require.NoError(t, env.db.Preload("Images").First(&receipt, "user_address = ?", "0xabc").Error)
	assert.Equal(t, domain.ReceiptStatusClaimable, receipt.Status)
	assert.Equal(t, 80, receipt.AssignedPoint)
	assert.Equal(t, 80, receipt.QualityRate)
	require.NotNil(t, receipt.MerchantName)
	assert.Equal(t, "Corner Grocery", *receipt.MerchantName)
	assert.NotNil(t, receipt.AnalysisCompletedAt)
	assert.Nil(t, receipt.AnalysisError)

	require.Len(t, receipt.Images, 1)
	img := receipt.Images[0]

	stored, err := env.blob.Get(context.Background(), img.ID.String())
	require.NoError(t, err)
	assert.NotEmpty(t, stored)

	var persisted entities.ReceiptImage
	require.NoError(t, env.db.First(&persisted, "id = ?", img.ID).Error)
	require.NotNil(t, persisted.ArchivePieceCID)
	assert.Equal(t, "bafy-test", *persisted.ArchivePieceCID)
	require.NotNil(t, persisted.OcrResult)
	assert.Equal(t, "TOTAL 12.50", *persisted.OcrResult)
}

func TestSubmitReceiptUndecodableImage(t *testing.T) {
	env := newTestEnv(t, 1)

	err := env.svc.SubmitReceipt(context.Background(), "0xabc", []byte("not an image"), "")
	require.ErrorIs(t, err, domain.ErrImageUndecodable)

	var count int64
	require.NoError(t, env.db.Model(&entities.Receipt{}).Count(&count).Error)
	assert.Zero(t, count)
}

type failingCreateRepo struct {
	ReceiptRepository
}

func (failingCreateRepo) CreateReceiptWithImage(context.Context, *entities.Receipt, *entities.ReceiptImage) error {
	return errors.New("insert failed")
}

func TestSubmitReceiptCleansUpBlobWhenInsertFails(t *testing.T) {
	env := newTestEnv(t, 1)
	svc := NewReceiptService(
		env.db,
		failingCreateRepo{NewReceiptRepository(env.db)},
		env.blob,
		env.extractor,
		env.archive,
		env.ocr,
		queue.NewSyncQueue(queue.NewDispatcher(), 1),
		zap.NewNop(),
	)

	err := svc.SubmitReceipt(context.Background(), "0xabc", testImage(t), "")
	require.Error(t, err)

	// The uploaded object has no row pointing at it and must not linger.
	env.blob.mu.Lock()
	defer env.blob.mu.Unlock()
	assert.Empty(t, env.blob.objects)
}

func TestProcessAnalysisLowQualityRejected(t *testing.T) {
	env := newTestEnv(t, 1)
	env.extractor.result.QualityRate = 10
	receipt, _ := seedPendingReceipt(t, env)

	require.NoError(t, env.svc.ProcessAnalysis(context.Background(), receipt.ID, ""))

	var got entities.Receipt
	require.NoError(t, env.db.First(&got, "id = ?", receipt.ID).Error)
	assert.Equal(t, domain.ReceiptStatusRejected, got.Status)
	assert.Zero(t, got.AssignedPoint)
	assert.Equal(t, 10, got.QualityRate)
	// Rejection still keeps what the model managed to read.
	require.NotNil(t, got.MerchantName)
}

func TestProcessAnalysisMissingFieldsRejected(t *testing.T) {
	env := newTestEnv(t, 1)
	env.extractor.result.MerchantName = nil
	receipt, _ := seedPendingReceipt(t, env)

	require.NoError(t, env.svc.ProcessAnalysis(context.Background(), receipt.ID, ""))

	var got entities.Receipt
	require.NoError(t, env.db.First(&got, "id = ?", receipt.ID).Error)
	assert.Equal(t, domain.ReceiptStatusRejected, got.Status)
}

func TestProcessAnalysisFutureDateRejected(t *testing.T) {
	env := newTestEnv(t, 1)
	future := time.Now().Add(domain.MaxIssuedAtSkew + time.Hour)
	env.extractor.result.IssuedAt = &future
	receipt, _ := seedPendingReceipt(t, env)

	require.NoError(t, env.svc.ProcessAnalysis(context.Background(), receipt.ID, ""))

	var got entities.Receipt
	require.NoError(t, env.db.First(&got, "id = ?", receipt.ID).Error)
	assert.Equal(t, domain.ReceiptStatusRejected, got.Status)
}

func TestProcessAnalysisQualityClamped(t *testing.T) {
	env := newTestEnv(t, 1)
	env.extractor.result.QualityRate = 250
	receipt, _ := seedPendingReceipt(t, env)

	require.NoError(t, env.svc.ProcessAnalysis(context.Background(), receipt.ID, ""))

	var got entities.Receipt
	require.NoError(t, env.db.First(&got, "id = ?", receipt.ID).Error)
	assert.Equal(t, 100, got.QualityRate)
	assert.Equal(t, domain.BasePointPerReceipt, got.AssignedPoint)
}

func TestProcessAnalysisRedeliveryIsNoop(t *testing.T) {
	env := newTestEnv(t, 1)
	receipt, _ := seedPendingReceipt(t, env)

	require.NoError(t, env.svc.ProcessAnalysis(context.Background(), receipt.ID, ""))

	// Second delivery with a different verdict must not reopen the decision.
	env.extractor.result.QualityRate = 10
	require.NoError(t, env.svc.ProcessAnalysis(context.Background(), receipt.ID, ""))

	var got entities.Receipt
	require.NoError(t, env.db.First(&got, "id = ?", receipt.ID).Error)
	assert.Equal(t, domain.ReceiptStatusClaimable, got.Status)
	assert.Equal(t, 80, got.AssignedPoint)
}

func TestProcessAnalysisZeroPointClaimStaysClosed(t *testing.T) {
	env := newTestEnv(t, 1)
	receipt, _ := seedPendingReceipt(t, env)

	// The receipt got folded into a claim at zero points before analysis ran.
	require.NoError(t, env.db.Model(&entities.Receipt{}).
		Where("id = ?", receipt.ID).
		Updates(map[string]interface{}{
			"status":         domain.ReceiptStatusClaimed,
			"assigned_point": 0,
		}).Error)

	require.NoError(t, env.svc.ProcessAnalysis(context.Background(), receipt.ID, ""))

	var got entities.Receipt
	require.NoError(t, env.db.First(&got, "id = ?", receipt.ID).Error)
	assert.Equal(t, domain.ReceiptStatusClaimed, got.Status)
	assert.Zero(t, got.AssignedPoint)
	// The extracted fields still land for audit purposes.
	require.NotNil(t, got.MerchantName)
	assert.Equal(t, "Corner Grocery", *got.MerchantName)
}

func TestProcessAnalysisExtractionErrorPersisted(t *testing.T) {
	env := newTestEnv(t, 1)
	env.extractor.err = errors.New("model unavailable")
	receipt, _ := seedPendingReceipt(t, env)

	err := env.svc.ProcessAnalysis(context.Background(), receipt.ID, "")
	require.Error(t, err)

	var got entities.Receipt
	require.NoError(t, env.db.First(&got, "id = ?", receipt.ID).Error)
	// Still pending: the queue retries; only the terminal hook rejects.
	assert.Equal(t, domain.ReceiptStatusPending, got.Status)
	require.NotNil(t, got.AnalysisError)
	assert.Equal(t, "model unavailable", *got.AnalysisError)
}

func TestFailAnalysisRejectsPendingOnly(t *testing.T) {
	env := newTestEnv(t, 1)
	receipt, _ := seedPendingReceipt(t, env)

	env.svc.FailAnalysis(context.Background(), receipt.ID, errors.New("gave up"))

	var got entities.Receipt
	require.NoError(t, env.db.First(&got, "id = ?", receipt.ID).Error)
	assert.Equal(t, domain.ReceiptStatusRejected, got.Status)
	require.NotNil(t, got.AnalysisError)
	assert.Equal(t, "gave up", *got.AnalysisError)

	// A late dead-letter must not clobber a decided receipt.
	decided, _ := seedPendingReceipt(t, env)
	require.NoError(t, env.db.Model(&entities.Receipt{}).
		Where("id = ?", decided.ID).
		Update("status", domain.ReceiptStatusClaimable).Error)

	env.svc.FailAnalysis(context.Background(), decided.ID, errors.New("too late"))

	got = entities.Receipt{}
	require.NoError(t, env.db.First(&got, "id = ?", decided.ID).Error)
	assert.Equal(t, domain.ReceiptStatusClaimable, got.Status)
}

func TestSubmitReceiptTerminalAnalysisFailureRejects(t *testing.T) {
	env := newTestEnv(t, 2)
	env.extractor.err = errors.New("model down")

	require.NoError(t, env.svc.SubmitReceipt(context.Background(), "0xabc", testImage(t), ""))
	assert.Equal(t, 2, env.extractor.calls)

	var got entities.Receipt
	require.NoError(t, env.db.First(&got, "user_address = ?", "0xabc").Error)
	assert.Equal(t, domain.ReceiptStatusRejected, got.Status)
	require.NotNil(t, got.AnalysisError)
}

func TestProcessArchiveUploadFailurePersisted(t *testing.T) {
	env := newTestEnv(t, 1)
	env.archive.err = errors.New("archive unreachable")
	_, img := seedPendingReceipt(t, env)

	err := env.svc.ProcessArchiveUpload(context.Background(), img.ID)
	require.Error(t, err)

	var got entities.ReceiptImage
	require.NoError(t, env.db.First(&got, "id = ?", img.ID).Error)
	require.NotNil(t, got.ArchiveError)
	assert.Equal(t, "archive unreachable", *got.ArchiveError)
	assert.Nil(t, got.ArchivePieceCID)
}

func TestProcessImageOCRFailureNotRetried(t *testing.T) {
	env := newTestEnv(t, 1)
	env.ocr.err = errors.New("ocr service down")
	_, img := seedPendingReceipt(t, env)

	// OCR failure is swallowed: enrichment only, no retry budget spent.
	err := env.svc.ProcessImageOCR(context.Background(), img.ID)
	require.NoError(t, err)

	var got entities.ReceiptImage
	require.NoError(t, env.db.First(&got, "id = ?", img.ID).Error)
	require.NotNil(t, got.OcrError)
	assert.Nil(t, got.OcrResult)
}

func TestListReceiptsNewestFirst(t *testing.T) {
	env := newTestEnv(t, 1)
	older := &entities.Receipt{
		ID:          ksuid.New().String(),
		UserAddress: "0xabc",
		Status:      domain.ReceiptStatusRejected,
		Timestamp:   entities.Timestamp{CreatedAt: time.Now().Add(-time.Hour)},
	}
	newer := &entities.Receipt{
		ID:            ksuid.New().String(),
		UserAddress:   "0xabc",
		Status:        domain.ReceiptStatusClaimable,
		AssignedPoint: 42,
		Timestamp:     entities.Timestamp{CreatedAt: time.Now()},
	}
	require.NoError(t, env.db.Create(older).Error)
	require.NoError(t, env.db.Create(newer).Error)

	res, err := env.svc.ListReceipts(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Equal(t, 2, res.TotalCount)
	assert.Equal(t, newer.ID, res.List[0].ID)
	assert.Equal(t, older.ID, res.List[1].ID)
}

func TestGetReceiptByIDOwnership(t *testing.T) {
	env := newTestEnv(t, 1)
	receipt, img := seedPendingReceipt(t, env)

	res, err := env.svc.GetReceiptByID(context.Background(), receipt.ID, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, receipt.ID, res.ID)
	require.Len(t, res.Images, 1)
	assert.Equal(t, img.ID.String(), res.Images[0].ID)

	_, err = env.svc.GetReceiptByID(context.Background(), receipt.ID, "0xother")
	require.ErrorIs(t, err, domain.ErrUnauthorizedAccess)

	_, err = env.svc.GetReceiptByID(context.Background(), "missing", "0xabc")
	require.ErrorIs(t, err, domain.ErrReceiptNotFound)
}
