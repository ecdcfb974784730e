package receipt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"receipto/domain"
	"receipto/entities"
	"receipto/internal/utils"
	"receipto/internal/utils/imaging"
	"receipto/internal/utils/mailing"
	"receipto/internal/utils/storage"
	"receipto/pkg/archive"
	"receipto/pkg/extraction"
	"receipto/pkg/ocr"
	"receipto/pkg/queue"
)

type (
	ReceiptService interface {
		SubmitReceipt(ctx context.Context, userAddress string, raw []byte, countryHint string) error
		ListReceipts(ctx context.Context, userAddress string) (domain.ReceiptListResponse, error)
		GetReceiptByID(ctx context.Context, id string, userAddress string) (domain.ReceiptDetailResponse, error)

		// Queue handlers. At-least-once delivery, so all of them are idempotent.
		ProcessAnalysis(ctx context.Context, receiptID string, countryHint string) error
		FailAnalysis(ctx context.Context, receiptID string, cause error)
		ProcessArchiveUpload(ctx context.Context, imageID uuid.UUID) error
		ProcessImageOCR(ctx context.Context, imageID uuid.UUID) error

		RegisterJobHandlers(dispatcher *queue.Dispatcher)
	}

	receiptService struct {
		db                *gorm.DB
		receiptRepository ReceiptRepository
		blob              storage.BlobStore
		extractor         extraction.Extractor
		archive           archive.Store
		ocr               ocr.Client
		jobs              queue.Queue
		logger            *zap.Logger
	}
)

func NewReceiptService(
	db *gorm.DB,
	receiptRepository ReceiptRepository,
	blob storage.BlobStore,
	extractor extraction.Extractor,
	archiveStore archive.Store,
	ocrClient ocr.Client,
	jobs queue.Queue,
	logger *zap.Logger,
) ReceiptService {
	return &receiptService{
		db:                db,
		receiptRepository: receiptRepository,
		blob:              blob,
		extractor:         extractor,
		archive:           archiveStore,
		ocr:               ocrClient,
		jobs:              jobs,
		logger:            logger,
	}
}

func (s *receiptService) RegisterJobHandlers(dispatcher *queue.Dispatcher) {
	dispatcher.Register(queue.JobReceiptAnalysis, queue.HandlerFuncs(
		func(ctx context.Context, job queue.Job) error {
			return s.ProcessAnalysis(ctx, job.ReceiptID, job.Country)
		},
		func(ctx context.Context, job queue.Job, cause error) {
			s.FailAnalysis(ctx, job.ReceiptID, cause)
		},
	))
	dispatcher.Register(queue.JobArchiveUpload, queue.HandlerFuncs(
		func(ctx context.Context, job queue.Job) error {
			imageID, err := uuid.Parse(job.ReceiptImageID)
			if err != nil {
				return err
			}
			return s.ProcessArchiveUpload(ctx, imageID)
		},
		func(_ context.Context, job queue.Job, cause error) {
			s.logger.Error("archive upload failed permanently",
				zap.String("receipt_image_id", job.ReceiptImageID),
				zap.Error(cause),
			)
		},
	))
	dispatcher.Register(queue.JobImageOCR, queue.HandlerFuncs(
		func(ctx context.Context, job queue.Job) error {
			imageID, err := uuid.Parse(job.ReceiptImageID)
			if err != nil {
				return err
			}
			return s.ProcessImageOCR(ctx, imageID)
		},
		nil,
	))
}

// SubmitReceipt creates a pending receipt, stores the normalized image, and
// fans out the three independent background jobs. The caller gets an answer
// before any of them run; progress is observable by polling.
func (s *receiptService) SubmitReceipt(ctx context.Context, userAddress string, raw []byte, countryHint string) error {
	normalized, err := imaging.Normalize(raw)
	if err != nil {
		return domain.ErrImageUndecodable
	}

	now := time.Now()
	receipt := &entities.Receipt{
		ID:            ksuid.New().String(),
		UserAddress:   userAddress,
		Status:        domain.ReceiptStatusPending,
		AssignedPoint: 0,
		Timestamp:     entities.Timestamp{CreatedAt: now, UpdatedAt: now},
	}
	image := &entities.ReceiptImage{
		ID:        uuid.New(),
		ReceiptID: receipt.ID,
		NumOrder:  0,
		Timestamp: entities.Timestamp{CreatedAt: now, UpdatedAt: now},
	}

	if err := s.blob.Put(ctx, image.ID.String(), normalized, "image/jpeg"); err != nil {
		return err
	}

	if err := s.receiptRepository.CreateReceiptWithImage(ctx, receipt, image); err != nil {
		// Rows never landed, so the uploaded object is unreachable; drop it.
		if delErr := s.blob.Delete(ctx, image.ID.String()); delErr != nil {
			s.logger.Warn("failed to delete orphaned receipt image blob",
				zap.String("key", image.ID.String()),
				zap.Error(delErr),
			)
		}
		return err
	}

	jobs := []queue.Job{
		{Type: queue.JobReceiptAnalysis, ReceiptID: receipt.ID, Country: countryHint},
		{Type: queue.JobArchiveUpload, ReceiptID: receipt.ID, ReceiptImageID: image.ID.String()},
		{Type: queue.JobImageOCR, ReceiptID: receipt.ID, ReceiptImageID: image.ID.String()},
	}
	for _, job := range jobs {
		if err := s.jobs.Enqueue(ctx, job); err != nil {
			s.logger.Error("failed to enqueue job",
				zap.String("type", job.Type),
				zap.String("receipt_id", receipt.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

func (s *receiptService) ListReceipts(ctx context.Context, userAddress string) (domain.ReceiptListResponse, error) {
	receipts, err := s.receiptRepository.GetUserReceipts(ctx, userAddress)
	if err != nil {
		return domain.ReceiptListResponse{}, err
	}

	list := make([]domain.ReceiptListItem, 0, len(receipts))
	for _, r := range receipts {
		item := domain.ReceiptListItem{
			ID:            r.ID,
			Status:        r.Status,
			TotalAmount:   r.TotalAmount,
			AssignedPoint: r.AssignedPoint,
			QualityRate:   r.QualityRate,
			CreatedAt:     r.CreatedAt,
		}
		if r.MerchantName != nil {
			item.MerchantName = *r.MerchantName
		}
		if r.Currency != nil {
			item.Currency = *r.Currency
		}
		list = append(list, item)
	}

	return domain.ReceiptListResponse{
		TotalCount: len(list),
		List:       list,
	}, nil
}

func (s *receiptService) GetReceiptByID(ctx context.Context, id string, userAddress string) (domain.ReceiptDetailResponse, error) {
	receipt, err := s.receiptRepository.GetReceiptByID(ctx, id)
	if err != nil {
		return domain.ReceiptDetailResponse{}, err
	}
	if receipt == nil {
		return domain.ReceiptDetailResponse{}, domain.ErrReceiptNotFound
	}
	if receipt.UserAddress != userAddress {
		return domain.ReceiptDetailResponse{}, domain.ErrUnauthorizedAccess
	}

	images := make([]domain.ReceiptImageRef, 0, len(receipt.Images))
	for _, img := range receipt.Images {
		images = append(images, domain.ReceiptImageRef{
			ID:       img.ID.String(),
			NumOrder: img.NumOrder,
		})
	}

	return domain.ReceiptDetailResponse{
		ID:            receipt.ID,
		Status:        receipt.Status,
		MerchantName:  receipt.MerchantName,
		IssuedAt:      receipt.IssuedAt,
		CountryCode:   receipt.CountryCode,
		Currency:      receipt.Currency,
		TotalAmount:   receipt.TotalAmount,
		PaymentMethod: receipt.PaymentMethod,
		QualityRate:   receipt.QualityRate,
		AssignedPoint: receipt.AssignedPoint,
		AnalysisError: receipt.AnalysisError,
		Images:        images,
		CreatedAt:     receipt.CreatedAt,
	}, nil
}

// ProcessAnalysis downloads the receipt's images, runs extraction, and applies
// the status decision. Errors bubble up so the queue transport retries; the
// decision itself is a no-op on re-delivery once the receipt left pending.
func (s *receiptService) ProcessAnalysis(ctx context.Context, receiptID string, countryHint string) error {
	if err := s.receiptRepository.MarkAnalysisStarted(ctx, receiptID); err != nil {
		return err
	}

	images, err := s.receiptRepository.GetReceiptImages(ctx, receiptID)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return domain.ErrReceiptImageEmpty
	}

	imageData := make([][]byte, 0, len(images))
	for _, img := range images {
		data, err := s.blob.Get(ctx, img.ID.String())
		if err != nil {
			return fmt.Errorf("download receipt image %s: %w", img.ID, err)
		}
		imageData = append(imageData, data)
	}

	result, err := s.extractor.Extract(ctx, imageData, countryHint)
	if err != nil {
		if persistErr := s.receiptRepository.SetAnalysisError(ctx, receiptID, err.Error()); persistErr != nil {
			s.logger.Error("failed to persist analysis error",
				zap.String("receipt_id", receiptID),
				zap.Error(persistErr),
			)
		}
		return err
	}

	return s.applyStatusDecision(ctx, receiptID, result)
}

// applyStatusDecision writes the extracted fields, the status, and the
// assigned point in one transaction. The row is re-read inside the same
// transaction so a claim settling concurrently cannot be re-opened.
func (s *receiptService) applyStatusDecision(ctx context.Context, receiptID string, result *domain.ExtractionResult) error {
	now := time.Now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current entities.Receipt
		q := tx
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&current, "id = ?", receiptID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrReceiptNotFound
			}
			return err
		}

		quality := result.QualityRate
		if quality < 0 {
			quality = 0
		}
		if quality > 100 {
			quality = 100
		}

		isClaimable := quality >= domain.MinClaimableQualityRate &&
			result.MerchantName != nil && *result.MerchantName != "" &&
			result.TotalAmount != nil &&
			result.IssuedAt != nil && result.IssuedAt.Before(now.Add(domain.MaxIssuedAtSkew))

		status := domain.ReceiptStatusRejected
		assignedPoint := 0
		if isClaimable {
			status = domain.ReceiptStatusClaimable
			assignedPoint = domain.BasePointPerReceipt * quality / 100
		}

		switch {
		case current.Status == domain.ReceiptStatusClaimed && current.AssignedPoint == 0:
			// Folded into a claim at zero points before analysis finished.
			// Keep it closed; still record what was extracted.
			status = domain.ReceiptStatusClaimed
			assignedPoint = 0
		case current.Status != domain.ReceiptStatusPending:
			// Already decided; this is a queue re-delivery.
			return nil
		}

		return tx.Model(&entities.Receipt{}).
			Where("id = ?", current.ID).
			Updates(map[string]interface{}{
				"merchant_name":         result.MerchantName,
				"issued_at":             result.IssuedAt,
				"country_code":          result.CountryCode,
				"currency":              result.Currency,
				"total_amount":          result.TotalAmount,
				"payment_method":        result.PaymentMethod,
				"quality_rate":          quality,
				"status":                status,
				"assigned_point":        assignedPoint,
				"analysis_completed_at": now,
				"analysis_error":        nil,
			}).Error
	})
}

// FailAnalysis is the terminal failure hook: the queue transport gave up
// retrying, so the receipt must not stay pending forever.
func (s *receiptService) FailAnalysis(ctx context.Context, receiptID string, cause error) {
	message := "analysis failed"
	if cause != nil {
		message = cause.Error()
	}

	err := s.db.WithContext(ctx).Model(&entities.Receipt{}).
		Where("id = ? AND status = ?", receiptID, domain.ReceiptStatusPending).
		Updates(map[string]interface{}{
			"status":                domain.ReceiptStatusRejected,
			"assigned_point":        0,
			"analysis_completed_at": time.Now(),
			"analysis_error":        message,
		}).Error
	if err != nil {
		s.logger.Error("failed to reject receipt after terminal analysis failure",
			zap.String("receipt_id", receiptID),
			zap.Error(err),
		)
		return
	}

	s.logger.Error("receipt analysis failed permanently",
		zap.String("receipt_id", receiptID),
		zap.String("cause", message),
	)

	if opsEmail := utils.GetConfig("OPS_ALERT_EMAIL"); opsEmail != "" {
		body := fmt.Sprintf("<p>Receipt %s was rejected after exhausting analysis retries.</p><p>Cause: %s</p>", receiptID, message)
		if mailErr := mailing.SendMail(opsEmail, "Receipt analysis dead-lettered", body); mailErr != nil {
			s.logger.Warn("failed to send ops alert mail", zap.Error(mailErr))
		}
	}
}

func (s *receiptService) ProcessArchiveUpload(ctx context.Context, imageID uuid.UUID) error {
	if err := s.receiptRepository.MarkImageArchiveStarted(ctx, imageID); err != nil {
		return err
	}

	data, err := s.blob.Get(ctx, imageID.String())
	if err != nil {
		_ = s.receiptRepository.MarkImageArchiveFailed(ctx, imageID, err.Error())
		return err
	}

	pieceCID, err := s.archive.Save(ctx, data)
	if err != nil {
		_ = s.receiptRepository.MarkImageArchiveFailed(ctx, imageID, err.Error())
		return err
	}

	return s.receiptRepository.MarkImageArchiveCompleted(ctx, imageID, pieceCID)
}

// ProcessImageOCR never returns an error for OCR failures: the result is a
// pure enrichment and a retry storm buys nothing here.
func (s *receiptService) ProcessImageOCR(ctx context.Context, imageID uuid.UUID) error {
	if err := s.receiptRepository.MarkImageOcrStarted(ctx, imageID); err != nil {
		return err
	}

	data, err := s.blob.Get(ctx, imageID.String())
	if err != nil {
		return s.receiptRepository.MarkImageOcrFailed(ctx, imageID, err.Error())
	}

	result, err := s.ocr.Run(ctx, data)
	if err != nil {
		return s.receiptRepository.MarkImageOcrFailed(ctx, imageID, err.Error())
	}

	return s.receiptRepository.MarkImageOcrCompleted(ctx, imageID, result)
}
