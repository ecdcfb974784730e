package receipt

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"receipto/entities"
)

type (
	ReceiptRepository interface {
		CreateReceiptWithImage(ctx context.Context, receipt *entities.Receipt, image *entities.ReceiptImage) error
		GetReceiptByID(ctx context.Context, id string) (*entities.Receipt, error)
		GetUserReceipts(ctx context.Context, userAddress string) ([]*entities.Receipt, error)
		GetReceiptImages(ctx context.Context, receiptID string) ([]*entities.ReceiptImage, error)
		GetReceiptImageByID(ctx context.Context, id uuid.UUID) (*entities.ReceiptImage, error)

		MarkAnalysisStarted(ctx context.Context, receiptID string) error
		SetAnalysisError(ctx context.Context, receiptID string, message string) error

		MarkImageArchiveStarted(ctx context.Context, imageID uuid.UUID) error
		MarkImageArchiveCompleted(ctx context.Context, imageID uuid.UUID, pieceCID string) error
		MarkImageArchiveFailed(ctx context.Context, imageID uuid.UUID, message string) error

		MarkImageOcrStarted(ctx context.Context, imageID uuid.UUID) error
		MarkImageOcrCompleted(ctx context.Context, imageID uuid.UUID, result string) error
		MarkImageOcrFailed(ctx context.Context, imageID uuid.UUID, message string) error
	}

	receiptRepository struct {
		db *gorm.DB
	}
)

func NewReceiptRepository(db *gorm.DB) ReceiptRepository {
	return &receiptRepository{db: db}
}

func (r *receiptRepository) CreateReceiptWithImage(ctx context.Context, receipt *entities.Receipt, image *entities.ReceiptImage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(receipt).Error; err != nil {
			return err
		}
		return tx.Create(image).Error
	})
}

func (r *receiptRepository) GetReceiptByID(ctx context.Context, id string) (*entities.Receipt, error) {
	var receipt entities.Receipt
	err := r.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("num_order ASC")
		}).
		First(&receipt, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &receipt, nil
}

func (r *receiptRepository) GetUserReceipts(ctx context.Context, userAddress string) ([]*entities.Receipt, error) {
	var receipts []*entities.Receipt
	err := r.db.WithContext(ctx).
		Where("user_address = ?", userAddress).
		Order("created_at DESC, id DESC").
		Find(&receipts).Error
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

func (r *receiptRepository) GetReceiptImages(ctx context.Context, receiptID string) ([]*entities.ReceiptImage, error) {
	var images []*entities.ReceiptImage
	err := r.db.WithContext(ctx).
		Where("receipt_id = ?", receiptID).
		Order("num_order ASC").
		Find(&images).Error
	if err != nil {
		return nil, err
	}
	return images, nil
}

func (r *receiptRepository) GetReceiptImageByID(ctx context.Context, id uuid.UUID) (*entities.ReceiptImage, error) {
	var image entities.ReceiptImage
	err := r.db.WithContext(ctx).First(&image, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &image, nil
}

func (r *receiptRepository) MarkAnalysisStarted(ctx context.Context, receiptID string) error {
	return r.db.WithContext(ctx).Model(&entities.Receipt{}).
		Where("id = ?", receiptID).
		Updates(map[string]interface{}{
			"analysis_started_at": time.Now(),
			"analysis_error":      nil,
		}).Error
}

func (r *receiptRepository) SetAnalysisError(ctx context.Context, receiptID string, message string) error {
	return r.db.WithContext(ctx).Model(&entities.Receipt{}).
		Where("id = ?", receiptID).
		Update("analysis_error", message).Error
}

func (r *receiptRepository) MarkImageArchiveStarted(ctx context.Context, imageID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&entities.ReceiptImage{}).
		Where("id = ?", imageID).
		Updates(map[string]interface{}{
			"archive_started_at": time.Now(),
			"archive_error":      nil,
		}).Error
}

func (r *receiptRepository) MarkImageArchiveCompleted(ctx context.Context, imageID uuid.UUID, pieceCID string) error {
	return r.db.WithContext(ctx).Model(&entities.ReceiptImage{}).
		Where("id = ?", imageID).
		Updates(map[string]interface{}{
			"archive_completed_at": time.Now(),
			"archive_piece_c_id":   pieceCID,
			"archive_error":        nil,
		}).Error
}

func (r *receiptRepository) MarkImageArchiveFailed(ctx context.Context, imageID uuid.UUID, message string) error {
	return r.db.WithContext(ctx).Model(&entities.ReceiptImage{}).
		Where("id = ?", imageID).
		Updates(map[string]interface{}{
			"archive_completed_at": time.Now(),
			"archive_error":        message,
		}).Error
}

func (r *receiptRepository) MarkImageOcrStarted(ctx context.Context, imageID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&entities.ReceiptImage{}).
		Where("id = ?", imageID).
		Updates(map[string]interface{}{
			"ocr_started_at": time.Now(),
			"ocr_error":      nil,
		}).Error
}

func (r *receiptRepository) MarkImageOcrCompleted(ctx context.Context, imageID uuid.UUID, result string) error {
	return r.db.WithContext(ctx).Model(&entities.ReceiptImage{}).
		Where("id = ?", imageID).
		Updates(map[string]interface{}{
			"ocr_completed_at": time.Now(),
			"ocr_result":       result,
			"ocr_error":        nil,
		}).Error
}

func (r *receiptRepository) MarkImageOcrFailed(ctx context.Context, imageID uuid.UUID, message string) error {
	return r.db.WithContext(ctx).Model(&entities.ReceiptImage{}).
		Where("id = ?", imageID).
		Updates(map[string]interface{}{
			"ocr_completed_at": time.Now(),
			"ocr_error":        message,
		}).Error
}
