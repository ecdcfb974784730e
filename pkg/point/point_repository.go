package point

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"receipto/domain"
	"receipto/entities"
)

type (
	PointRepository interface {
		GetLatestPointLog(ctx context.Context, userAddress string) (*entities.PointLog, error)
		GetClaimablePointSum(ctx context.Context, userAddress string) (int, error)
	}

	pointRepository struct {
		db *gorm.DB
	}
)

func NewPointRepository(db *gorm.DB) PointRepository {
	return &pointRepository{db: db}
}

func (r *pointRepository) GetLatestPointLog(ctx context.Context, userAddress string) (*entities.PointLog, error) {
	var latest entities.PointLog
	err := r.db.WithContext(ctx).
		Where("user_address = ?", userAddress).
		Order("created_at DESC, id DESC").
		First(&latest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &latest, nil
}

func (r *pointRepository) GetClaimablePointSum(ctx context.Context, userAddress string) (int, error) {
	var sum int
	err := r.db.WithContext(ctx).
		Model(&entities.Receipt{}).
		Where("user_address = ? AND status = ?", userAddress, domain.ReceiptStatusClaimable).
		Select("COALESCE(SUM(assigned_point), 0)").
		Row().Scan(&sum)
	if err != nil {
		return 0, err
	}
	return sum, nil
}
