package point

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"receipto/domain"
	"receipto/entities"
	"receipto/pkg/verifier"
)

type (
	PointService interface {
		GetUserPoint(ctx context.Context, userAddress string) (domain.UserPoint, error)
		GetPointStat(ctx context.Context, userAddress string) (domain.PointStatResponse, error)

		// InsertPointLog appends one ledger row. It must be called inside the
		// caller's transaction so the balance and the source rows it accounts
		// for change atomically or not at all.
		InsertPointLog(tx *gorm.DB, userAddress string, diff int, sourceType string, sourceID *string) (*entities.PointLog, error)

		ClaimPoints(ctx context.Context, userAddress string, req domain.ClaimPointRequest) (int, error)
	}

	pointService struct {
		db              *gorm.DB
		pointRepository PointRepository
		verifier        verifier.ProofVerifier
		logger          *zap.Logger
	}
)

func NewPointService(db *gorm.DB, pointRepository PointRepository, proofVerifier verifier.ProofVerifier, logger *zap.Logger) PointService {
	return &pointService{
		db:              db,
		pointRepository: pointRepository,
		verifier:        proofVerifier,
		logger:          logger,
	}
}

func (s *pointService) GetUserPoint(ctx context.Context, userAddress string) (domain.UserPoint, error) {
	latest, err := s.pointRepository.GetLatestPointLog(ctx, userAddress)
	if err != nil {
		return domain.UserPoint{}, err
	}
	if latest == nil {
		return domain.UserPoint{}, nil
	}
	return domain.UserPoint{
		AfterBalance:       latest.AfterBalance,
		AccumulatedBalance: latest.AccumulatedBalance,
	}, nil
}

func (s *pointService) GetPointStat(ctx context.Context, userAddress string) (domain.PointStatResponse, error) {
	userPoint, err := s.GetUserPoint(ctx, userAddress)
	if err != nil {
		return domain.PointStatResponse{}, err
	}

	claimable, err := s.pointRepository.GetClaimablePointSum(ctx, userAddress)
	if err != nil {
		return domain.PointStatResponse{}, err
	}

	return domain.PointStatResponse{
		AccumulatedPoint: userPoint.AccumulatedBalance,
		CurrentPoint:     userPoint.AfterBalance,
		ClaimablePoint:   claimable,
	}, nil
}

// lockUserRow serializes concurrent ledger writers for one user. The user row
// acts as the per-user ledger lock; sqlite transactions are already serialized.
func lockUserRow(tx *gorm.DB, userAddress string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	var user entities.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, "address = ?", userAddress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

func (s *pointService) InsertPointLog(tx *gorm.DB, userAddress string, diff int, sourceType string, sourceID *string) (*entities.PointLog, error) {
	if err := lockUserRow(tx, userAddress); err != nil {
		return nil, err
	}

	var latest entities.PointLog
	afterBalance := 0
	accumulatedBalance := 0
	err := tx.
		Where("user_address = ?", userAddress).
		Order("created_at DESC, id DESC").
		First(&latest).Error
	if err == nil {
		afterBalance = latest.AfterBalance
		accumulatedBalance = latest.AccumulatedBalance
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if diff < 0 && afterBalance+diff < 0 {
		return nil, domain.ErrInsufficientPoint
	}

	if diff >= 0 {
		accumulatedBalance += diff
	}

	entry := &entities.PointLog{
		ID:                 ksuid.New().String(),
		UserAddress:        userAddress,
		Diff:               diff,
		AfterBalance:       afterBalance + diff,
		AccumulatedBalance: accumulatedBalance,
		SourceType:         sourceType,
		SourceID:           sourceID,
		CreatedAt:          time.Now(),
	}

	if err := tx.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *pointService) ClaimPoints(ctx context.Context, userAddress string, req domain.ClaimPointRequest) (int, error) {
	signalHash := verifier.HashToField(domain.ClaimSignal)

	resp, err := s.verifier.Verify(ctx, verifier.VerifyRequest{
		NullifierHash:     req.NullifierHash,
		MerkleRoot:        req.MerkleRoot,
		Proof:             req.Proof,
		VerificationLevel: req.VerificationLevel,
		Action:            domain.ClaimAction,
		SignalHash:        signalHash,
	})
	if err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, domain.ErrInvalidProof
	}

	claimedPoint := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUserRow(tx, userAddress); err != nil {
			return err
		}

		var claimableReceipts []entities.Receipt
		if err := tx.
			Select("id", "assigned_point").
			Where("user_address = ? AND status = ?", userAddress, domain.ReceiptStatusClaimable).
			Find(&claimableReceipts).Error; err != nil {
			return err
		}

		total := 0
		receiptIDs := make([]string, 0, len(claimableReceipts))
		for _, r := range claimableReceipts {
			total += r.AssignedPoint
			receiptIDs = append(receiptIDs, r.ID)
		}

		pointLog, err := s.InsertPointLog(tx, userAddress, total, domain.PointSourceReceiptUpload, nil)
		if err != nil {
			return err
		}

		idsJSON, err := json.Marshal(receiptIDs)
		if err != nil {
			return err
		}

		claim := &entities.PointClaim{
			ID:                ksuid.New().String(),
			UserAddress:       userAddress,
			Signal:            domain.ClaimSignal,
			Action:            domain.ClaimAction,
			MerkleRoot:        req.MerkleRoot,
			NullifierHash:     req.NullifierHash,
			SignalHash:        signalHash,
			VerificationLevel: req.VerificationLevel,
			Proof:             req.Proof,
			TotalAmount:       total,
			ReceiptIDs:        string(idsJSON),
			CreatedAt:         time.Now(),
		}
		if err := tx.Create(claim).Error; err != nil {
			return err
		}

		if len(receiptIDs) > 0 {
			if err := tx.Model(&entities.Receipt{}).
				Where("id IN ?", receiptIDs).
				Updates(map[string]interface{}{
					"status":       domain.ReceiptStatusClaimed,
					"point_log_id": pointLog.ID,
				}).Error; err != nil {
				return err
			}
		}

		claimedPoint = total
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("points claimed",
		zap.String("user_address", userAddress),
		zap.Int("claimed_point", claimedPoint),
	)
	return claimedPoint, nil
}
