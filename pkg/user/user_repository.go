package user

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"receipto/entities"
)

type (
	UserRepository interface {
		UpsertUser(ctx context.Context, user *entities.User) error
		GetUserByAddress(ctx context.Context, address string) (*entities.User, error)
	}

	userRepository struct {
		db *gorm.DB
	}
)

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) UpsertUser(ctx context.Context, user *entities.User) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username",
			"profile_picture_url",
			"checksum_address",
			"verification_level",
			"updated_at",
		}),
	}).Create(user).Error
}

func (r *userRepository) GetUserByAddress(ctx context.Context, address string) (*entities.User, error) {
	var user entities.User
	if err := r.db.WithContext(ctx).First(&user, "address = ?", address).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}
