package user

import (
	"context"
	"strings"
	"time"

	"receipto/domain"
	"receipto/entities"
	"receipto/pkg/jwt"
)

type (
	UserService interface {
		LoginUser(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error)
	}

	userService struct {
		userRepository UserRepository
		jwtService     jwt.JWTService
	}
)

func NewUserService(userRepository UserRepository, jwtService jwt.JWTService) UserService {
	return &userService{
		userRepository: userRepository,
		jwtService:     jwtService,
	}
}

// LoginUser upserts the user on every successful authentication: created on
// the first login, username/picture refreshed on later ones.
func (s *userService) LoginUser(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	if !strings.HasPrefix(req.Address, "0x") {
		return domain.LoginResponse{}, domain.ErrInvalidAddress
	}

	address := strings.ToLower(req.Address)

	level := req.VerificationLevel
	if level == "" {
		level = domain.VerificationLevelNone
	}

	now := time.Now()
	user := &entities.User{
		Address:           address,
		ChecksumAddress:   req.Address,
		Username:          req.Username,
		ProfilePictureURL: req.ProfilePictureURL,
		VerificationLevel: level,
		Timestamp: entities.Timestamp{
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	if err := s.userRepository.UpsertUser(ctx, user); err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		Token: s.jwtService.GenerateTokenUser(address),
		User: domain.UserResponse{
			Address:           user.Address,
			Username:          user.Username,
			ProfilePictureURL: user.ProfilePictureURL,
			VerificationLevel: user.VerificationLevel,
		},
	}, nil
}
