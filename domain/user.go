package domain

import (
	"errors"
)

var (
	MessageSuccessLogin = "login successful"
	MessageFailedLogin  = "failed to login"

	ErrInvalidAddress = errors.New("invalid wallet address")
)

const (
	VerificationLevelNone   = "none"
	VerificationLevelDevice = "device"
	VerificationLevelOrb    = "orb"
)

type (
	LoginRequest struct {
		Address           string `json:"address" validate:"required,min=4"`
		Username          string `json:"username" validate:"required"`
		ProfilePictureURL string `json:"profile_picture_url" validate:"omitempty,url"`
		VerificationLevel string `json:"verification_level" validate:"omitempty,oneof=none device orb"`
	}

	LoginResponse struct {
		Token string       `json:"token"`
		User  UserResponse `json:"user"`
	}

	UserResponse struct {
		Address           string `json:"address"`
		Username          string `json:"username"`
		ProfilePictureURL string `json:"profile_picture_url,omitempty"`
		VerificationLevel string `json:"verification_level"`
	}
)
