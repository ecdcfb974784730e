package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"receipto/domain"
	"receipto/internal/api/presenters"
	"receipto/internal/utils"
	"receipto/pkg/point"
)

type PointHandler struct {
	pointService point.PointService
}

func NewPointHandler(pointService point.PointService) *PointHandler {
	return &PointHandler{pointService: pointService}
}

func (h *PointHandler) GetPointStat(c *fiber.Ctx) error {
	userAddress := c.Locals("user_address").(string)

	res, err := h.pointService.GetPointStat(c.Context(), userAddress)
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusInternalServerError, domain.MessageFailedGetPointStat, err)
	}

	return presenters.SuccessResponse(c, res, fiber.StatusOK, domain.MessageSuccessGetPointStat)
}

func (h *PointHandler) ClaimPoints(c *fiber.Ctx) error {
	userAddress := c.Locals("user_address").(string)

	var req domain.ClaimPointRequest
	if err := c.BodyParser(&req); err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedBodyRequest, err)
	}

	if err := utils.Validate.Struct(req); err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedBodyRequest, err)
	}

	claimed, err := h.pointService.ClaimPoints(c.Context(), userAddress, req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidProof) {
			return presenters.CodedErrorResponse(c, fiber.StatusBadRequest, domain.CodeInvalidProof, domain.MessageFailedClaimPoint)
		}
		return presenters.ErrorResponse(c, fiber.StatusInternalServerError, domain.MessageFailedClaimPoint, err)
	}

	return presenters.SuccessResponse(c, domain.ClaimPointResponse{ClaimedPoint: claimed}, fiber.StatusOK, domain.MessageSuccessClaimPoint)
}
