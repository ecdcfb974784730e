package handlers

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"receipto/domain"
	"receipto/internal/api/presenters"
	"receipto/pkg/receipt"
)

type ReceiptHandler struct {
	receiptService receipt.ReceiptService
}

func NewReceiptHandler(receiptService receipt.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{receiptService: receiptService}
}

func (h *ReceiptHandler) UploadReceipt(c *fiber.Ctx) error {
	userAddress := c.Locals("user_address").(string)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedUploadReceipt, domain.ErrFileRequired)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedUploadReceipt, err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedUploadReceipt, err)
	}

	countryHint := c.Get("CF-IPCountry")
	if countryHint == "" {
		countryHint = c.Query("country")
	}

	if err := h.receiptService.SubmitReceipt(c.Context(), userAddress, raw, countryHint); err != nil {
		if errors.Is(err, domain.ErrImageUndecodable) {
			return presenters.ErrorResponse(c, fiber.StatusBadRequest, domain.MessageFailedUploadReceipt, err)
		}
		return presenters.ErrorResponse(c, fiber.StatusInternalServerError, domain.MessageFailedUploadReceipt, err)
	}

	return presenters.SuccessResponse(c, domain.UploadReceiptResponse{Result: "success"}, fiber.StatusCreated, domain.MessageSuccessUploadReceipt)
}

func (h *ReceiptHandler) GetReceipts(c *fiber.Ctx) error {
	userAddress := c.Locals("user_address").(string)

	res, err := h.receiptService.ListReceipts(c.Context(), userAddress)
	if err != nil {
		return presenters.ErrorResponse(c, fiber.StatusInternalServerError, domain.MessageFailedGetReceipts, err)
	}

	return presenters.SuccessResponse(c, res, fiber.StatusOK, domain.MessageSuccessGetReceipts)
}

func (h *ReceiptHandler) GetReceipt(c *fiber.Ctx) error {
	userAddress := c.Locals("user_address").(string)
	receiptID := c.Params("id")

	res, err := h.receiptService.GetReceiptByID(c.Context(), receiptID, userAddress)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrReceiptNotFound):
			return presenters.ErrorResponse(c, fiber.StatusNotFound, domain.MessageFailedGetReceipt, err)
		case errors.Is(err, domain.ErrUnauthorizedAccess):
			return presenters.ErrorResponse(c, fiber.StatusForbidden, domain.MessageFailedGetReceipt, err)
		}
		return presenters.ErrorResponse(c, fiber.StatusInternalServerError, domain.MessageFailedGetReceipt, err)
	}

	return presenters.SuccessResponse(c, res, fiber.StatusOK, domain.MessageSuccessGetReceipt)
}
