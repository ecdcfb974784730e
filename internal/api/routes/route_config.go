package routes

import (
	"github.com/gofiber/fiber/v2"

	"receipto/internal/api/handlers"
	"receipto/internal/middleware"
	"receipto/pkg/jwt"
)

type Config struct {
	App            *fiber.App
	UserHandler    *handlers.UserHandler
	ReceiptHandler *handlers.ReceiptHandler
	PointHandler   *handlers.PointHandler
	Middleware     middleware.Middleware
	JWTService     jwt.JWTService
}

func (c *Config) Setup() {
	c.App.Use(c.Middleware.CORSMiddleware())
	c.GuestRoute()
	c.Auth()
	c.Receipts()
	c.Points()
}

func (c *Config) GuestRoute() {
	c.App.Get("/api/ping", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "pong"})
	})
}

func (c *Config) Auth() {
	auth := c.App.Group("/api/v1/auth")
	{
		auth.Post("/login", c.UserHandler.Login)
	}
}

func (c *Config) Receipts() {
	receipts := c.App.Group("/api/v1/receipts", c.Middleware.AuthMiddleware(c.JWTService))
	{
		receipts.Post("", c.ReceiptHandler.UploadReceipt)
		receipts.Get("", c.ReceiptHandler.GetReceipts)
		receipts.Get("/:id", c.ReceiptHandler.GetReceipt)
	}
}

func (c *Config) Points() {
	points := c.App.Group("/api/v1/points", c.Middleware.AuthMiddleware(c.JWTService))
	{
		points.Get("/stat", c.PointHandler.GetPointStat)
		points.Post("/claim", c.PointHandler.ClaimPoints)
	}
}
