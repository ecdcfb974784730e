package config

import (
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"receipto/internal/api/handlers"
	"receipto/internal/api/routes"
	"receipto/internal/middleware"
	"receipto/internal/utils"
	"receipto/internal/utils/storage"
	"receipto/pkg/archive"
	"receipto/pkg/extraction"
	"receipto/pkg/jwt"
	"receipto/pkg/ocr"
	"receipto/pkg/point"
	"receipto/pkg/queue"
	"receipto/pkg/receipt"
	"receipto/pkg/user"
	"receipto/pkg/verifier"
)

func NewApp(db *gorm.DB, zapLogger *zap.Logger) (*fiber.App, *queue.WorkerQueue, error) {
	utils.InitValidator()
	app := fiber.New(fiber.Config{
		EnablePrintRoutes: true,
		BodyLimit:         20 * 1024 * 1024,
	})
	middlewares := middleware.NewMiddleware()

	// setting up logging and limiter
	err := os.MkdirAll("./logs", os.ModePerm)
	if err != nil {
		log.Fatalf("error creating logs directory: %v", err)
	}
	file, err := os.OpenFile(
		"./logs/app.log",
		os.O_RDWR|os.O_CREATE|os.O_APPEND,
		0666,
	)
	if err != nil {
		log.Fatalf("error opening file: %v", err)
	}
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Output:     file,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Second,
	}))

	// utils
	s3 := storage.NewAwsS3()

	// Repository
	userRepository := user.NewUserRepository(db)
	receiptRepository := receipt.NewReceiptRepository(db)
	pointRepository := point.NewPointRepository(db)

	// Service
	jwtService := jwt.NewJWTService()
	userService := user.NewUserService(userRepository, jwtService)
	proofVerifier := verifier.NewWorldVerifier()
	pointService := point.NewPointService(db, pointRepository, proofVerifier, zapLogger)

	dispatcher := queue.NewDispatcher()
	jobs := queue.NewWorkerQueue(dispatcher, zapLogger)
	receiptService := receipt.NewReceiptService(
		db,
		receiptRepository,
		s3,
		extraction.NewOpenAIExtractor(),
		archive.NewHTTPStore(),
		ocr.NewHTTPClient(),
		jobs,
		zapLogger,
	)
	receiptService.RegisterJobHandlers(dispatcher)

	// Handler
	userHandler := handlers.NewUserHandler(userService)
	receiptHandler := handlers.NewReceiptHandler(receiptService)
	pointHandler := handlers.NewPointHandler(pointService)

	// routes
	routesConfig := routes.Config{
		App:            app,
		UserHandler:    userHandler,
		ReceiptHandler: receiptHandler,
		PointHandler:   pointHandler,
		Middleware:     middlewares,
		JWTService:     jwtService,
	}
	routesConfig.Setup()
	return app, jobs, nil
}
