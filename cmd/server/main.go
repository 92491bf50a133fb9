package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/eventhub/internal/config"
	"github.com/example/eventhub/internal/database"
	"github.com/example/eventhub/internal/handlers"
	"github.com/example/eventhub/internal/routes"
	"github.com/example/eventhub/internal/services"
	"github.com/example/eventhub/internal/store"
)

func main() {
	cfg := config.Load()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	st := store.NewGormStore(db)

	proofs := services.NewLocalProofStorage(cfg.ProofStorageDir, strings.TrimRight(cfg.PublicBaseURL, "/")+"/uploads")
	notifier := services.MultiNotifier{
		services.NewMailService(services.MailConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			From:        cfg.MailFrom,
			FrontendURL: cfg.FrontendURL,
		}),
		services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat),
	}

	transactions := services.NewTransactionService(st, proofs, notifier, services.TransactionOptions{
		PaymentWindow:      cfg.PaymentWindow,
		ConfirmationWindow: cfg.ConfirmationWindow,
	})

	var lock *services.SweepLock
	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		lock = services.NewSweepLock(redisClient, cfg.SweepLockTTL)
	}
	sweeper := services.NewSweeper(st, transactions, lock, cfg.SweepInterval, nil)

	app := fiber.New(fiber.Config{
		AppName:      "EventHub Backend",
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    handlers.MaxProofSize + 1<<20,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, cfg, st, transactions)

	ctx, stop := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		sweeper.Run(ctx)
	}()

	errChan := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.AppPort)
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Printf("fiber.Listen error: %v", err)
	case sig := <-quit:
		log.Printf("Received signal %s. Shutting down server...", sig)
	}

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Printf("Graceful server shutdown failed: %v", err)
	}

	stop()
	workers.Wait()
	transactions.Wait()
	log.Println("Server gracefully stopped.")
}
