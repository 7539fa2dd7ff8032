package main

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"log/slog"
	"os"

	"farmer-registration/activities"
	"farmer-registration/backend"
	"farmer-registration/codec"
	"farmer-registration/config"
	"farmer-registration/workflows"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
)

// Version information - update this when deploying new versions
const (
	WorkerVersion = "1.0.0"
	BuildID       = "1.0.0" // Build ID for worker versioning
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Get or generate encryption key
	keyBytes := cfg.EncryptionKey
	if keyBytes == nil {
		// Generate a random 32-byte key for AES-256
		keyBytes = make([]byte, 32)
		if _, err := rand.Read(keyBytes); err != nil {
			log.Fatalf("Failed to generate encryption key: %v", err)
		}
		log.Printf("Generated encryption key: %s", hex.EncodeToString(keyBytes))
		log.Println("Set ENCRYPTION_KEY environment variable to use this key in production")
	}

	dataConverter, err := codec.NewEncryptionDataConverter(keyBytes)
	if err != nil {
		log.Fatalf("Failed to create encryption data converter: %v", err)
	}

	c, err := client.Dial(client.Options{
		HostPort:      cfg.TemporalAddress,
		DataConverter: dataConverter,
		Logger:        tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		log.Fatalf("Unable to create Temporal client: %v", err)
	}
	defer c.Close()

	api, err := backend.NewClient(cfg.APIBaseURL, backend.WithLogger(logger))
	if err != nil {
		log.Fatalf("Unable to create backend client: %v", err)
	}

	buildID := os.Getenv("BUILD_ID")
	if buildID == "" {
		buildID = BuildID
	}

	// Note: Worker versioning requires server-side setup of the task queue
	w := worker.New(c, cfg.TaskQueue, worker.Options{
		BuildID:                                buildID,
		MaxConcurrentActivityExecutionSize:     20,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(workflows.FinalizeRegistrationWorkflow)
	w.RegisterWorkflow(workflows.PaymentVerificationWorkflow)

	registrationActivities := activities.NewActivities(api)
	w.RegisterActivity(registrationActivities.VerifyPayment)
	w.RegisterActivity(registrationActivities.CompleteRegistration)

	logger.Info("Starting Temporal worker",
		"worker_version", WorkerVersion,
		"build_id", buildID,
		"temporal_address", cfg.TemporalAddress,
		"task_queue", cfg.TaskQueue,
		"api_base_url", cfg.APIBaseURL,
		"encryption", true,
	)

	err = w.Run(worker.InterruptCh())
	if err != nil {
		log.Fatalf("Unable to start worker: %v", err)
	}
}
