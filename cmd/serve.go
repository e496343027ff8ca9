package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	httpHdlr "scientia/handler/http"
	"scientia/src/core/retrieve"
	"scientia/src/hook"
	"scientia/src/infrastructure/integrations/ollama"
	"scientia/src/infrastructure/task"
	"scientia/src/log"
	"scientia/src/notify"
	"scientia/src/storage/minioctrl"
	"scientia/src/storage/postgres/artifactctrl"
	"scientia/src/storage/postgres/documentctrl"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the document service HTTP server",
	Long: `The serve command starts an HTTP server for document upload, task
scheduling, grounded question answering and the task event stream.`,
	Run: RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	settingDefaultConfig()
}

func RunServer(cmd *cobra.Command, args []string) {
	// Initialize PostgreSQL connection
	host := viper.GetString("postgres.host")
	user := viper.GetString("postgres.user")
	password := viper.GetString("postgres.password")
	dbname := viper.GetString("postgres.db")
	port := viper.GetString("postgres.port")

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, dbname, port)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Error(err, "Failed to connect to database")
		return
	}

	// Initialize MinioService
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		log.Error(err, "Failed to initialize minio service")
		return
	}

	// Initialize postgres services
	documentService, err := documentctrl.NewDocumentService(db)
	if err != nil {
		log.Error(err, "Failed to initialize document service")
		return
	}
	artifactService, err := artifactctrl.NewArtifactService(db)
	if err != nil {
		log.Error(err, "Failed to initialize artifact service")
		return
	}
	taskRepo := task.NewPostgresRepository(db)

	// AMQP publisher feeds the task queue; processing happens in the worker.
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		log.NewWatermillAdapter(),
	)
	if err != nil {
		log.Error(err, "Failed to create AMQP publisher")
		return
	}
	defer amqpPublisher.Close()

	// Fanout subscriber receives task events published by the worker.
	eventSubscriber, err := amqp.NewSubscriber(
		amqp.NewDurablePubSubConfig(
			viper.GetString("amqp.url"),
			amqp.GenerateQueueNameTopicNameWithSuffix("_serve"),
		),
		log.NewWatermillAdapter(),
	)
	if err != nil {
		log.Error(err, "Failed to create AMQP subscriber")
		return
	}
	defer eventSubscriber.Close()

	eventPublisher, err := amqp.NewPublisher(
		amqp.NewDurablePubSubConfig(viper.GetString("amqp.url"), nil),
		log.NewWatermillAdapter(),
	)
	if err != nil {
		log.Error(err, "Failed to create AMQP event publisher")
		return
	}
	defer eventPublisher.Close()

	bus := notify.NewBus(eventPublisher, eventSubscriber)

	taskService := task.NewService(amqpPublisher, taskRepo, bus, log.NewWatermillAdapter())
	indexTrigger := hook.NewIndexTrigger(taskService)

	// Retrieval pipeline for question answering
	ollamaClient := ollama.NewClient(viper.GetString("ollama.url"), &http.Client{Timeout: 120 * time.Second},
		ollama.WithEmbeddingModel(viper.GetString("ollama.embedding_model")),
		ollama.WithGenerateModel(viper.GetString("ollama.generate_model")),
	)
	store, err := newVectorStore(db)
	if err != nil {
		log.Error(err, "Failed to initialize vector store")
		return
	}
	retriever := retrieve.NewService(ollamaClient, store, ollamaClient)

	// Initialize handlers
	documentHandler, err := httpHdlr.NewDocumentHandler(minioService, documentService, indexTrigger)
	if err != nil {
		log.Error(err, "Failed to initialize document handler")
		return
	}
	taskHandler := httpHdlr.NewTaskHandler(taskService, taskRepo, documentService)
	askHandler := httpHdlr.NewAskHandler(retriever)
	artifactHandler := httpHdlr.NewArtifactHandler(artifactService, minioService)
	eventHandler := httpHdlr.NewEventHandler(bus)

	// Setup gin router
	r := gin.Default()

	// Register routes
	r.POST("/documents", documentHandler.Upload)
	r.GET("/documents", documentHandler.List)
	r.POST("/documents/:id/index", taskHandler.EnqueueIndexing)
	r.POST("/documents/:id/summary", taskHandler.EnqueueSummary)
	r.POST("/documents/:id/ask", askHandler.Ask)
	r.POST("/reports", taskHandler.EnqueueReport)
	r.GET("/tasks/:id", taskHandler.Get)
	r.GET("/artifacts", artifactHandler.List)
	r.GET("/artifacts/:id/content", artifactHandler.Download)
	r.GET("/events", eventHandler.Stream)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
			return
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Parse shutdown timeout
	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Close database connection
	sqlDB, err := db.DB()
	if err != nil {
		log.Error(err, "Failed to get underlying *sql.DB")
	} else {
		if err := sqlDB.Close(); err != nil {
			log.Error(err, "Error closing database connection")
		}
	}

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	log.Info("Server exited")
}
