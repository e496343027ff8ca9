package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"scientia/src/infrastructure/task"
	"scientia/src/log"
	"scientia/src/notify"
	"scientia/src/taskctrl"
)

var indexCmd = &cobra.Command{
	Use:   "index <document-id>",
	Short: "Queue an indexing run and follow its progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	settingDefaultConfig()
}

func runIndex(cmd *cobra.Command, args []string) error {
	documentID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid document id %q", args[0])
	}

	logger := log.NewWatermillAdapter()

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
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %v", err)
	}
	defer sqlDB.Close()

	// Initialize AMQP publisher for the task queue
	publisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	defer publisher.Close()

	// Subscribe to the event fanout before enqueueing so no event is missed.
	eventSubscriber, err := amqp.NewSubscriber(
		amqp.NewDurablePubSubConfig(
			viper.GetString("amqp.url"),
			amqp.GenerateQueueNameTopicNameWithSuffix("_cli"),
		),
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	defer eventSubscriber.Close()

	bus := notify.NewBus(nil, eventSubscriber)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx, notify.GlobalChannel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	// Enqueue the indexing task
	taskRepo := task.NewPostgresRepository(db)
	taskService := task.NewService(publisher, taskRepo, nil, logger)

	payload, err := json.Marshal(taskctrl.IndexingPayload{DocumentID: documentID})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	t, err := taskService.Enqueue(ctx, task.KindIndexing, &documentID, nil, payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	fmt.Printf("Queued indexing task %s for document %d\n", t.ID, documentID)

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("indexing"),
		progressbar.OptionShowCount(),
	)

	for event := range events {
		if event.TaskID != t.ID {
			continue
		}

		bar.Describe(event.Message)
		bar.Set(event.Progress)

		switch event.Status {
		case string(task.StatusCompleted):
			fmt.Printf("\nDone: %v fragments, %v skipped\n",
				event.Payload["fragments"], event.Payload["skipped"])
			return nil
		case string(task.StatusError):
			fmt.Println()
			return fmt.Errorf("indexing failed: %s", event.Message)
		}
	}

	return fmt.Errorf("event stream closed before the task finished")
}
