package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
	weaviateClient "github.com/weaviate/weaviate-go-client/v4/weaviate"
	"gorm.io/gorm"

	"scientia/src/core/index"
	"scientia/src/storage/postgres/fragmentctrl"
	"scientia/src/storage/weaviate"
)

// newVectorStore picks the fragment store backend from config. Postgres with
// pgvector is the default; weaviate is the alternative.
func newVectorStore(db *gorm.DB) (index.Store, error) {
	switch backend := viper.GetString("vector.backend"); backend {
	case "postgres":
		store, err := fragmentctrl.NewFragmentService(db, viper.GetInt("vector.dimension"))
		if err != nil {
			return nil, err
		}
		if err := store.AutoMigrate(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	case "weaviate":
		wc := weaviateClient.New(weaviateClient.Config{
			Host:   viper.GetString("weaviate.url"),
			Scheme: "http",
		})
		store := weaviate.NewFragmentStore(wc, "")
		if err := store.EnsureSchema(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to ensure weaviate schema: %v", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown vector backend: %s", backend)
	}
}
