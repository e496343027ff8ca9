package artifactctrl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	TypeSummary = "summary"
	TypeReport  = "report"
)

// Artifact is a generated text product (a document summary or a status
// report) stored as an object with a database row pointing at it.
type Artifact struct {
	ID           int64           `gorm:"primaryKey" json:"id"`
	ArtifactType string          `gorm:"not null;index" json:"artifact_type"`
	DocumentID   *int64          `gorm:"index" json:"document_id,omitempty"`
	OwnerID      *int64          `json:"owner_id,omitempty"`
	Title        string          `gorm:"not null" json:"title"`
	ObjectURL    string          `gorm:"not null;column:object_url" json:"object_url"`
	Extra        json.RawMessage `gorm:"type:jsonb" json:"extra,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ArtifactService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewArtifactService(db *gorm.DB) (*ArtifactService, error) {
	node, err := snowflake.NewNode(4) // Node number 4 for artifacts
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &ArtifactService{
		db:        db,
		snowflake: node,
	}, nil
}

func (s *ArtifactService) Create(ctx context.Context, artifact *Artifact) (*Artifact, error) {
	artifact.ID = s.snowflake.Generate().Int64()

	result := s.db.WithContext(ctx).Create(artifact)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create artifact: %v", result.Error)
	}

	return artifact, nil
}

func (s *ArtifactService) GetByID(ctx context.Context, id int64) (*Artifact, error) {
	var artifact Artifact
	result := s.db.WithContext(ctx).First(&artifact, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artifact: %v", result.Error)
	}
	return &artifact, nil
}

func (s *ArtifactService) List(ctx context.Context, limit, offset int) ([]Artifact, error) {
	var artifacts []Artifact
	result := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&artifacts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list artifacts: %v", result.Error)
	}
	return artifacts, nil
}

func (s *ArtifactService) ListByDocument(ctx context.Context, documentID int64) ([]Artifact, error) {
	var artifacts []Artifact
	result := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at DESC").
		Find(&artifacts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list artifacts: %v", result.Error)
	}
	return artifacts, nil
}
