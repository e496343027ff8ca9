package documentctrl

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Document is the metadata row for an ingested document. The payload itself
// lives in object storage under ObjectURL (bucket name + object name).
type Document struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Title     string    `json:"title"`
	Filename  string    `gorm:"not null" json:"filename"`
	ObjectURL string    `gorm:"column:object_url" json:"object_url"`
	Source    string    `gorm:"not null;default:upload" json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DocumentService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewDocumentService(db *gorm.DB) (*DocumentService, error) {
	node, err := snowflake.NewNode(1) // Node number 1 for documents
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &DocumentService{
		db:        db,
		snowflake: node,
	}, nil
}

func (s *DocumentService) Create(ctx context.Context, title, filename, objectURL, source string) (*Document, error) {
	doc := &Document{
		ID:        s.snowflake.Generate().Int64(),
		Title:     title,
		Filename:  filename,
		ObjectURL: objectURL,
		Source:    source,
	}

	result := s.db.WithContext(ctx).Create(doc)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to create document: %v", result.Error)
	}

	return doc, nil
}

func (s *DocumentService) GetByID(ctx context.Context, id int64) (*Document, error) {
	var doc Document
	result := s.db.WithContext(ctx).First(&doc, id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %v", result.Error)
	}
	return &doc, nil
}

// List returns a paginated list of documents, newest first.
func (s *DocumentService) List(ctx context.Context, limit int, offset int) ([]Document, error) {
	var docs []Document

	result := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&docs)

	if result.Error != nil {
		return nil, fmt.Errorf("failed to list documents: %v", result.Error)
	}

	return docs, nil
}

// ListBySources returns the newest document per source, for building reports
// over snapshot-style feeds.
func (s *DocumentService) ListBySources(ctx context.Context, sources []string) ([]Document, error) {
	var docs []Document

	for _, source := range sources {
		var doc Document
		result := s.db.WithContext(ctx).
			Where("source = ?", source).
			Order("created_at DESC").
			First(&doc)
		if result.Error != nil {
			if result.Error == gorm.ErrRecordNotFound {
				continue
			}
			return nil, fmt.Errorf("failed to list documents for source %s: %v", source, result.Error)
		}
		docs = append(docs, doc)
	}

	return docs, nil
}
