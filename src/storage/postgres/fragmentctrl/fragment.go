package fragmentctrl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"scientia/src/core/index"
)

// DefaultDimension matches the vectors emitted by the default embedding
// model (nomic-embed-text). Deployments on another model set the dimension
// to that model's output width.
const DefaultDimension = 768

// Fragment is the relational row behind index.Fragment. The embedding column
// is pgvector's vector type, carried as its text literal on the Go side; its
// dimension is fixed by the service at migration time.
type Fragment struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	DocumentID int64     `gorm:"not null;index" json:"document_id"`
	ChunkIndex int       `gorm:"not null;column:chunk_index" json:"chunk_index"`
	Text       string    `gorm:"not null;column:text_content" json:"text"`
	Embedding  string    `gorm:"type:vector" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// FragmentService stores fragments in postgres and answers nearest-neighbor
// queries through pgvector's L2 operator.
type FragmentService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
	dimension int
}

func NewFragmentService(db *gorm.DB, dimension int) (*FragmentService, error) {
	if dimension <= 0 {
		dimension = DefaultDimension
	}

	node, err := snowflake.NewNode(3) // Node number 3 for fragments
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &FragmentService{
		db:        db,
		snowflake: node,
		dimension: dimension,
	}, nil
}

// AutoMigrate creates the fragments table and pins the embedding column to
// the configured dimension.
func (s *FragmentService) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to enable pgvector: %v", err)
	}
	if err := s.db.WithContext(ctx).AutoMigrate(&Fragment{}); err != nil {
		return fmt.Errorf("failed to migrate fragments: %v", err)
	}
	alter := fmt.Sprintf("ALTER TABLE fragments ALTER COLUMN embedding TYPE vector(%d)", s.dimension)
	if err := s.db.WithContext(ctx).Exec(alter).Error; err != nil {
		return fmt.Errorf("failed to set embedding dimension: %v", err)
	}
	return nil
}

// Replace swaps the document's fragment set inside one transaction, so
// readers never observe a partially written set.
func (s *FragmentService) Replace(ctx context.Context, documentID int64, fragments []index.Fragment) error {
	for _, f := range fragments {
		if err := CheckDimension(s.dimension, f.Embedding); err != nil {
			return fmt.Errorf("fragment %d of document %d: %w", f.Index, documentID, err)
		}
	}

	rows := make([]Fragment, 0, len(fragments))
	for _, f := range fragments {
		rows = append(rows, Fragment{
			ID:         s.snowflake.Generate().Int64(),
			DocumentID: documentID,
			ChunkIndex: f.Index,
			Text:       f.Text,
			Embedding:  EncodeVector(f.Embedding),
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&Fragment{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace fragments: %v", err)
	}
	return nil
}

// QueryNearest returns the k fragments of the document closest to the query
// vector by L2 distance.
func (s *FragmentService) QueryNearest(ctx context.Context, documentID int64, vector []float32, k int) ([]index.ScoredFragment, error) {
	if err := CheckDimension(s.dimension, vector); err != nil {
		return nil, fmt.Errorf("query for document %d: %w", documentID, err)
	}

	type row struct {
		Fragment
		Distance float64
	}

	var rows []row
	result := s.db.WithContext(ctx).Raw(
		`SELECT id, document_id, chunk_index, text_content, created_at,
		        embedding::text AS embedding,
		        embedding <-> ?::vector AS distance
		   FROM fragments
		  WHERE document_id = ?
		  ORDER BY distance
		  LIMIT ?`,
		EncodeVector(vector), documentID, k,
	).Scan(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to query fragments: %v", result.Error)
	}

	scored := make([]index.ScoredFragment, 0, len(rows))
	for _, r := range rows {
		embedding, err := ParseVector(r.Embedding)
		if err != nil {
			return nil, fmt.Errorf("fragment %d: %v", r.ID, err)
		}
		scored = append(scored, index.ScoredFragment{
			Fragment: index.Fragment{
				ID:         r.ID,
				DocumentID: r.DocumentID,
				Index:      r.ChunkIndex,
				Text:       r.Text,
				Embedding:  embedding,
				CreatedAt:  r.CreatedAt,
			},
			Distance: r.Distance,
		})
	}
	return scored, nil
}

func (s *FragmentService) Count(ctx context.Context, documentID int64) (int64, error) {
	var count int64
	result := s.db.WithContext(ctx).Model(&Fragment{}).Where("document_id = ?", documentID).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count fragments: %v", result.Error)
	}
	return count, nil
}

// CheckDimension rejects vectors that do not fit the embedding column. A
// mismatch means the configured embedding model and the stored column
// disagree, which must fail loudly before any SQL runs.
func CheckDimension(dimension int, vector []float32) error {
	if len(vector) != dimension {
		return fmt.Errorf("embedding has %d dimensions, column is vector(%d)", len(vector), dimension)
	}
	return nil
}

// EncodeVector renders a vector as pgvector's text literal, e.g. "[1,0.5,2]".
func EncodeVector(vector []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// ParseVector is the inverse of EncodeVector. QueryNearest uses it to hand
// the stored embedding back to callers.
func ParseVector(literal string) ([]float32, error) {
	trimmed := strings.TrimSpace(literal)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return nil, fmt.Errorf("malformed vector literal: %q", literal)
	}
	inner := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	if inner == "" {
		return nil, nil
	}

	parts := strings.Split(inner, ",")
	vector := make([]float32, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector component %q: %v", part, err)
		}
		vector = append(vector, float32(v))
	}
	return vector, nil
}
