package weaviate

import (
	"context"
	"fmt"
	"time"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"scientia/src/core/index"
)

const DefaultClassName = "Fragment"

// FragmentStore keeps document fragments in Weaviate with externally supplied
// vectors. Each Replace writes the document's fragments under a fresh run id
// and readers resolve the latest run first, so a reader racing a replace sees
// the old set or the new one, never a mix.
type FragmentStore struct {
	client    *weaviate.Client
	className string
}

func NewFragmentStore(client *weaviate.Client, className string) *FragmentStore {
	if className == "" {
		className = DefaultClassName
	}
	return &FragmentStore{
		client:    client,
		className: className,
	}
}

// EnsureSchema creates the fragment class if it does not exist yet. The
// vectorizer is "none" because embeddings are computed outside Weaviate.
func (s *FragmentStore) EnsureSchema(ctx context.Context) error {
	exists, err := s.classExists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check if class exists: %v", err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class: s.className,
		Properties: []*models.Property{
			{Name: "documentId", DataType: []string{"int"}},
			{Name: "chunkIndex", DataType: []string{"int"}},
			{Name: "text", DataType: []string{"text"}},
			{Name: "runId", DataType: []string{"int"}},
		},
		Vectorizer: "none",
	}

	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create Weaviate class: %v", err)
	}

	return nil
}

func (s *FragmentStore) classExists(ctx context.Context) (bool, error) {
	schema, err := s.client.Schema().Getter().Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get schema: %v", err)
	}

	for _, class := range schema.Classes {
		if class.Class == s.className {
			return true, nil
		}
	}

	return false, nil
}

func (s *FragmentStore) documentFilter(documentID int64) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"documentId"}).
		WithOperator(filters.Equal).
		WithValueInt(documentID)
}

func (s *FragmentStore) runFilter(documentID, runID int64) *filters.WhereBuilder {
	return filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			s.documentFilter(documentID),
			filters.Where().
				WithPath([]string{"runId"}).
				WithOperator(filters.Equal).
				WithValueInt(runID),
		})
}

func (s *FragmentStore) staleRunFilter(documentID, runID int64) *filters.WhereBuilder {
	return filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			s.documentFilter(documentID),
			filters.Where().
				WithPath([]string{"runId"}).
				WithOperator(filters.LessThan).
				WithValueInt(runID),
		})
}

// runObjects tags every fragment of a replace run with the run id.
func runObjects(className string, runID int64, fragments []index.Fragment) []*models.Object {
	objs := make([]*models.Object, len(fragments))
	for i, f := range fragments {
		objs[i] = &models.Object{
			Class: className,
			Properties: map[string]interface{}{
				"documentId": f.DocumentID,
				"chunkIndex": f.Index,
				"text":       f.Text,
				"runId":      runID,
			},
			Vector: f.Embedding,
		}
	}
	return objs
}

// Replace swaps the document's fragment set. The new set is inserted under a
// fresh run id before prior runs are deleted; until the delete lands both
// runs exist and readers resolve to the newest one. Run ids are microsecond
// timestamps, which stay within float64 precision on the GraphQL wire.
func (s *FragmentStore) Replace(ctx context.Context, documentID int64, fragments []index.Fragment) error {
	runID := time.Now().UnixMicro()

	if len(fragments) > 0 {
		objs := runObjects(s.className, runID, fragments)
		resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to batch add fragments: %v", err)
		}
		if len(resp) == 0 {
			return fmt.Errorf("batch operation returned no results")
		}
	}

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.className).
		WithWhere(s.staleRunFilter(documentID, runID)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete stale fragments: %v", err)
	}

	return nil
}

// latestRun resolves the newest run id stored for the document. ok is false
// when the document has no fragments.
func (s *FragmentStore) latestRun(ctx context.Context, documentID int64) (int64, bool, error) {
	runMax := graphql.Field{
		Name:   "runId",
		Fields: []graphql.Field{{Name: "maximum"}},
	}

	result, err := s.client.GraphQL().Aggregate().
		WithClassName(s.className).
		WithWhere(s.documentFilter(documentID)).
		WithFields(runMax).
		Do(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve latest run: %v", err)
	}

	return parseLatestRun(result.Data, s.className)
}

// QueryNearest returns the k fragments of the document closest to the query
// vector, scoped to the latest run.
func (s *FragmentStore) QueryNearest(ctx context.Context, documentID int64, vector []float32, k int) ([]index.ScoredFragment, error) {
	runID, ok, err := s.latestRun(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	fields := []graphql.Field{
		{Name: "documentId"},
		{Name: "chunkIndex"},
		{Name: "text"},
		{Name: "_additional { distance }"},
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	result, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fields...).
		WithWhere(s.runFilter(documentID, runID)).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query fragments: %v", err)
	}

	return parseScoredFragments(result.Data, s.className, documentID), nil
}

// Count returns the number of fragments stored for the document in its
// latest run.
func (s *FragmentStore) Count(ctx context.Context, documentID int64) (int64, error) {
	runID, ok, err := s.latestRun(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	meta := graphql.Field{
		Name:   "meta",
		Fields: []graphql.Field{{Name: "count"}},
	}

	result, err := s.client.GraphQL().Aggregate().
		WithClassName(s.className).
		WithWhere(s.runFilter(documentID, runID)).
		WithFields(meta).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count fragments: %v", err)
	}

	return parseCount(result.Data, s.className)
}

func parseLatestRun(data map[string]models.JSONObject, className string) (int64, bool, error) {
	agg, ok := data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, false, fmt.Errorf("unexpected aggregate response shape")
	}
	objects, ok := agg[className].([]interface{})
	if !ok || len(objects) == 0 {
		return 0, false, nil
	}
	objMap, ok := objects[0].(map[string]interface{})
	if !ok {
		return 0, false, fmt.Errorf("unexpected aggregate response shape")
	}
	runMap, ok := objMap["runId"].(map[string]interface{})
	if !ok {
		return 0, false, fmt.Errorf("unexpected aggregate response shape")
	}
	maximum, ok := runMap["maximum"].(float64)
	if !ok {
		// Weaviate reports a null maximum for an empty match set.
		return 0, false, nil
	}
	return int64(maximum), true, nil
}

func parseScoredFragments(data map[string]models.JSONObject, className string, documentID int64) []index.ScoredFragment {
	var scored []index.ScoredFragment
	getData, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := getData[className].([]interface{})
	if !ok {
		return nil
	}
	for _, obj := range objects {
		objMap, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		additional, _ := objMap["_additional"].(map[string]interface{})
		distance, _ := additional["distance"].(float64)
		chunkIndex, _ := objMap["chunkIndex"].(float64)
		text, _ := objMap["text"].(string)

		scored = append(scored, index.ScoredFragment{
			Fragment: index.Fragment{
				DocumentID: documentID,
				Index:      int(chunkIndex),
				Text:       text,
			},
			Distance: distance,
		})
	}
	return scored
}

func parseCount(data map[string]models.JSONObject, className string) (int64, error) {
	if agg, ok := data["Aggregate"].(map[string]interface{}); ok {
		if objects, ok := agg[className].([]interface{}); ok && len(objects) > 0 {
			if objMap, ok := objects[0].(map[string]interface{}); ok {
				if metaMap, ok := objMap["meta"].(map[string]interface{}); ok {
					if count, ok := metaMap["count"].(float64); ok {
						return int64(count), nil
					}
				}
			}
		}
	}
	return 0, fmt.Errorf("unexpected aggregate response shape")
}
