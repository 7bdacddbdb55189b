package weaviate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"folio/internal/retrieval"
	"folio/internal/vector"
)

// chunkNamespace seeds the UUIDv5 object ids derived from chunk ids.
var chunkNamespace = uuid.MustParse("6f1c2a8e-4d0b-5c39-9a57-1e2f3b4c5d6e")

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// ObjectID maps a chunk id onto the Weaviate object UUID.
func ObjectID(chunkID string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(chunkID)).String()
}

func (s *Store) Insert(ctx context.Context, c retrieval.Chunk) (bool, error) {
	id := ObjectID(c.ID)

	exists, err := s.client.Data().Checker().
		WithClassName(vector.ClassName).
		WithID(id).
		Do(ctx)
	if err != nil {
		return false, fmt.Errorf("check object: %w", err)
	}
	if exists {
		return false, nil
	}

	_, err = s.client.Data().Creator().
		WithClassName(vector.ClassName).
		WithID(id).
		WithProperties(map[string]interface{}{
			"chunkId": c.ID,
			"content": c.Content,
		}).
		WithVector(c.Embedding).
		Do(ctx)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Nearest(ctx context.Context, vec []float32, k int) ([]string, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithLimit(k).
		WithFields(graphql.Field{Name: "content"}).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if err := graphqlErr(res); err != nil {
		return nil, err
	}

	contents := make([]string, 0, k)
	get, _ := res.Data["Get"].(map[string]interface{})
	objects, _ := get[vector.ClassName].([]interface{})
	for _, o := range objects {
		props, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		if content, ok := props["content"].(string); ok {
			contents = append(contents, content)
		}
	}
	return contents, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if err := graphqlErr(res); err != nil {
		return 0, err
	}

	agg, _ := res.Data["Aggregate"].(map[string]interface{})
	groups, _ := agg[vector.ClassName].([]interface{})
	if len(groups) == 0 {
		return 0, nil
	}
	group, _ := groups[0].(map[string]interface{})
	meta, _ := group["meta"].(map[string]interface{})
	count, _ := meta["count"].(float64)
	return int(count), nil
}

// Wipe batch-deletes every object of the class. Weaviate caps one batch
// delete at its query limit, so it repeats until a batch comes back short.
func (s *Store) Wipe(ctx context.Context) (int, error) {
	removed := 0
	for {
		res, err := s.client.Batch().ObjectsBatchDeleter().
			WithClassName(vector.ClassName).
			WithOutput("minimal").
			WithWhere(filters.Where().
				WithPath([]string{"chunkId"}).
				WithOperator(filters.Like).
				WithValueText("*")).
			Do(ctx)
		if err != nil {
			return removed, err
		}
		if res == nil || res.Results == nil {
			return removed, nil
		}

		removed += int(res.Results.Successful)
		if res.Results.Successful == 0 || res.Results.Matches < res.Results.Limit {
			return removed, nil
		}
	}
}

func graphqlErr(res *models.GraphQLResponse) error {
	if len(res.Errors) == 0 {
		return nil
	}
	return fmt.Errorf("graphql error: %s", res.Errors[0].Message)
}
