package vector

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// ClientAdapter is the SchemaClient EnsureSchema runs against in production.
// It only touches the schema endpoints EnsureSchema needs to create the
// DocumentEmbedding class or add the chunkId and content properties an
// existing class lacks. Errors name the class they concern.
type ClientAdapter struct {
	client *weaviate.Client
}

func NewClientAdapter(client *weaviate.Client) *ClientAdapter {
	return &ClientAdapter{client: client}
}

func (a *ClientAdapter) ClassExists(ctx context.Context, className string) (bool, error) {
	ok, err := a.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
	if err != nil {
		return false, fmt.Errorf("weaviate class %s: %w", className, err)
	}
	return ok, nil
}

func (a *ClientAdapter) CreateClass(ctx context.Context, class *models.Class) error {
	if err := a.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create weaviate class %s: %w", class.Class, err)
	}
	return nil
}

func (a *ClientAdapter) GetClass(ctx context.Context, className string) (*models.Class, error) {
	class, err := a.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("get weaviate class %s: %w", className, err)
	}
	return class, nil
}

func (a *ClientAdapter) AddProperty(ctx context.Context, className string, property *models.Property) error {
	err := a.client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
	if err != nil {
		return fmt.Errorf("add %s to weaviate class %s: %w", property.Name, className, err)
	}
	return nil
}
