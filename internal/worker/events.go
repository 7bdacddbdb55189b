package worker

import (
	"encoding/json"
	"fmt"

	"folio/internal/config"
)

type IngestPayload struct {
	Path string `json:"path"`
	Wipe bool   `json:"wipe"`

	CorrelationID string `json:"correlation_id"`
}

// PublishIngest queues payload on the corpus ingestion topic.
func PublishIngest(p Publisher, payload IngestPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode ingest payload: %w", err)
	}
	if err := p.Publish(config.TopicIngestCorpus, body); err != nil {
		return fmt.Errorf("publish %s: %w", config.TopicIngestCorpus, err)
	}
	return nil
}
