package config

const (
	// TopicIngestCorpus carries documents to be loaded into the vector index.
	TopicIngestCorpus = "ingest.corpus"

	// ChannelBackend is the channel the API process consumes on.
	ChannelBackend = "backend"
)
