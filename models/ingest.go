package models

import "time"

type Source struct {
	Name    string `json:"name"`
	TopicId string `json:"topicId"`
}

type IngestStats struct {
	Backfilled             int    `json:"backfilled"`
	Streamed               int    `json:"streamed"`
	Duplicates             int    `json:"duplicates"`
	Failed                 int    `json:"failed"`
	LastConsensusNs        string `json:"lastConsensusNs,omitempty"`
	LastActivity           int64  `json:"lastActivity,omitempty"`
	RecognitionDefinitions int    `json:"recognitionDefinitions,omitempty"`
	RecognitionInstances   int    `json:"recognitionInstances,omitempty"`
	RecognitionPending     int    `json:"recognitionPending,omitempty"`
}

type HealthStatus string

const (
	HealthStatus_Ok       HealthStatus = "ok"
	HealthStatus_Degraded HealthStatus = "degraded"
	HealthStatus_Idle     HealthStatus = "idle"
)

type SourceHealth struct {
	Status    HealthStatus `json:"status"`
	LastError string       `json:"lastError,omitempty"`
	IngestStats
}

// IngestResult summarizes one batch. MaxConsensus is empty when the batch carried no parseable timestamp.
type IngestResult struct {
	Inserted     int
	Duplicates   int
	Failed       int
	Evicted      int
	MaxConsensus string
}

type Health struct {
	Status  HealthStatus            `json:"status"`
	Sources map[string]SourceHealth `json:"sources"`
	Total   int                     `json:"total"`
	Failed  int                     `json:"failed"`
}

// A source is considered idle when it has seen no activity for this long.
const DefaultIdleAfter = 5 * time.Minute
