package models

type Definition struct {
	Id          string         `json:"id"`
	Slug        string         `json:"slug,omitempty"`
	Title       string         `json:"title"`
	Icon        string         `json:"icon,omitempty"`
	Description string         `json:"description,omitempty"`
	Schema      string         `json:"schema,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

type Instance struct {
	Owner              string         `json:"owner"`
	RecognitionId      string         `json:"recognitionId"`
	Actor              string         `json:"actor,omitempty"`
	Note               string         `json:"note,omitempty"`
	TopicId            string         `json:"topicId,omitempty"`
	MessageId          string         `json:"messageId,omitempty"`
	ConsensusTimestamp string         `json:"consensusTimestamp,omitempty"`
	BatchIndex         int            `json:"batchIndex,omitempty"`
	Timestamp          int64          `json:"ts,omitempty"`
	Source             SignalSource   `json:"source,omitempty"`
	Meta               map[string]any `json:"meta,omitempty"`
}

// ResolvedRecognition is an Instance joined with its Definition.
type ResolvedRecognition struct {
	Owner      string      `json:"owner"`
	Actor      string      `json:"actor,omitempty"`
	Note       string      `json:"note,omitempty"`
	Definition *Definition `json:"definition"`
}

// DecodedRecognition carries exactly one of Definition or Instance, or neither when the payload is not
// recognition-shaped (Payload is then kept for fallback processing).
type DecodedRecognition struct {
	Definition *Definition
	Instance   *Instance
	Payload    map[string]any
}

type CacheStats struct {
	Definitions         int   `json:"definitions"`
	PendingInstances    int   `json:"pendingInstances"`
	MaxPendingInstances int   `json:"maxPendingInstances"`
	Evicted             int64 `json:"evicted"`
}

type CacheDebug struct {
	CacheStats
	DefinitionIds []string `json:"definitionIds"`
	PendingIds    []string `json:"pendingRecognitionIds"`
}
