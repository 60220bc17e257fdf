package services

import (
	"fmt"
	"strings"

	"github.com/trustmesh/go-signals/common/consensus"
	"github.com/trustmesh/go-signals/models"
)

type recognitionKind int

const (
	recognitionKind_Unknown recognitionKind = iota
	recognitionKind_Definition
	recognitionKind_Instance
)

var definitionFields = []string{"title", "description", "icon", "slug", "schema", "criteria"}
var instanceFields = []string{"owner", "issuer", "issuedAt", "note"}

// DecodeRecognition classifies a recognition-topic message. The result carries a Definition, an Instance,
// or neither. A recognition-shaped payload missing its required fields yields neither.
func DecodeRecognition(raw *models.RawMessage) models.DecodedRecognition {
	if raw == nil {
		return models.DecodedRecognition{}
	}
	payload := decodePayload(raw.Message)
	if payload == nil {
		return models.DecodedRecognition{}
	}
	switch classifyRecognition(payload) {
	case recognitionKind_Definition:
		return models.DecodedRecognition{Definition: coerceDefinition(payload), Payload: payload}
	case recognitionKind_Instance:
		return models.DecodedRecognition{Instance: coerceInstance(raw, payload), Payload: payload}
	}
	return models.DecodedRecognition{Payload: payload}
}

func IsDefinition(decoded models.DecodedRecognition) bool {
	return decoded.Definition != nil
}

func IsInstance(decoded models.DecodedRecognition) bool {
	return decoded.Instance != nil
}

// classifyRecognition runs three strategies in order: explicit discriminators, known schemas and
// shapes, then a field score.
func classifyRecognition(payload map[string]any) recognitionKind {
	if kind := explicitRecognitionKind(payload); kind != recognitionKind_Unknown {
		return kind
	}
	if schema, _ := payload["schema"].(string); schema == "hcs-11-recognition-definition" {
		return recognitionKind_Definition
	} else if schema == "hcs-11-recognition-instance" {
		return recognitionKind_Instance
	}
	if hasAll(payload, "slug", "title") && !has(payload, "owner") {
		return recognitionKind_Definition
	}
	if hasAll(payload, "owner", "recognitionId") {
		return recognitionKind_Instance
	}
	definitionScore, instanceScore := fieldScore(payload, definitionFields), fieldScore(payload, instanceFields)
	if definitionScore > instanceScore && definitionScore >= 2 {
		return recognitionKind_Definition
	}
	if _, found := payload["owner"]; found || (has(payload, "recognitionId") && has(payload, "to", "recipient")) {
		return recognitionKind_Instance
	}
	return recognitionKind_Unknown
}

// explicitRecognitionKind matches discriminators case-insensitively and by substring, since producers
// have used RECOGNITION_DEFINITION, recognition-definition, HCS11_DEF, RECOGNITION_MINT, HCS11_INSTANCE...
func explicitRecognitionKind(payload map[string]any) recognitionKind {
	for _, key := range []string{"kind", "type", "messageType"} {
		value, ok := payload[key].(string)
		if !ok {
			continue
		}
		value = strings.ToUpper(value)
		switch {
		case strings.Contains(value, "DEFINITION"), value == "HCS11_DEF":
			return recognitionKind_Definition
		case strings.Contains(value, "MINT"), strings.Contains(value, "INSTANCE"):
			return recognitionKind_Instance
		}
	}
	return recognitionKind_Unknown
}

func fieldScore(payload map[string]any, fields []string) int {
	score := 0
	for _, field := range fields {
		if _, found := payload[field]; found {
			score++
		}
	}
	return score
}

func coerceDefinition(payload map[string]any) *models.Definition {
	id := stringField(payload, "id")
	if len(id) == 0 {
		return nil
	}
	title := stringField(payload, "title", "name", "slug")
	if len(title) == 0 {
		title = "Untitled Recognition"
	}
	return &models.Definition{
		Id:          id,
		Slug:        stringField(payload, "slug"),
		Title:       title,
		Icon:        stringField(payload, "icon", "emoji"),
		Description: stringField(payload, "description", "desc"),
		Schema:      stringField(payload, "schema"),
		Meta:        payload,
	}
}

func coerceInstance(raw *models.RawMessage, payload map[string]any) *models.Instance {
	owner := stringField(payload, "owner", "target", "to", "recipient")
	recognitionId := stringField(payload, "recognitionId")
	if len(owner) == 0 || len(recognitionId) == 0 {
		return nil
	}
	instance := &models.Instance{
		Owner:              owner,
		RecognitionId:      recognitionId,
		Actor:              stringField(payload, "actor", "issuer", "from", "sender"),
		Note:               stringField(payload, "note", "reason", "message"),
		TopicId:            raw.TopicId,
		ConsensusTimestamp: raw.ConsensusTimestamp,
		Meta:               payload,
	}
	if raw.SequenceNumber > 0 {
		instance.MessageId = fmt.Sprintf("%s/%d", raw.TopicId, raw.SequenceNumber)
	}
	if millis, ok := consensus.ToMillis(raw.ConsensusTimestamp); ok {
		instance.Timestamp = millis
	} else if issuedAt, ok := numberField(payload, "timestamp"); ok {
		instance.Timestamp = int64(issuedAt)
	}
	return instance
}
