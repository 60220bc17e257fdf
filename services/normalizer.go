package services

import (
	"fmt"
	"time"

	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/trustmesh/go-signals/common/consensus"
	"github.com/trustmesh/go-signals/models"
)

var actorKeys = []string{"actor", "from", "issuer", "sender"}
var targetKeys = []string{"target", "to", "recipient", "owner", "contactId"}

// Normalizer converts mirror envelopes into canonical signal events. It holds no mutable state and is
// safe for concurrent use.
type Normalizer struct {
	logger    models.Logger
	validator *validator.Validate
	now       func() time.Time
}

func NewNormalizer(logger models.Logger) *Normalizer {
	return &Normalizer{logger, validator.New(), time.Now}
}

// Normalize returns nil for anything that cannot be attributed and classified.
func (n *Normalizer) Normalize(raw *models.RawMessage, source models.SignalSource) *models.SignalEvent {
	return n.NormalizeAt(raw, source, 0)
}

// NormalizeAt is Normalize for the index-th message of a batch. The index only feeds the synthetic id of
// messages without a sequence number.
func (n *Normalizer) NormalizeAt(raw *models.RawMessage, source models.SignalSource, index int) *models.SignalEvent {
	if raw == nil {
		return nil
	}
	decoded := decodePayload(raw.Message)
	if decoded == nil {
		n.logger.Debugf("normalizer: undecodable message on %s at %s", raw.TopicId, raw.ConsensusTimestamp)
		return nil
	}

	var signalType models.SignalType
	var actor, target string
	var payload map[string]any
	if env, ok := unwrapEnvelope(decoded); ok {
		signalType = env.signalType
		payload = env.payload
		actor = env.from
		if len(actor) == 0 {
			actor = extractActor(payload, signalType)
		}
		target = stringField(payload, targetKeys...)
	} else {
		payload = decoded
		if inferred, _, found := InferSignalType(decoded); found {
			signalType = inferred
		}
		actor = extractActor(decoded, signalType)
		target = stringField(decoded, targetKeys...)
		if nested := objectField(decoded, "payload"); len(target) == 0 && nested != nil {
			target = stringField(nested, targetKeys...)
		}
	}
	if len(signalType) == 0 || len(actor) == 0 {
		n.logger.Debugf("normalizer: skipping message on %s at %s: type=%q actor=%q", raw.TopicId, raw.ConsensusTimestamp, signalType, actor)
		return nil
	}

	status := models.SignalStatus_Onchain
	timestamp, ok := consensus.ToMillis(raw.ConsensusTimestamp)
	if !ok {
		timestamp = n.now().UnixMilli()
		status = models.SignalStatus_Error
	}
	if signalType == models.SignalType_Unknown {
		status = models.SignalStatus_Error
	}

	event := &models.SignalEvent{
		Id:                 n.eventId(raw, index),
		Type:               signalType,
		Class:              models.ClassForType(signalType),
		Actor:              actor,
		Target:             target,
		Timestamp:          timestamp,
		ConsensusTimestamp: raw.ConsensusTimestamp,
		TopicId:            raw.TopicId,
		Source:             source,
		Status:             status,
		Payload:            payload,
	}
	if err := n.validator.Struct(event); err != nil {
		n.logger.Debugf("normalizer: invalid event %s: %v", event.Id, err)
		return nil
	}
	return event
}

// NormalizeBatch drops messages that do not normalize.
func (n *Normalizer) NormalizeBatch(raws []*models.RawMessage, source models.SignalSource) []*models.SignalEvent {
	events := make([]*models.SignalEvent, 0, len(raws))
	for idx, raw := range raws {
		if event := n.NormalizeAt(raw, source, idx); event != nil {
			events = append(events, event)
		}
	}
	return events
}

// eventId is "{topicId}/{sequenceNumber}". Without a sequence number the consensus timestamp and batch
// index stand in so that a re-fetch of the same page yields the same id.
func (n *Normalizer) eventId(raw *models.RawMessage, index int) string {
	if raw.SequenceNumber > 0 {
		return fmt.Sprintf("%s/%d", raw.TopicId, raw.SequenceNumber)
	}
	return fallbackEventId(raw.TopicId, raw.ConsensusTimestamp, index)
}

// fallbackEventId identifies a message without a sequence number. It is stable across re-deliveries of
// the same page as long as the consensus timestamp is known.
func fallbackEventId(topicId, consensusTs string, index int) string {
	if len(consensusTs) > 0 {
		return fmt.Sprintf("%s/ts-%s-%d", topicId, consensusTs, index)
	}
	return fmt.Sprintf("%s/local-%s", topicId, uuid.NewString())
}

// NewLocalSignal builds an event originated by this process that the ledger has not confirmed yet.
func NewLocalSignal(signalType models.SignalType, actor, target string, payload map[string]any) *models.SignalEvent {
	consensusTs := consensus.Now()
	timestamp, _ := consensus.ToMillis(consensusTs)
	return &models.SignalEvent{
		Id:                 "local/" + uuid.NewString(),
		Type:               signalType,
		Class:              models.ClassForType(signalType),
		Actor:              actor,
		Target:             target,
		Timestamp:          timestamp,
		ConsensusTimestamp: consensusTs,
		Source:             models.SignalSource_HcsCached,
		Status:             models.SignalStatus_Local,
		Payload:            payload,
	}
}

func extractActor(payload map[string]any, signalType models.SignalType) string {
	if actor := stringField(payload, actorKeys...); len(actor) > 0 {
		return actor
	}
	// Profile updates are self-authored.
	if signalType == models.SignalType_ProfileUpdate {
		return stringField(payload, "owner")
	}
	return ""
}
