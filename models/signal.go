package models

type SignalType string

const (
	SignalType_ContactRequest        SignalType = "CONTACT_REQUEST"
	SignalType_ContactAccept         SignalType = "CONTACT_ACCEPT"
	SignalType_TrustAllocate         SignalType = "TRUST_ALLOCATE"
	SignalType_TrustRevoke           SignalType = "TRUST_REVOKE"
	SignalType_RecognitionMint       SignalType = "RECOGNITION_MINT"
	SignalType_RecognitionDefinition SignalType = "RECOGNITION_DEFINITION"
	SignalType_ProfileUpdate         SignalType = "PROFILE_UPDATE"
	SignalType_Unknown               SignalType = "UNKNOWN"
)

type SignalClass string

const (
	SignalClass_Contact     SignalClass = "contact"
	SignalClass_Trust       SignalClass = "trust"
	SignalClass_Recognition SignalClass = "recognition"
	SignalClass_System      SignalClass = "system"
)

type SignalStatus string

const (
	SignalStatus_Onchain SignalStatus = "onchain"
	SignalStatus_Local   SignalStatus = "local"
	SignalStatus_Error   SignalStatus = "error"
)

// SignalSource records whether an event was retrieved live or replayed from persisted history.
type SignalSource string

const (
	SignalSource_Hcs       SignalSource = "hcs"
	SignalSource_HcsCached SignalSource = "hcs-cached"
)

// SignalEvent is the canonical, immutable form of a ledger message. Corrections are new events.
type SignalEvent struct {
	Id                 string         `json:"id" validate:"required"`
	Type               SignalType     `json:"type" validate:"required"`
	Class              SignalClass    `json:"class" validate:"required,oneof=contact trust recognition system"`
	Actor              string         `json:"actor" validate:"required"`
	Target             string         `json:"target,omitempty"`
	Timestamp          int64          `json:"ts" validate:"gte=0"`
	ConsensusTimestamp string         `json:"consensusTimestamp,omitempty"`
	TopicId            string         `json:"topicId"`
	Source             SignalSource   `json:"source" validate:"required,oneof=hcs hcs-cached"`
	Status             SignalStatus   `json:"status" validate:"required,oneof=onchain local error"`
	Payload            map[string]any `json:"payload,omitempty"`
}

// RawMessage is the mirror transport envelope. Message holds base64 or raw JSON text.
type RawMessage struct {
	TopicId            string `json:"topic_id"`
	ConsensusTimestamp string `json:"consensus_timestamp"`
	SequenceNumber     int64  `json:"sequence_number,omitempty"`
	Message            string `json:"message"`
}

func ClassForType(signalType SignalType) SignalClass {
	switch signalType {
	case SignalType_ContactRequest, SignalType_ContactAccept:
		return SignalClass_Contact
	case SignalType_TrustAllocate, SignalType_TrustRevoke:
		return SignalClass_Trust
	case SignalType_RecognitionMint, SignalType_RecognitionDefinition:
		return SignalClass_Recognition
	default:
		return SignalClass_System
	}
}

type StoreSummary struct {
	CountsByType   map[SignalType]int   `json:"countsByType"`
	CountsBySource map[SignalSource]int `json:"countsBySource"`
	Total          int                  `json:"total"`
	LastTimestamp  int64                `json:"lastTs"`
}
