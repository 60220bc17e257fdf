package models

type BondedContact struct {
	PeerId     string `json:"peerId"`
	Handle     string `json:"handle"`
	BondedAt   int64  `json:"bondedAt"`
	TrustLevel int    `json:"trustLevel,omitempty"`
}

type TrustStats struct {
	AllocatedOut int `json:"allocatedOut"`
	ReceivedIn   int `json:"receivedIn"`
	Cap          int `json:"cap"`
}

type TrustLevel struct {
	AllocatedTo  int `json:"allocatedTo"`
	ReceivedFrom int `json:"receivedFrom"`
}

type PersonalMetrics struct {
	BondedContacts   int `json:"bondedContacts"`
	TrustAllocated   int `json:"trustAllocated"`
	TrustCapacity    int `json:"trustCapacity"`
	RecognitionOwned int `json:"recognitionOwned"`
}

// TrustCircleSize is the number of outbound trust slots. Callers enforce it; folds only report it.
const TrustCircleSize = 9
