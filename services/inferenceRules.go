package services

import (
	"strings"

	"github.com/trustmesh/go-signals/models"
)

// InferenceRule classifies a decoded payload. Rules run in order and the first match wins.
type InferenceRule struct {
	Name  string
	Infer func(payload map[string]any) (models.SignalType, bool)
}

var knownKinds = map[string]models.SignalType{
	string(models.SignalType_ContactRequest):        models.SignalType_ContactRequest,
	string(models.SignalType_ContactAccept):         models.SignalType_ContactAccept,
	string(models.SignalType_TrustAllocate):         models.SignalType_TrustAllocate,
	string(models.SignalType_TrustRevoke):           models.SignalType_TrustRevoke,
	string(models.SignalType_RecognitionMint):       models.SignalType_RecognitionMint,
	string(models.SignalType_RecognitionDefinition): models.SignalType_RecognitionDefinition,
	string(models.SignalType_ProfileUpdate):         models.SignalType_ProfileUpdate,
}

var schemaTypes = map[string]models.SignalType{
	"hcs-11-recognition-definition": models.SignalType_RecognitionDefinition,
	"hcs-11-recognition-instance":   models.SignalType_RecognitionMint,
	"hcs-11-contact-request":        models.SignalType_ContactRequest,
	"hcs-11-trust-allocation":       models.SignalType_TrustAllocate,
}

var inferenceRules = []InferenceRule{
	{"explicit-type", inferExplicitType},
	{"kind", inferKind},
	{"contact-shape", inferContactShape},
	{"recognition-shape", inferRecognitionShape},
	{"profile-shape", inferProfileShape},
	{"trust-shape", inferTrustShape},
	{"hcs11-schema", inferSchema},
	{"definition-shape", inferDefinitionShape},
}

// InferenceRules returns the ordered rule list.
func InferenceRules() []InferenceRule {
	rules := make([]InferenceRule, len(inferenceRules))
	copy(rules, inferenceRules)
	return rules
}

// InferSignalType applies the rules in order and returns the first match.
func InferSignalType(payload map[string]any) (models.SignalType, string, bool) {
	for _, rule := range inferenceRules {
		if signalType, ok := rule.Infer(payload); ok {
			return signalType, rule.Name, true
		}
	}
	return "", "", false
}

func inferExplicitType(payload map[string]any) (models.SignalType, bool) {
	if signalType, ok := payload["type"].(string); ok && len(signalType) > 0 {
		return models.SignalType(signalType), true
	}
	return "", false
}

// inferKind accepts any casing of the known kinds and passes unknown kinds through unchanged.
func inferKind(payload map[string]any) (models.SignalType, bool) {
	kind, ok := payload["kind"].(string)
	if !ok || len(kind) == 0 {
		return "", false
	}
	if signalType, found := knownKinds[strings.ToUpper(kind)]; found {
		return signalType, true
	}
	return models.SignalType(kind), true
}

// A contact request names both parties and carries no amount. Recognition payloads can also name
// from/to, so a recognition reference disqualifies the match.
func inferContactShape(payload map[string]any) (models.SignalType, bool) {
	if hasAll(payload, "from", "to") && !has(payload, "amount", "recognitionId") {
		return models.SignalType_ContactRequest, true
	}
	return "", false
}

func inferRecognitionShape(payload map[string]any) (models.SignalType, bool) {
	if has(payload, "recognitionId", "owner") {
		return models.SignalType_RecognitionMint, true
	}
	return "", false
}

func inferProfileShape(payload map[string]any) (models.SignalType, bool) {
	if has(payload, "displayName", "avatar", "profile") {
		return models.SignalType_ProfileUpdate, true
	}
	return "", false
}

func inferTrustShape(payload map[string]any) (models.SignalType, bool) {
	if hasAll(payload, "amount", "to") {
		return models.SignalType_TrustAllocate, true
	}
	return "", false
}

func inferSchema(payload map[string]any) (models.SignalType, bool) {
	if schema, ok := payload["schema"].(string); ok {
		signalType, found := schemaTypes[schema]
		return signalType, found
	}
	return "", false
}

func inferDefinitionShape(payload map[string]any) (models.SignalType, bool) {
	if hasAll(payload, "slug", "title") {
		return models.SignalType_RecognitionDefinition, true
	}
	return "", false
}

// Numeric message types carried by the versioned "hcs":"21" envelope.
var envelopeTypes = map[int]models.SignalType{
	0: models.SignalType_ContactRequest,
	1: models.SignalType_ContactAccept,
	2: models.SignalType_TrustAllocate,
	3: models.SignalType_TrustRevoke,
	4: models.SignalType_RecognitionMint,
	5: models.SignalType_ProfileUpdate,
	6: models.SignalType_RecognitionDefinition,
}

// envelope is the unwrapped form of a versioned message.
type envelope struct {
	signalType models.SignalType
	from       string
	payload    map[string]any
}

func unwrapEnvelope(decoded map[string]any) (*envelope, bool) {
	if version, _ := decoded["hcs"].(string); version != "21" {
		return nil, false
	}
	numericType, ok := numberField(decoded, "type")
	if !ok {
		return nil, false
	}
	signalType, found := envelopeTypes[int(numericType)]
	if !found || numericType != float64(int(numericType)) {
		signalType = models.SignalType_Unknown
	}
	inner := objectField(decoded, "payload")
	if inner == nil {
		inner = map[string]any{}
	}
	return &envelope{signalType, stringField(decoded, "from"), inner}, true
}
