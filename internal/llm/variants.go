package llm

import "strings"

// DeliveryMode describes how a model family returns completions.
type DeliveryMode string

const (
	// DeliveryBulk means the model only supports non-incremental responses.
	DeliveryBulk DeliveryMode = "bulk"
	// DeliveryStreamed means the model supports incremental delivery.
	DeliveryStreamed DeliveryMode = "streamed"
)

// Variant captures the capability quirks of a model family that the turn
// engine needs to consult when assembling requests.
type Variant struct {
	SupportsSystemRole bool
	Delivery           DeliveryMode
}

// reasoningPrefixes are model-id prefixes for families that reject a system
// role and only answer in bulk.
var reasoningPrefixes = []string{"o1", "o1-mini", "o1-preview"}

// VariantFor returns the capability descriptor for a model id. Unknown models
// get the permissive default: system role allowed, streamed delivery.
func VariantFor(model string) Variant {
	id := strings.ToLower(strings.TrimSpace(model))
	// Vendor namespaces don't change capabilities
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	for _, prefix := range reasoningPrefixes {
		if id == prefix || strings.HasPrefix(id, prefix+"-") {
			return Variant{SupportsSystemRole: false, Delivery: DeliveryBulk}
		}
	}
	return Variant{SupportsSystemRole: true, Delivery: DeliveryStreamed}
}
