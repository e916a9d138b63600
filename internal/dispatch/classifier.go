package dispatch

import "strings"

// FailureClass is the classifier's verdict on a provider send error.
type FailureClass int

const (
	// FailureHard is any unexplained provider error. The record is marked
	// failed and processing moves on.
	FailureHard FailureClass = iota
	// FailureNoCapability means the address cannot receive this kind of
	// message at all. The record is marked no_capability and the address is
	// suppressed.
	FailureNoCapability
	// FailureDisconnect means the channel's session dropped. The record is
	// requeued and the channel leaves the campaign's pool.
	FailureDisconnect
)

// Curated signature lists, matched case-insensitively as substrings of the
// provider's error text. Vendor wording varies; keep entries lowercase and
// specific enough not to swallow unrelated errors.
var (
	noCapabilitySignatures = []string{
		"not registered",
		"invalid number",
		"not a valid user",
		"recipient unavailable",
		"no account",
		"item-not-found",
		"unsupported recipient",
	}

	disconnectSignatures = []string{
		"not connected",
		"disconnected",
		"socket",
		"session not found",
		"session closed",
		"connection closed",
		"channel unavailable",
		"stream errored",
	}
)

// ClassifyFailure maps a provider error text to a failure class. The
// no-capability list is checked first: an address-level rejection is final
// even if the wording also mentions the connection.
func ClassifyFailure(errText string) FailureClass {
	lower := strings.ToLower(errText)

	for _, sig := range noCapabilitySignatures {
		if strings.Contains(lower, sig) {
			return FailureNoCapability
		}
	}
	for _, sig := range disconnectSignatures {
		if strings.Contains(lower, sig) {
			return FailureDisconnect
		}
	}
	return FailureHard
}
