package logger

import "strings"

// RedactAddress masks a recipient address for safe logging.
// "+15551234567" → "+1555***4567"
// Addresses too short to mask meaningfully are fully masked.
func RedactAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	digits := strings.TrimPrefix(addr, "+")
	if len(digits) < 8 {
		return "***"
	}
	prefix := ""
	if strings.HasPrefix(addr, "+") {
		prefix = "+"
	}
	return prefix + digits[:4] + "***" + digits[len(digits)-4:]
}
