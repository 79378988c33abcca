package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// TicketCode builds the code printed on a registration's ticket, e.g.
// "EVT-1A2B3C-9F8E7D6C".
func TicketCode(eventID string) (string, error) {
	suffix, err := GenerateCode(4)
	if err != nil {
		return "", fmt.Errorf("generate ticket code: %w", err)
	}
	prefix := strings.ToUpper(eventID)
	if len(prefix) > 6 {
		prefix = prefix[len(prefix)-6:]
	}
	return fmt.Sprintf("EVT-%s-%s", prefix, suffix), nil
}
