package services

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// keyAlphabet excludes easily confused characters (0/O, 1/I/L) so keys stay
// readable when dictated over the phone.
const keyAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const keySegments = 3
const keySegmentLength = 4

// GenerateLicenseKey creates a human-presentable license key of the form
// PREFIX-XXXX-XXXX-XXXX using crypto/rand.
func GenerateLicenseKey(prefix string) (string, error) {
	if prefix == "" {
		prefix = "KG"
	}

	buf := make([]byte, keySegments*keySegmentLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	var b strings.Builder
	b.WriteString(strings.ToUpper(prefix))
	for i, c := range buf {
		if i%keySegmentLength == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(keyAlphabet[int(c)%len(keyAlphabet)])
	}

	return b.String(), nil
}
