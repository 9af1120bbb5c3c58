package models

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"regexp"
	"time"
)

const (
	BookingReferencePrefix = "BK"
	TicketNumberPrefix     = "TK"

	referenceSuffixLength = 8
	// no 0/O or 1/I so references can be read over the phone
	referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var referenceRegex = regexp.MustCompile(`^(BK|TK)-\d{8}-\d{6}-[A-HJ-NP-Z2-9]{8}$`)

// ErrReferenceGeneration means no random suffix could be read
var ErrReferenceGeneration = errors.New("reference generation failed")

var randomSource io.Reader = rand.Reader

// GenerateBookingReference returns a reference like BK-20240101-093000-7KQ2ZDW4
func GenerateBookingReference() (string, error) {
	return generateReference(BookingReferencePrefix, time.Now())
}

// GenerateTicketNumber returns a ticket number like TK-20240101-093000-M4PX8AH9
func GenerateTicketNumber() (string, error) {
	return generateReference(TicketNumberPrefix, time.Now())
}

func generateReference(prefix string, now time.Time) (string, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("20060102-150405"), suffix), nil
}

func randomSuffix() (string, error) {
	suffix := make([]byte, referenceSuffixLength)
	max := big.NewInt(int64(len(referenceAlphabet)))
	for i := range suffix {
		n, err := rand.Int(randomSource, max)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrReferenceGeneration, err)
		}
		suffix[i] = referenceAlphabet[n.Int64()]
	}
	return string(suffix), nil
}

// IsValidReference reports whether s has the booking/ticket reference shape.
func IsValidReference(s string) bool {
	return referenceRegex.MatchString(s)
}
