package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MediaDeviceIDKey is the settings key holding a cached media device id.
const MediaDeviceIDKey = "mediaDeviceId"

// Serial-number prefix to hardware model family. The analytics backend groups on these values;
// the tables must not change.
var (
	threeCharPrefixes = map[string]int{
		"346": 6,
		"446": 6,
		"708": 9,
		"710": 13,
		"508": 10,
	}
	fiveCharPrefixes = map[string]int{
		"70617": 8,
		"70619": 11,
	}
)

// ErrInvalidInput is returned for serials shorter than five characters and unparseable cached overrides.
var ErrInvalidInput = errors.New("identity: invalid input")

// UnresolvedIdentityError reports a serial whose prefix is in neither table.
type UnresolvedIdentityError struct {
	Serial string
}

func (e *UnresolvedIdentityError) Error() string {
	return fmt.Sprintf("identity: could not resolve media device id from serial %q", e.Serial)
}

// MediaDeviceIDFromSerial maps a serial to its media device id using the 3-character prefix table,
// then the 5-character prefix table. Lengths and prefixes count characters, not bytes.
func MediaDeviceIDFromSerial(serial string) (int, error) {
	r := []rune(serial)
	if len(r) < 5 {
		return 0, fmt.Errorf("%w: serial %q shorter than 5 characters", ErrInvalidInput, serial)
	}
	if id, ok := threeCharPrefixes[string(r[:3])]; ok {
		return id, nil
	}
	if id, ok := fiveCharPrefixes[string(r[:5])]; ok {
		return id, nil
	}
	return 0, &UnresolvedIdentityError{Serial: serial}
}

func parseMediaDeviceID(cached string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(cached))
	if err != nil {
		return 0, fmt.Errorf("%w: cached %s %q: %v", ErrInvalidInput, MediaDeviceIDKey, cached, err)
	}
	return id, nil
}

// FormatAsUserName returns registerNumber when it is non-empty, otherwise "<mediaDeviceID>:<serial>".
func FormatAsUserName(registerNumber, serial string, mediaDeviceID int) string {
	if registerNumber != "" {
		return registerNumber
	}
	return strconv.Itoa(mediaDeviceID) + ":" + serial
}
