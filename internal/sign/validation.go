package sign

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation constants.
const (
	minDeviceIDLength = 8
	maxDeviceIDLength = 20
	maxNameLength     = 100

	deviceIDPattern = `^[A-Za-z0-9]{8,20}$`
)

var deviceIDRegex = regexp.MustCompile(deviceIDPattern)

// validProtocolVersions is built once for O(1) lookups.
var validProtocolVersions map[ProtocolVersion]struct{}

func init() {
	validProtocolVersions = make(map[ProtocolVersion]struct{}, len(AllProtocolVersions()))
	for _, v := range AllProtocolVersions() {
		validProtocolVersions[v] = struct{}{}
	}
}

// ValidateDeviceID checks that an identifier matches the hardware format:
// 8 to 20 alphanumeric characters.
func ValidateDeviceID(deviceID string) error {
	if len(deviceID) < minDeviceIDLength || len(deviceID) > maxDeviceIDLength {
		return fmt.Errorf("%w: %q must be %d-%d characters",
			ErrInvalidDeviceID, deviceID, minDeviceIDLength, maxDeviceIDLength)
	}
	if !deviceIDRegex.MatchString(deviceID) {
		return fmt.Errorf("%w: %q must be alphanumeric", ErrInvalidDeviceID, deviceID)
	}
	return nil
}

// ValidateProtocolVersion checks that a protocol version is supported.
func ValidateProtocolVersion(v ProtocolVersion) error {
	if _, ok := validProtocolVersions[v]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidProtocolVersion, v)
}

// ValidateName checks that a sign name is present and within limits.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// Validate performs full validation on a sign record.
// Returns the first validation failure found.
func Validate(s *Sign) error {
	if err := ValidateDeviceID(s.DeviceID); err != nil {
		return err
	}
	if err := ValidateName(s.Name); err != nil {
		return err
	}
	return ValidateProtocolVersion(s.ProtocolVersion)
}
