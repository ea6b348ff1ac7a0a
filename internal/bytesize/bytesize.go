// Package bytesize parses the human-readable size strings used for the
// emulator's quota settings (max_message_size, max_entity_size).
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a byte count decoded from config values like "1Gi",
// "256KB", or a plain number of bytes.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

// Unit suffixes, lowercase. "k"/"kb" are decimal, "ki"/"kib" binary.
var units = map[string]ByteSize{
	"": B, "b": B,
	"k": KB, "kb": KB, "m": MB, "mb": MB, "g": GB, "gb": GB, "t": TB, "tb": TB,
	"ki": KiB, "kib": KiB, "mi": MiB, "mib": MiB, "gi": GiB, "gib": GiB, "ti": TiB, "tib": TiB,
}

// ParseByteSize parses a size string: an optionally fractional number
// followed by an optional unit suffix, with whitespace tolerated.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size string")
	}

	split := len(s)
	for split > 0 {
		c := s[split-1]
		if c >= '0' && c <= '9' || c == '.' {
			break
		}
		split--
	}
	numStr := strings.TrimSpace(s[:split])
	unit := strings.ToLower(strings.TrimSpace(s[split:]))

	multiplier, ok := units[unit]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit: %q", s[split:])
	}
	num, err := strconv.ParseFloat(numStr, 64)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid byte size format: %q", s)
	}
	return ByteSize(num * float64(multiplier)), nil
}

// UnmarshalText lets ByteSize fields decode directly from config files.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// String renders the size in the largest binary unit that fits.
func (b ByteSize) String() string {
	switch {
	case b >= TiB:
		return fmt.Sprintf("%.2fTiB", float64(b)/float64(TiB))
	case b >= GiB:
		return fmt.Sprintf("%.2fGiB", float64(b)/float64(GiB))
	case b >= MiB:
		return fmt.Sprintf("%.2fMiB", float64(b)/float64(MiB))
	case b >= KiB:
		return fmt.Sprintf("%.2fKiB", float64(b)/float64(KiB))
	default:
		return fmt.Sprintf("%dB", b)
	}
}
