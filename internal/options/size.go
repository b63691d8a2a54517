package options

import (
	"strconv"
	"strings"

	"microharness/internal/errors"
)

// sizeValue implements pflag.Value for the harness's size-style flags
// (-B, -C, -D, -I), which accept an optional k/K/m/M/g/G suffix
// (powers of 1024) the way the original harness's size arguments do.
type sizeValue struct {
	dst *int64
}

func newSizeValue(dst *int64, def int64) *sizeValue {
	*dst = def
	return &sizeValue{dst: dst}
}

func (v *sizeValue) String() string {
	if v.dst == nil {
		return "0"
	}
	return strconv.FormatInt(*v.dst, 10)
}

func (v *sizeValue) Type() string { return "size" }

func (v *sizeValue) Set(s string) error {
	n, err := parseSize(s)
	if err != nil {
		return err
	}
	*v.dst = n
	return nil
}

// parseSize parses a base-10 integer with an optional trailing size
// suffix: k/K = 1<<10, m/M = 1<<20, g/G = 1<<30.
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.Config("empty size value")
	}

	mult := int64(1)
	suffix := s[len(s)-1]
	switch suffix {
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.Config("invalid size value %q: %v", s, err)
	}
	return n * mult, nil
}
