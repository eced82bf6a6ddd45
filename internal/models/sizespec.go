package models

import (
	"fmt"
	"strconv"
	"strings"
)

// minDimension is the smallest non-zero box side accepted after parsing.
const minDimension = 10

// SizeSpec is a bounding box. A zero side leaves that axis unconstrained.
type SizeSpec struct {
	Width  uint
	Height uint
}

// ParseSizeSpec parses "WxH". Sides that are not numbers read as zero and
// non-zero sides below 10 are raised to 10.
func ParseSizeSpec(text string) SizeSpec {
	parts := strings.SplitN(text, "x", 2)
	spec := SizeSpec{Width: parseSide(parts[0])}
	if len(parts) > 1 {
		spec.Height = parseSide(parts[1])
	}
	return spec
}

func parseSide(s string) uint {
	s = strings.TrimSpace(s)
	// leading digits only, so "640px" reads as 640
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.ParseUint(s[:end], 10, 32)
	if err != nil {
		return 0
	}
	if n > 0 && n < minDimension {
		n = minDimension
	}
	return uint(n)
}

// IsZero reports the "no resizing" sentinel.
func (s SizeSpec) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

func (s SizeSpec) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}
