// Package formatting provides human-readable formatting and parsing utilities
// for common value types such as byte sizes and model responses.
package formatting

import (
	"fmt"
	"strconv"
	"strings"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders a byte count as a human-readable size.
func FormatBytes(size int64) string {
	value := float64(size)
	unit := 0

	for value >= 1024 && unit < len(byteUnits)-1 {
		value /= 1024
		unit++
	}

	if unit == 0 {
		return fmt.Sprintf("%d %s", size, byteUnits[unit])
	}

	return fmt.Sprintf("%.1f %s", value, byteUnits[unit])
}

// ParseBytes converts a human-readable size such as "50MB" or "1.5 GB"
// into a byte count. A bare number is treated as bytes.
func ParseBytes(s string) (int64, error) {
	input := strings.TrimSpace(strings.ToUpper(s))
	if input == "" {
		return 0, fmt.Errorf("empty size")
	}

	multiplier := int64(1)
	for i := len(byteUnits) - 1; i >= 0; i-- {
		if strings.HasSuffix(input, byteUnits[i]) {
			input = strings.TrimSpace(strings.TrimSuffix(input, byteUnits[i]))
			for range i {
				multiplier *= 1024
			}
			break
		}
	}

	value, err := strconv.ParseFloat(input, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}

	return int64(value * float64(multiplier)), nil
}
