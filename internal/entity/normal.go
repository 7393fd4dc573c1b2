package entity

import (
	"strconv"
	"strings"
)

// ComputeIsNormal decides whether a measured value sits inside its
// reference range. The range must look like "<min>-<max>" with both halves
// parsing as real numbers; the value is reduced to its numeric core before
// parsing. Any parse failure yields nil (unknown) rather than an error:
// lab sheets are full of ranges like "<15" or "отриц." and those simply
// carry no verdict.
func ComputeIsNormal(value, refRange string) *bool {
	parts := strings.SplitN(refRange, "-", 2)
	if len(parts) != 2 {
		return nil
	}
	min, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil
	}
	max, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil
	}

	v, err := strconv.ParseFloat(numericCore(value), 64)
	if err != nil {
		return nil
	}

	normal := min <= v && v <= max
	return &normal
}

// numericCore strips everything but digits and dots, so "145 г/л" or
// "7,42*" still compare. Commas are treated as decimal points first.
func numericCore(s string) string {
	s = strings.ReplaceAll(s, ",", ".")
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
