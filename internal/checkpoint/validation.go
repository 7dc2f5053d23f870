package checkpoint

import (
	"fmt"
	"sort"
	"strings"
)

// ValidateTensorName checks tensor names for path traversal and malicious
// patterns.
func ValidateTensorName(name string) error {
	invalid := func(details string) error {
		return &ValidationError{Type: "invalid_name", Tensor: name, Details: details, Err: ErrInvalidTensorName}
	}
	switch {
	case name == "":
		return invalid("empty name")
	case len(name) > MaxTensorNameLen:
		return invalid(fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen))
	case name == metadataKey:
		return invalid("reserved name")
	case strings.Contains(name, ".."):
		return invalid("contains '..' (path traversal attempt)")
	case strings.ContainsAny(name, "/\\"):
		return invalid("contains path separator (/ or \\)")
	case strings.Contains(name, "\x00"):
		return invalid("contains null byte")
	}
	return nil
}

// ValidateHeader checks tensor names, negative and out-of-bounds offsets,
// and overlapping data regions.
func ValidateHeader(headers map[string]tensorHeader, dataSize int64) error {
	if len(headers) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(headers), MaxTensorCount),
			Err:     ErrTooManyTensors,
		}
	}

	type region struct {
		name       string
		start, end int64
	}
	regions := make([]region, 0, len(headers))
	for name, h := range headers {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		start, end := h.DataOffsets[0], h.DataOffsets[1]
		if start < 0 || end < start {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  name,
				Details: fmt.Sprintf("offsets [%d, %d]", start, end),
				Err:     ErrNegativeOffset,
			}
		}
		if end > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  name,
				Details: fmt.Sprintf("end %d > payload size %d", end, dataSize),
				Err:     ErrOutOfBounds,
			}
		}
		for _, d := range h.Shape {
			if d < 0 {
				return &ValidationError{
					Type:    "negative_dimension",
					Tensor:  name,
					Details: fmt.Sprintf("shape %v", h.Shape),
					Err:     ErrShapeMismatch,
				}
			}
		}
		regions = append(regions, region{name, start, end})
	}

	sort.Slice(regions, func(i, j int) bool {
		if regions[i].start != regions[j].start {
			return regions[i].start < regions[j].start
		}
		return regions[i].name < regions[j].name
	})
	for i := 1; i < len(regions); i++ {
		prev, cur := regions[i-1], regions[i]
		if prev.end > cur.start {
			return &ValidationError{
				Type:    "offset_overlap",
				Tensor:  prev.name,
				Tensor2: cur.name,
				Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap", prev.start, prev.end, cur.start, cur.end),
				Err:     ErrOffsetOverlap,
			}
		}
	}
	return nil
}
