package shapes

import (
	"fmt"
	"strings"
)

// SeriesPrefix extracts the shape series from a shape name.
// Examples:
//   - "m5.xlarge" → "m5"
//   - "c5d.4xlarge" → "c5d"
//   - "n2-standard-4" (GCP) → "n2-standard"
//   - "e2-medium" (GCP) → "e2"
//   - "Standard_D4s_v3" (Azure) → "Standard_D_v3"
func SeriesPrefix(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty shape name")
	}

	// AWS: series.size format (e.g., m5.xlarge, c5d.2xlarge)
	if parts := strings.SplitN(name, ".", 2); len(parts) == 2 {
		return parts[0], nil
	}

	// GCP: series-size format (e.g., n2-standard-4, e2-medium)
	if strings.Contains(name, "-") {
		parts := strings.Split(name, "-")
		if len(parts) >= 3 {
			return strings.Join(parts[:len(parts)-1], "-"), nil
		}
		if len(parts) == 2 {
			return parts[0], nil
		}
	}

	// Azure: Standard_D4s_v3 → Standard_D_v3
	if strings.HasPrefix(name, "Standard_") {
		return azureSeries(name), nil
	}

	return "", fmt.Errorf("unrecognized shape name format: %s", name)
}

// azureSeries extracts the series class from Azure VM sizes.
// Standard_D4s_v3 → Standard_D_v3, Standard_E8as_v4 → Standard_E_v4.
func azureSeries(vmSize string) string {
	parts := strings.Split(vmSize, "_")
	if len(parts) < 2 {
		return vmSize
	}

	// Letter prefix of the size part ("D4s" → "D", "E8as" → "E")
	sizePart := parts[1]
	series := ""
	for _, c := range sizePart {
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' {
			if series == "" || (c >= 'A' && c <= 'Z') {
				series += string(c)
			} else {
				break
			}
		} else {
			break
		}
	}

	result := parts[0] + "_" + series
	for i := 2; i < len(parts); i++ {
		if strings.HasPrefix(parts[i], "v") {
			result += "_" + parts[i]
		}
	}
	return result
}

// SameSeries reports whether two shape names belong to the same series.
func SameSeries(a, b string) bool {
	sa, err := SeriesPrefix(a)
	if err != nil {
		return false
	}
	sb, err := SeriesPrefix(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(sa, sb)
}

// familyByLetter maps the leading series letter to a coarse family type.
// Used when the catalog entry does not carry an explicit family.
var familyByLetter = map[byte]string{
	'm': "general",
	't': "general",
	'e': "general",
	'n': "general",
	'c': "compute",
	'r': "memory",
	'x': "memory",
	'i': "storage",
	'd': "storage",
	'p': "accelerated",
	'g': "accelerated",
}

// FamilyType returns the family type for a shape, deriving it from the series
// letter when the catalog did not set one.
func FamilyType(s Shape) string {
	if s.FamilyType != "" {
		return s.FamilyType
	}
	series := s.Series
	if series == "" {
		series, _ = SeriesPrefix(s.Name)
	}
	if series == "" {
		return ""
	}
	if f, ok := familyByLetter[series[0]|0x20]; ok {
		return f
	}
	return ""
}

// SameFamily reports whether two shapes share a family type.
func SameFamily(a, b Shape) bool {
	fa, fb := FamilyType(a), FamilyType(b)
	return fa != "" && strings.EqualFold(fa, fb)
}
