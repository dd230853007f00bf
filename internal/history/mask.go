package history

import "strings"

var sensitiveMarkers = []string{"TOKEN", "KEY", "SECRET", "PASSWORD"}

// IsSensitive reports whether a variable called name holds a secret.
func IsSensitive(name string) bool {
	upper := strings.ToUpper(name)
	for _, m := range sensitiveMarkers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

// Mask hides v. Values of up to 10 characters become all asterisks; longer
// values keep their first and last four characters. Masking a masked value
// returns it unchanged.
func Mask(v string) string {
	r := []rune(v)
	if len(r) <= 10 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:4]) + "..." + string(r[len(r)-4:])
}

// MaskIfSensitive masks v when name marks it as a secret.
func MaskIfSensitive(name, v string) string {
	if IsSensitive(name) {
		return Mask(v)
	}
	return v
}

func maskPtr(name string, v *string) *string {
	if v == nil {
		return nil
	}
	m := MaskIfSensitive(name, *v)
	return &m
}
