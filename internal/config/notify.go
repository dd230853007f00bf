package config

import "strings"

// NotifyDriver selects how commit events leave the process.
type NotifyDriver string

const (
	NotifyDriverNone   NotifyDriver = "none"
	NotifyDriverMemory NotifyDriver = "memory"
	NotifyDriverNATS   NotifyDriver = "nats"
)

// NormalizeNotifyDriver canonicalizes user input, returning empty string for unknown.
func NormalizeNotifyDriver(raw string) NotifyDriver {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(NotifyDriverNone), "off", "disabled":
		return NotifyDriverNone
	case string(NotifyDriverMemory):
		return NotifyDriverMemory
	case string(NotifyDriverNATS):
		return NotifyDriverNATS
	default:
		return ""
	}
}
