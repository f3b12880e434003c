package domain

import (
	"regexp"
	"strings"
)

const MaxKeyLength = 100

// SystemKeyPrefix marks storage keys owned by the service itself.
const SystemKeyPrefix = "__"

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// reservedKeys collide with routes served by the process.
var reservedKeys = map[string]struct{}{
	"admin":  {},
	"api":    {},
	"health": {},
	"static": {},
	"ws":     {},
}

func ReservedKeys() []string {
	keys := make([]string, 0, len(reservedKeys))
	for k := range reservedKeys {
		keys = append(keys, k)
	}
	return keys
}

// IsSystemKey reports whether key is hidden from bulk listing and editing.
func IsSystemKey(key string) bool {
	if strings.HasPrefix(key, SystemKeyPrefix) {
		return true
	}
	_, ok := reservedKeys[key]
	return ok
}

func IsValidKey(key string) bool {
	return keyPattern.MatchString(key)
}
