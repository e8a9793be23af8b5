package authz

import "strings"

var deleteWords = []string{"delete", "remove", "drop", "purge", "erase", "truncate", "destroy", "wipe"}

// IsDeleteOperation reports whether op names a destructive operation.
func IsDeleteOperation(op Operation) bool {
	name := strings.ToLower(string(op))
	for _, word := range deleteWords {
		if strings.Contains(name, word) {
			return true
		}
	}
	return false
}
