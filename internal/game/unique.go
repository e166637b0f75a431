package game

import (
	"strconv"
	"strings"
)

// UniqueID derives a custom action id from a display name. The id is
// "_" followed by the lowercased name with spaces turned into underscores
// and everything except ASCII letters, digits and underscores removed.
// A numeric suffix is appended when the id is already taken.
func UniqueID(name string, taken func(id string) bool) string {
	raw := "_" + strings.ReplaceAll(strings.TrimSpace(strings.ToLower(name)), " ", "_")

	var b strings.Builder
	for _, r := range raw {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	id := b.String()

	if taken == nil || !taken(id) {
		return id
	}
	n := 1
	for taken(id + "_" + strconv.Itoa(n)) {
		n++
	}
	return id + "_" + strconv.Itoa(n)
}
