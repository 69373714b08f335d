package utils

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/easyspace-ai/easygrid/pkg/constants"
)

var nonIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)

// SanitizeDBName converts a display name into a SQL-safe snake_case
// identifier. The result never collides with a system column and never
// starts with a digit or underscore.
func SanitizeDBName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonIdentChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "field"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "f_" + s
	}
	if constants.IsSystemColumn("__" + s) || strings.HasPrefix(s, "__") {
		s = "f_" + strings.TrimLeft(s, "_")
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}

// DedupeDBName returns base, or the first of base_2, base_3, ... absent
// from taken. db_field_name is assigned once at create time and is
// stable for the field's lifetime.
func DedupeDBName(base string, taken map[string]bool) string {
	if !taken[base] {
		return base
	}
	for i := 2; ; i++ {
		candidate := base + "_" + strconv.Itoa(i)
		if !taken[candidate] {
			return candidate
		}
	}
}

// DedupeDisplayName returns name, or "name 2", "name 3", ... It is used
// when a symmetric field's derived name collides on the foreign table.
func DedupeDisplayName(name string, taken map[string]bool) string {
	if !taken[name] {
		return name
	}
	for i := 2; ; i++ {
		candidate := name + " " + strconv.Itoa(i)
		if !taken[candidate] {
			return candidate
		}
	}
}
