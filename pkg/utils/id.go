package utils

import (
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/easyspace-ai/easygrid/pkg/constants"
)

// generate returns prefix + hex UUID (dashes stripped), always < 64 chars.
func generate(prefix string) string {
	id, err := uuid.NewRandom()
	if err != nil {
		log.Printf("Failed to generate UUID: %v", err)
		return ""
	}
	return prefix + strings.ReplaceAll(id.String(), "-", "")
}

// GenerateSpaceID returns a new spc_ id
func GenerateSpaceID() string { return generate(constants.PrefixSpace) }

// GenerateBaseID returns a new base_ id
func GenerateBaseID() string { return generate(constants.PrefixBase) }

// GenerateTableID returns a new tbl_ id
func GenerateTableID() string { return generate(constants.PrefixTable) }

// GenerateFieldID returns a new fld_ id
func GenerateFieldID() string { return generate(constants.PrefixField) }

// GenerateRecordID returns a new rec_ id
func GenerateRecordID() string { return generate(constants.PrefixRecord) }

// GenerateViewID returns a new viw_ id
func GenerateViewID() string { return generate(constants.PrefixView) }

// GenerateCollaboratorID returns a new col_ id
func GenerateCollaboratorID() string { return generate(constants.PrefixCollab) }

// HasPrefix reports whether id carries the given resource prefix and is
// within the platform length limit.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix) &&
		len(id) > len(prefix) &&
		len(id) <= constants.MaxIDLength
}
