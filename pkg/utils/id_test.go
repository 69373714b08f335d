package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/easyspace-ai/easygrid/pkg/constants"
)

func TestGeneratedIDsCarryPrefixes(t *testing.T) {
	tests := []struct {
		id     string
		prefix string
	}{
		{GenerateSpaceID(), constants.PrefixSpace},
		{GenerateBaseID(), constants.PrefixBase},
		{GenerateTableID(), constants.PrefixTable},
		{GenerateFieldID(), constants.PrefixField},
		{GenerateRecordID(), constants.PrefixRecord},
		{GenerateViewID(), constants.PrefixView},
		{GenerateCollaboratorID(), constants.PrefixCollab},
	}
	for _, tt := range tests {
		assert.True(t, HasPrefix(tt.id, tt.prefix), tt.id)
		assert.Less(t, len(tt.id), 64)
	}
}

func TestGeneratedIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := GenerateRecordID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestHasPrefix(t *testing.T) {
	assert.True(t, HasPrefix("tbl_abc", constants.PrefixTable))
	assert.False(t, HasPrefix("tbl_", constants.PrefixTable))
	assert.False(t, HasPrefix("fld_abc", constants.PrefixTable))
	assert.False(t, HasPrefix("tbl_"+strings.Repeat("a", 200), constants.PrefixTable))
}
