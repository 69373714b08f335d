package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyspace-ai/easygrid/pkg/constants"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

func titleTestFields() []*models.Field {
	return []*models.Field{
		{ID: "fldFormula", Name: "Computed", Type: constants.FieldTypeFormula, Order: 0},
		{ID: "fldName", Name: "Name", Type: constants.FieldTypeShortText, Order: 1},
		{ID: "fldEmail", Name: "Email", Type: constants.FieldTypeEmail, Order: 2},
	}
}

func TestEffectiveLookupField_StoredID(t *testing.T) {
	lookup := effectiveLookupField("fldEmail", titleTestFields())
	require.NotNil(t, lookup)
	assert.Equal(t, "fldEmail", lookup.ID)
}

func TestEffectiveLookupField_StaleIDFallsBack(t *testing.T) {
	// lookup pointing at a deleted field resolves like a fresh link would:
	// first plain field in display order, skipping derived and link types
	lookup := effectiveLookupField("fldDeleted", titleTestFields())
	require.NotNil(t, lookup)
	assert.Equal(t, "fldName", lookup.ID)
}

func TestEffectiveLookupField_EmptyID(t *testing.T) {
	lookup := effectiveLookupField("", titleTestFields())
	require.NotNil(t, lookup)
	assert.Equal(t, "fldName", lookup.ID)
}

func TestEffectiveLookupField_NoPlainFields(t *testing.T) {
	fields := []*models.Field{
		{ID: "fldF", Name: "F", Type: constants.FieldTypeFormula},
		{ID: "fldL", Name: "L", Type: constants.FieldTypeLink},
	}
	assert.Nil(t, effectiveLookupField("", fields))
}

func TestResolveTitle_NameKeyWins(t *testing.T) {
	lookup := &models.Field{ID: "fldName", Name: "Name", Type: constants.FieldTypeShortText}

	title := resolveTitle(map[string]any{"fldName": "stale", "Name": "fresh"}, lookup)
	assert.Equal(t, "fresh", title)

	title = resolveTitle(map[string]any{"fldName": "by id"}, lookup)
	assert.Equal(t, "by id", title)

	title = resolveTitle(map[string]any{}, lookup)
	assert.Equal(t, "", title)
}

func TestRenderTitle(t *testing.T) {
	assert.Equal(t, "", renderTitle(nil))
	assert.Equal(t, "Acme", renderTitle("Acme"))
	assert.Equal(t, "42", renderTitle(42))
}
