package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterTranslator_Equality(t *testing.T) {
	tr := NewFilterTranslator()
	allowed := map[string]string{"status": "status"}

	sql, args, err := tr.Translate("status = 'active'", allowed, 1)
	require.NoError(t, err)
	assert.Equal(t, `("status" = $1)`, sql)
	require.Len(t, args, 1)
	assert.Equal(t, "active", args[0])
}

func TestFilterTranslator_DisplayNameMapsToColumn(t *testing.T) {
	tr := NewFilterTranslator()
	allowed := map[string]string{"Amount": "amount_2"}

	sql, _, err := tr.Translate("Amount > 100", allowed, 1)
	require.NoError(t, err)
	assert.Equal(t, `("amount_2" > $1)`, sql)
}

func TestFilterTranslator_AndWithStartParam(t *testing.T) {
	tr := NewFilterTranslator()
	allowed := map[string]string{"price": "price", "qty": "qty"}

	sql, args, err := tr.Translate("price > 10 AND qty <= 5", allowed, 3)
	require.NoError(t, err)
	assert.Equal(t, `(("price" > $3) AND ("qty" <= $4))`, sql)
	assert.Len(t, args, 2)
}

func TestFilterTranslator_InList(t *testing.T) {
	tr := NewFilterTranslator()
	allowed := map[string]string{"status": "status"}

	sql, args, err := tr.Translate("status IN ('todo', 'doing')", allowed, 1)
	require.NoError(t, err)
	assert.Equal(t, `"status" IN ($1, $2)`, sql)
	assert.Equal(t, []any{"todo", "doing"}, args)
}

func TestFilterTranslator_LikeAndIsNull(t *testing.T) {
	tr := NewFilterTranslator()
	allowed := map[string]string{"name": "name", "notes": "notes"}

	sql, args, err := tr.Translate("name LIKE 'wid%'", allowed, 1)
	require.NoError(t, err)
	assert.Equal(t, `"name" LIKE $1`, sql)
	assert.Equal(t, []any{"wid%"}, args)

	sql, args, err = tr.Translate("notes IS NULL", allowed, 1)
	require.NoError(t, err)
	assert.Equal(t, `("notes" IS NULL)`, sql)
	assert.Empty(t, args)
}

func TestFilterTranslator_UnknownColumn(t *testing.T) {
	tr := NewFilterTranslator()

	_, _, err := tr.Translate("secret = 1", map[string]string{"status": "status"}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret")
}

func TestFilterTranslator_RejectsSQLConstructs(t *testing.T) {
	tr := NewFilterTranslator()
	allowed := map[string]string{"id": "id", "status": "status"}

	cases := []string{
		"id IN (SELECT 1)",
		"LOWER(status) = 'x'",
		"id = (SELECT max(id) FROM other)",
		"other.status = 'x'",
	}
	for _, filter := range cases {
		_, _, err := tr.Translate(filter, allowed, 1)
		assert.Error(t, err, filter)
	}
}

func TestFilterTranslator_NotBooleanExpression(t *testing.T) {
	tr := NewFilterTranslator()

	_, _, err := tr.Translate("status = 'a'; DROP TABLE x", map[string]string{"status": "status"}, 1)
	assert.Error(t, err)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"price"`, QuoteIdent("price"))
	assert.Equal(t, `"we""ird"`, QuoteIdent(`we"ird`))
}
