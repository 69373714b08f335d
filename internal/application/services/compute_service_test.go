package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyspace-ai/easygrid/pkg/constants"
	apperrors "github.com/easyspace-ai/easygrid/pkg/errors"
	"github.com/easyspace-ai/easygrid/pkg/formula"
	"github.com/easyspace-ai/easygrid/pkg/models"
)

func TestAggregate_SumAndAvg(t *testing.T) {
	values := []any{1.5, int64(2), "3", "not a number", nil}

	sum, err := aggregate(constants.AggregationSum, values)
	require.NoError(t, err)
	assert.Equal(t, 6.5, sum)

	avg, err := aggregate(constants.AggregationAvg, values)
	require.NoError(t, err)
	assert.InDelta(t, 6.5/3, avg.(float64), 1e-9)
}

func TestAggregate_AvgOfNothingIsNull(t *testing.T) {
	avg, err := aggregate(constants.AggregationAvg, []any{"x", nil})
	require.NoError(t, err)
	assert.Nil(t, avg)
}

func TestAggregate_MinMax(t *testing.T) {
	values := []any{float64(7), int(3), "5"}

	min, err := aggregate(constants.AggregationMin, values)
	require.NoError(t, err)
	assert.Equal(t, 3.0, min)

	max, err := aggregate(constants.AggregationMax, values)
	require.NoError(t, err)
	assert.Equal(t, 7.0, max)

	empty, err := aggregate(constants.AggregationMax, nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestAggregate_ConcatAndCount(t *testing.T) {
	joined, err := aggregate(constants.AggregationConcat, []any{"a", 2, true})
	require.NoError(t, err)
	assert.Equal(t, "a, 2, true", joined)

	count, err := aggregate(constants.AggregationCount, []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAggregate_UnknownFunction(t *testing.T) {
	_, err := aggregate("median", []any{1})
	require.True(t, apperrors.IsValidation(err))
}

func TestLinkCellsOf_Shapes(t *testing.T) {
	assert.Nil(t, linkCellsOf(nil))

	single := linkCellsOf(map[string]any{"id": "rec1", "title": "Alpha"})
	require.Len(t, single, 1)
	assert.Equal(t, models.LinkCell{ID: "rec1", Title: "Alpha"}, single[0])

	many := linkCellsOf([]any{
		map[string]any{"id": "rec1", "title": "Alpha"},
		map[string]any{"id": "rec2"},
		"garbage entry",
	})
	require.Len(t, many, 2)
	assert.Equal(t, "rec2", many[1].ID)

	typed := linkCellsOf([]models.LinkCell{{ID: "rec3"}})
	require.Len(t, typed, 1)
	assert.Equal(t, "rec3", typed[0].ID)
}

func TestStringifyFormulaResult(t *testing.T) {
	assert.Nil(t, stringifyFormulaResult(nil))
	assert.Equal(t, "hello", stringifyFormulaResult("hello"))
	assert.Equal(t, "true", stringifyFormulaResult(true))
	assert.Equal(t, "false", stringifyFormulaResult(false))
	assert.Equal(t, "2", stringifyFormulaResult(float64(2)))
	assert.Equal(t, "2.5", stringifyFormulaResult(2.5))
}

func computeTestFields() []*models.Field {
	return []*models.Field{
		{ID: "fld1", Name: "Price", Type: constants.FieldTypeNumber},
		{ID: "fld2", Name: "Qty", Type: constants.FieldTypeNumber},
	}
}

func TestEvaluateFormula(t *testing.T) {
	svc := &ComputeService{engine: formula.NewEngine()}
	field := &models.Field{
		ID:   "fld3",
		Type: constants.FieldTypeFormula,
		Options: &models.FieldOptions{
			Formula: &models.FormulaOptions{Expression: "{Price} * {Qty}"},
		},
	}
	rec := &models.Record{ID: "rec1", Data: map[string]any{"fld1": 2.5, "fld2": float64(4)}}

	out, err := svc.evaluateFormula(field, computeTestFields(), rec)
	require.NoError(t, err)
	assert.Equal(t, "10", out)
}

func TestEvaluateFormula_UnknownReference(t *testing.T) {
	svc := &ComputeService{engine: formula.NewEngine()}
	field := &models.Field{
		ID:   "fld3",
		Type: constants.FieldTypeFormula,
		Options: &models.FieldOptions{
			Formula: &models.FormulaOptions{Expression: "{Missing} + 1"},
		},
	}
	rec := &models.Record{ID: "rec1", Data: map[string]any{}}

	_, err := svc.evaluateFormula(field, computeTestFields(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing")
}

func TestEvaluateCount(t *testing.T) {
	fields := []*models.Field{
		{
			ID:          "fldLink",
			Name:        "Items",
			Type:        constants.FieldTypeLink,
			DBFieldName: "items",
			Options: &models.FieldOptions{
				Link: &models.LinkOptions{Relationship: constants.RelationshipManyMany, ForeignTableID: "tblB"},
			},
		},
	}
	svc := &ComputeService{}
	field := &models.Field{
		ID:      "fldCount",
		Type:    constants.FieldTypeCount,
		Options: &models.FieldOptions{Count: &models.CountOptions{LinkFieldID: "fldLink"}},
	}
	rec := &models.Record{ID: "rec1", Data: map[string]any{
		"fldLink": []any{
			map[string]any{"id": "recA", "title": "A"},
			map[string]any{"id": "recB", "title": "B"},
		},
	}}

	n, err := svc.evaluateCount(field, fields, rec)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec.Data["fldLink"] = nil
	n, err = svc.evaluateCount(field, fields, rec)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEvaluateCount_MissingLinkField(t *testing.T) {
	svc := &ComputeService{}
	field := &models.Field{
		ID:      "fldCount",
		Type:    constants.FieldTypeCount,
		Options: &models.FieldOptions{Count: &models.CountOptions{LinkFieldID: "fldGone"}},
	}
	_, err := svc.evaluateCount(field, nil, &models.Record{Data: map[string]any{}})
	require.Error(t, err)
}

func TestCoerceFloat(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want float64
	}{
		{float64(1.5), 1.5},
		{float32(2), 2},
		{int(3), 3},
		{int64(4), 4},
		{"5.5", 5.5},
	} {
		got, err := coerceFloat(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := coerceFloat(true)
	require.Error(t, err)
	_, err = coerceFloat("abc")
	require.Error(t, err)
}
