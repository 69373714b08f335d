package models

import (
	"encoding/json"
	"fmt"

	"github.com/easyspace-ai/easygrid/pkg/constants"
)

// FieldOptions is a tagged variant over the type-specific option records.
// Exactly one member is non-nil, selected by the owning field's type; types
// without dedicated options use Common. The JSON stored in the registry is
// the flat key set of the active variant, so the round-trip happens once at
// the persistence boundary (ParseOptions / EncodeOptions).
type FieldOptions struct {
	Common  *CommonOptions
	Number  *NumberOptions
	Select  *SelectOptions
	Date    *DateOptions
	Formula *FormulaOptions
	Rollup  *RollupOptions
	Lookup  *LookupOptions
	Count   *CountOptions
	Link    *LinkOptions
	Rating  *RatingOptions
	User    *UserOptions
	AI      *AIOptions
}

// CommonOptions carries the configuration keys recognized across all types.
type CommonOptions struct {
	DefaultValue any    `json:"defaultValue,omitempty"`
	ShowAs       string `json:"showAs,omitempty"`
	Formatting   string `json:"formatting,omitempty"`
}

// NumberOptions configures number fields.
type NumberOptions struct {
	Precision    int      `json:"precision"`
	MinValue     *float64 `json:"minValue,omitempty"`
	MaxValue     *float64 `json:"maxValue,omitempty"`
	Format       string   `json:"format,omitempty"`
	ShowCommas   bool     `json:"showCommas,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	DefaultValue *float64 `json:"defaultValue,omitempty"`
}

// SelectChoice is one option of a single/multi select field.
type SelectChoice struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// SelectOptions configures singleSelect and multiSelect fields.
type SelectOptions struct {
	Choices               []SelectChoice `json:"choices"`
	DefaultValue          any            `json:"defaultValue,omitempty"`
	PreventAutoNewOptions bool           `json:"preventAutoNewOptions,omitempty"`
}

// DateOptions configures date and dateTime fields.
type DateOptions struct {
	Format       string `json:"format,omitempty"`
	IncludeTime  bool   `json:"includeTime,omitempty"`
	TimeFormat   string `json:"timeFormat,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
	DefaultValue string `json:"defaultValue,omitempty"`
}

// FormulaOptions configures formula fields. Expression references other
// fields as {fieldName} or {fieldId}.
type FormulaOptions struct {
	Expression string `json:"expression"`
	TimeZone   string `json:"timeZone,omitempty"`
	Formatting string `json:"formatting,omitempty"`
	ShowAs     string `json:"showAs,omitempty"`
}

// RollupOptions configures rollup fields.
type RollupOptions struct {
	LinkFieldID         string `json:"linkFieldId"`
	RollupFieldID       string `json:"rollupFieldId,omitempty"`
	AggregationFunction string `json:"aggregationFunction"`
	Expression          string `json:"expression,omitempty"`
}

// LookupOptions configures lookup fields.
type LookupOptions struct {
	LinkFieldID   string `json:"linkFieldId"`
	LookupFieldID string `json:"lookupFieldId"`
}

// CountOptions configures count fields.
type CountOptions struct {
	LinkFieldID string `json:"linkFieldId"`
	Filter      string `json:"filter,omitempty"`
}

// LinkOptions configures link fields; see the relational engine for how the
// physical layout is derived from these.
type LinkOptions struct {
	ForeignTableID   string                 `json:"foreignTableId"`
	Relationship     constants.Relationship `json:"relationship"`
	LookupFieldID    string                 `json:"lookupFieldId,omitempty"`
	FKHostTableName  string                 `json:"fkHostTableName,omitempty"`
	SelfKeyName      string                 `json:"selfKeyName,omitempty"`
	ForeignKeyName   string                 `json:"foreignKeyName,omitempty"`
	IsSymmetric      bool                   `json:"isSymmetric,omitempty"`
	SymmetricFieldID string                 `json:"symmetricFieldId,omitempty"`
	AllowMultiple    bool                   `json:"allowMultiple,omitempty"`
}

// IsMultiValue reports whether cells of this link store arrays.
func (o *LinkOptions) IsMultiValue() bool {
	return o.AllowMultiple || constants.IsMultipleValueRelationship(o.Relationship)
}

// RatingOptions configures rating fields.
type RatingOptions struct {
	Max  int    `json:"max"`
	Icon string `json:"icon,omitempty"`
}

// UserOption is one selectable principal of a user field.
type UserOption struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// UserOptions configures user fields.
type UserOptions struct {
	IsMultiple bool         `json:"isMultiple,omitempty"`
	Options    []UserOption `json:"options,omitempty"`
}

// AIOptions configures ai fields.
type AIOptions struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
	Trigger  string `json:"trigger,omitempty"`
}

// ParseOptions decodes the flat option JSON stored in the registry into the
// variant matching the field type. A nil/empty raw yields nil options for
// plain types and an error for types whose options are mandatory.
func ParseOptions(t constants.FieldType, raw json.RawMessage) (*FieldOptions, error) {
	empty := len(raw) == 0 || string(raw) == "null"

	decode := func(dst any) error {
		if empty {
			return nil
		}
		return json.Unmarshal(raw, dst)
	}

	switch t {
	case constants.FieldTypeRating:
		o := &RatingOptions{Max: 5}
		if err := decode(o); err != nil {
			return nil, err
		}
		return &FieldOptions{Rating: o}, nil
	case constants.FieldTypeNumber, constants.FieldTypeDuration:
		o := &NumberOptions{}
		if err := decode(o); err != nil {
			return nil, err
		}
		return &FieldOptions{Number: o}, nil
	case constants.FieldTypeSingleSelect, constants.FieldTypeMultiSelect:
		o := &SelectOptions{}
		if err := decode(o); err != nil {
			return nil, err
		}
		return &FieldOptions{Select: o}, nil
	case constants.FieldTypeDate, constants.FieldTypeDateTime:
		o := &DateOptions{}
		if err := decode(o); err != nil {
			return nil, err
		}
		return &FieldOptions{Date: o}, nil
	case constants.FieldTypeFormula:
		o := &FormulaOptions{}
		if err := decode(o); err != nil {
			return nil, err
		}
		if o.Expression == "" {
			return nil, fmt.Errorf("formula options require an expression")
		}
		return &FieldOptions{Formula: o}, nil
	case constants.FieldTypeRollup:
		o := &RollupOptions{}
		if err := decode(o); err != nil {
			return nil, err
		}
		if o.LinkFieldID == "" {
			return nil, fmt.Errorf("rollup options require linkFieldId")
		}
		return &FieldOptions{Rollup: o}, nil
	case constants.FieldTypeLookup:
		o := &LookupOptions{}
		if err := decode(o); err != nil {
			return nil, err
		}
		if o.LinkFieldID == "" {
			return nil, fmt.Errorf("lookup options require linkFieldId")
		}
		return &FieldOptions{Lookup: o}, nil
	case constants.FieldTypeCount:
		o := &CountOptions{}
		if err := decode(o); err != nil {
			return nil, err
		}
		if o.LinkFieldID == "" {
			return nil, fmt.Errorf("count options require linkFieldId")
		}
		return &FieldOptions{Count: o}, nil
	case constants.FieldTypeLink:
		o := &LinkOptions{}
		if err := decode(o); err != nil {
			return nil, err
		}
		if o.ForeignTableID == "" {
			return nil, fmt.Errorf("link options require foreignTableId")
		}
		if !constants.IsValidRelationship(o.Relationship) {
			return nil, fmt.Errorf("link options have invalid relationship '%s'", o.Relationship)
		}
		return &FieldOptions{Link: o}, nil
	case constants.FieldTypeUser:
		o := &UserOptions{}
		if err := decode(o); err != nil {
			return nil, err
		}
		return &FieldOptions{User: o}, nil
	case constants.FieldTypeAI:
		o := &AIOptions{}
		if err := decode(o); err != nil {
			return nil, err
		}
		if o.Provider == "" || o.Model == "" || o.Prompt == "" {
			return nil, fmt.Errorf("ai options require provider, model and prompt")
		}
		return &FieldOptions{AI: o}, nil
	default:
		o := &CommonOptions{}
		if err := decode(o); err != nil {
			return nil, err
		}
		return &FieldOptions{Common: o}, nil
	}
}

// EncodeOptions renders the active variant back to the flat JSON stored in
// the registry. Nil options encode as null.
func EncodeOptions(o *FieldOptions) (json.RawMessage, error) {
	if o == nil {
		return json.RawMessage("null"), nil
	}
	var active any
	switch {
	case o.Number != nil:
		active = o.Number
	case o.Select != nil:
		active = o.Select
	case o.Date != nil:
		active = o.Date
	case o.Formula != nil:
		active = o.Formula
	case o.Rollup != nil:
		active = o.Rollup
	case o.Lookup != nil:
		active = o.Lookup
	case o.Count != nil:
		active = o.Count
	case o.Link != nil:
		active = o.Link
	case o.Rating != nil:
		active = o.Rating
	case o.User != nil:
		active = o.User
	case o.AI != nil:
		active = o.AI
	case o.Common != nil:
		active = o.Common
	default:
		return json.RawMessage("null"), nil
	}
	return json.Marshal(active)
}
