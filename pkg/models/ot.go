package models

// OTOp is one operational-transform operation. P is the path into the
// document ({"data", fieldId} for record cells); OI inserts/replaces a
// value, OD records the value being removed.
type OTOp struct {
	P  []any `json:"p"`
	OI any   `json:"oi,omitempty"`
	OD any   `json:"od,omitempty"`
}

// NewSetFieldOp builds the op for setting one record cell.
func NewSetFieldOp(fieldID string, newValue, oldValue any) OTOp {
	return OTOp{P: []any{"data", fieldID}, OI: newValue, OD: oldValue}
}

// OTSnapshot is the initial document state delivered on subscribe.
type OTSnapshot struct {
	V    int64          `json:"v"`
	Data map[string]any `json:"data"`
}

// OTMessage is one published op bundle as seen by subscribers. Ops within a
// bundle were applied atomically; V is the document version after applying.
type OTMessage struct {
	Collection string `json:"collection"`
	DocID      string `json:"docId"`
	V          int64  `json:"v"`
	Ops        []OTOp `json:"ops"`
}
