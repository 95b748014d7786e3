package rpde

import "encoding/json"

// Item states defined by the RPDE specification.
const (
	StateUpdated = "updated"
	StateDeleted = "deleted"
)

// Page represents one page of an RPDE feed.
type Page struct {
	Next    string `json:"next"`
	Items   []Item `json:"items"`
	License string `json:"license,omitempty"`
}

// Item represents a single RPDE feed item. IDs and modified tokens are
// allowed to be strings or numbers on the wire, so both are decoded
// loosely and normalized via their accessors.
type Item struct {
	ID       json.RawMessage        `json:"id"`
	Modified json.RawMessage        `json:"modified"`
	State    string                 `json:"state"`
	Kind     string                 `json:"kind,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// IDString returns the item id normalized to a string, or "" if absent.
func (i Item) IDString() string {
	return rawToString(i.ID)
}

// ModifiedString returns the upstream version token normalized to a string.
func (i Item) ModifiedString() string {
	return rawToString(i.Modified)
}

// Deleted reports whether the item carries a deleted state.
func (i Item) Deleted() bool {
	return i.State == StateDeleted
}

func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(raw)
}
