// Package estimate aggregates selected services into a priced estimate.
// A Selection holds membership only; totals are always derived from it
// and are never stored.
package estimate

import (
	"encoding/json"
	"strings"
)

// Selection is the set of chosen service ids plus free-text "other service".
// Insertion order is kept for display only.
type Selection struct {
	ids   []string
	other string
}

// NewSelection creates a selection containing ids, ignoring duplicates
func NewSelection(ids ...string) *Selection {
	s := &Selection{}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add selects id. Adding a present id is a no-op; it reports whether membership changed.
func (s *Selection) Add(id string) bool {
	if id == "" || s.Has(id) {
		return false
	}
	s.ids = append(s.ids, id)
	return true
}

// Remove deselects id. Removing an absent id is a no-op; it reports whether membership changed.
func (s *Selection) Remove(id string) bool {
	for i, existing := range s.ids {
		if existing == id {
			s.ids = append(s.ids[:i:i], s.ids[i+1:]...)
			return true
		}
	}
	return false
}

// Toggle flips membership of id and reports whether it is now selected
func (s *Selection) Toggle(id string) bool {
	if s.Remove(id) {
		return false
	}
	return s.Add(id)
}

// Has reports whether id is selected
func (s *Selection) Has(id string) bool {
	for _, existing := range s.ids {
		if existing == id {
			return true
		}
	}
	return false
}

// IDs returns the selected ids in insertion order
func (s *Selection) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Len returns the number of selected ids
func (s *Selection) Len() int {
	return len(s.ids)
}

// Empty reports whether nothing is selected
func (s *Selection) Empty() bool {
	return len(s.ids) == 0
}

// SetOtherService records the free-text request. It never affects the total.
func (s *Selection) SetOtherService(text string) {
	s.other = strings.TrimSpace(text)
}

// OtherService returns the free-text request
func (s *Selection) OtherService() string {
	return s.other
}

// Clear empties the selection
func (s *Selection) Clear() {
	s.ids = nil
	s.other = ""
}

// Clone returns an independent copy
func (s *Selection) Clone() *Selection {
	if s == nil {
		return NewSelection()
	}
	return &Selection{ids: s.IDs(), other: s.other}
}

type selectionJSON struct {
	ServiceIDs   []string `json:"serviceIds"`
	OtherService string   `json:"otherService,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (s *Selection) MarshalJSON() ([]byte, error) {
	ids := s.IDs()
	return json.Marshal(selectionJSON{ServiceIDs: ids, OtherService: s.other})
}

// UnmarshalJSON implements json.Unmarshaler, dropping duplicate ids
func (s *Selection) UnmarshalJSON(data []byte) error {
	var raw selectionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = *NewSelection(raw.ServiceIDs...)
	s.SetOtherService(raw.OtherService)
	return nil
}
