package xapi

import (
	"encoding/json"
	"errors"
)

// LanguageMap maps RFC 5646 language tags to text.
type LanguageMap map[string]string

// Clone returns an independent copy, or nil for an empty map.
func (m LanguageMap) Clone() LanguageMap {
	if len(m) == 0 {
		return nil
	}
	out := make(LanguageMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Verb is the action of a statement. The ID cannot change after construction.
type Verb struct {
	id          string
	displayName string
	display     LanguageMap
}

// NewVerb returns a verb with a local display name that is never serialized.
func NewVerb(name, id string) Verb {
	return Verb{id: id, displayName: name}
}

// ID returns the verb IRI.
func (v Verb) ID() string { return v.id }

// Name returns the local display name.
func (v Verb) Name() string { return v.displayName }

// Display returns a copy of the serialized display map.
func (v Verb) Display() LanguageMap { return v.display.Clone() }

// WithDisplay returns a copy with text set for locale.
func (v Verb) WithDisplay(locale, text string) Verb {
	out := v.clone()
	if out.display == nil {
		out.display = LanguageMap{}
	}
	out.display[locale] = text
	return out
}

// IsZero reports whether the verb has no ID.
func (v Verb) IsZero() bool { return v.id == "" }

func (v Verb) clone() Verb {
	return Verb{id: v.id, displayName: v.displayName, display: v.display.Clone()}
}

type verbJSON struct {
	ID      string      `json:"id"`
	Display LanguageMap `json:"display,omitempty"`
}

func (v Verb) MarshalJSON() ([]byte, error) {
	return json.Marshal(verbJSON{ID: v.id, Display: v.display})
}

func (v *Verb) UnmarshalJSON(data []byte) error {
	var in verbJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.ID == "" {
		return errors.New("verb id is required")
	}
	*v = Verb{id: in.ID, display: in.Display.Clone()}
	if known, ok := VerbByID(in.ID); ok {
		v.displayName = known.displayName
	}
	return nil
}
