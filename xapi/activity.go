package xapi

import "encoding/json"

// ActivityDefinition describes an activity.
type ActivityDefinition struct {
	Name        LanguageMap `json:"name,omitempty"`
	Description LanguageMap `json:"description,omitempty"`
	Type        string      `json:"type,omitempty"`
	MoreInfo    string      `json:"moreInfo,omitempty"`
}

// IsEmpty reports whether nothing in the definition would serialize.
func (d *ActivityDefinition) IsEmpty() bool {
	return d == nil || (len(d.Name) == 0 && len(d.Description) == 0 && d.Type == "" && d.MoreInfo == "")
}

func (d *ActivityDefinition) clone() *ActivityDefinition {
	if d == nil {
		return nil
	}
	return &ActivityDefinition{
		Name:        d.Name.Clone(),
		Description: d.Description.Clone(),
		Type:        d.Type,
		MoreInfo:    d.MoreInfo,
	}
}

// Activity is a thing an actor interacts with. Activities serialize without objectType.
type Activity struct {
	ID         string
	Definition *ActivityDefinition
}

// NewActivity returns an activity with no definition.
func NewActivity(id string) Activity {
	return Activity{ID: id}
}

// NamedActivity returns an activity whose definition carries a name in one locale.
func NamedActivity(id, locale, name string) Activity {
	return Activity{ID: id, Definition: &ActivityDefinition{Name: LanguageMap{locale: name}}}
}

func (Activity) ObjectType() string { return activityObjectType }

func (Activity) isObject() {}

// WithName returns a copy with the definition name set for locale.
func (a Activity) WithName(locale, name string) Activity {
	out := a.clone()
	if out.Definition == nil {
		out.Definition = &ActivityDefinition{}
	}
	if out.Definition.Name == nil {
		out.Definition.Name = LanguageMap{}
	}
	out.Definition.Name[locale] = name
	return out
}

// WithDescription returns a copy with the definition description set for locale.
func (a Activity) WithDescription(locale, text string) Activity {
	out := a.clone()
	if out.Definition == nil {
		out.Definition = &ActivityDefinition{}
	}
	if out.Definition.Description == nil {
		out.Definition.Description = LanguageMap{}
	}
	out.Definition.Description[locale] = text
	return out
}

// WithType returns a copy with the definition activity type set.
func (a Activity) WithType(typ string) Activity {
	out := a.clone()
	if out.Definition == nil {
		out.Definition = &ActivityDefinition{}
	}
	out.Definition.Type = typ
	return out
}

func (a Activity) clone() Activity {
	return Activity{ID: a.ID, Definition: a.Definition.clone()}
}

type activityJSON struct {
	ObjectType string              `json:"objectType,omitempty"`
	ID         string              `json:"id"`
	Definition *ActivityDefinition `json:"definition,omitempty"`
}

func (a Activity) MarshalJSON() ([]byte, error) {
	out := activityJSON{ID: a.ID}
	if !a.Definition.IsEmpty() {
		out.Definition = a.Definition
	}
	return json.Marshal(out)
}

func (a *Activity) UnmarshalJSON(data []byte) error {
	var in activityJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	a.ID = in.ID
	a.Definition = nil
	if !in.Definition.IsEmpty() {
		a.Definition = in.Definition
	}
	return nil
}

// StatementRef points at another statement by ID.
type StatementRef struct {
	ID string
}

func (StatementRef) ObjectType() string { return statementRefObjectType }

func (StatementRef) isObject() {}

type statementRefJSON struct {
	ObjectType string `json:"objectType"`
	ID         string `json:"id"`
}

func (r StatementRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(statementRefJSON{ObjectType: statementRefObjectType, ID: r.ID})
}

func (r *StatementRef) UnmarshalJSON(data []byte) error {
	var in statementRefJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.ID = in.ID
	return nil
}
