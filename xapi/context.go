package xapi

import (
	"bytes"
	"encoding/json"
)

// ContextActivities groups activities related to a statement's object.
type ContextActivities struct {
	Parent   []Activity
	Grouping []Activity
	Category []Activity
	Other    []Activity
}

// IsEmpty reports whether all four lists are empty.
func (c *ContextActivities) IsEmpty() bool {
	return c == nil || (len(c.Parent) == 0 && len(c.Grouping) == 0 && len(c.Category) == 0 && len(c.Other) == 0)
}

func (c *ContextActivities) AddParent(a Activity)   { c.Parent = append(c.Parent, a.clone()) }
func (c *ContextActivities) AddGrouping(a Activity) { c.Grouping = append(c.Grouping, a.clone()) }
func (c *ContextActivities) AddCategory(a Activity) { c.Category = append(c.Category, a.clone()) }
func (c *ContextActivities) AddOther(a Activity)    { c.Other = append(c.Other, a.clone()) }

func (c *ContextActivities) AddParentID(id string)   { c.AddParent(NewActivity(id)) }
func (c *ContextActivities) AddGroupingID(id string) { c.AddGrouping(NewActivity(id)) }
func (c *ContextActivities) AddCategoryID(id string) { c.AddCategory(NewActivity(id)) }
func (c *ContextActivities) AddOtherID(id string)    { c.AddOther(NewActivity(id)) }

func (c *ContextActivities) ClearParent()   { c.Parent = nil }
func (c *ContextActivities) ClearGrouping() { c.Grouping = nil }
func (c *ContextActivities) ClearCategory() { c.Category = nil }
func (c *ContextActivities) ClearOther()    { c.Other = nil }

func (c *ContextActivities) clone() *ContextActivities {
	if c == nil {
		return nil
	}
	return &ContextActivities{
		Parent:   cloneActivities(c.Parent),
		Grouping: cloneActivities(c.Grouping),
		Category: cloneActivities(c.Category),
		Other:    cloneActivities(c.Other),
	}
}

func cloneActivities(in []Activity) []Activity {
	if len(in) == 0 {
		return nil
	}
	out := make([]Activity, len(in))
	for i, a := range in {
		out[i] = a.clone()
	}
	return out
}

type contextActivitiesJSON struct {
	Parent   activityList `json:"parent,omitempty"`
	Grouping activityList `json:"grouping,omitempty"`
	Category activityList `json:"category,omitempty"`
	Other    activityList `json:"other,omitempty"`
}

func (c ContextActivities) MarshalJSON() ([]byte, error) {
	return json.Marshal(contextActivitiesJSON{
		Parent:   c.Parent,
		Grouping: c.Grouping,
		Category: c.Category,
		Other:    c.Other,
	})
}

func (c *ContextActivities) UnmarshalJSON(data []byte) error {
	var in contextActivitiesJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = ContextActivities{Parent: in.Parent, Grouping: in.Grouping, Category: in.Category, Other: in.Other}
	return nil
}

// activityList decodes either a single activity or an array of them.
type activityList []Activity

func (l *activityList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var a Activity
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		*l = activityList{a}
		return nil
	}
	var items []Activity
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// Context carries the circumstances of a statement.
type Context struct {
	Registration      string
	Instructor        *Actor
	Team              *Actor
	ContextActivities *ContextActivities
	Revision          string
	Platform          string
	Language          string
	Statement         *StatementRef
	Extensions        map[string]any
}

// IsEmpty reports whether nothing in the context would serialize.
func (c *Context) IsEmpty() bool {
	return c == nil || (c.Registration == "" && c.Instructor == nil && c.Team == nil &&
		c.ContextActivities.IsEmpty() && c.Revision == "" && c.Platform == "" &&
		c.Language == "" && c.Statement == nil && len(c.Extensions) == 0)
}

// Activities returns the context activities, creating them on first use.
func (c *Context) Activities() *ContextActivities {
	if c.ContextActivities == nil {
		c.ContextActivities = &ContextActivities{}
	}
	return c.ContextActivities
}

func (c *Context) clone() *Context {
	if c == nil {
		return nil
	}
	out := *c
	if c.Instructor != nil {
		a := c.Instructor.clone()
		out.Instructor = &a
	}
	if c.Team != nil {
		a := c.Team.clone()
		out.Team = &a
	}
	if c.Statement != nil {
		r := *c.Statement
		out.Statement = &r
	}
	out.ContextActivities = c.ContextActivities.clone()
	out.Extensions = cloneExtensions(c.Extensions)
	return &out
}

type contextJSON struct {
	Registration      string             `json:"registration,omitempty"`
	Instructor        *Actor             `json:"instructor,omitempty"`
	Team              *Actor             `json:"team,omitempty"`
	ContextActivities *ContextActivities `json:"contextActivities,omitempty"`
	Revision          string             `json:"revision,omitempty"`
	Platform          string             `json:"platform,omitempty"`
	Language          string             `json:"language,omitempty"`
	Statement         *StatementRef      `json:"statement,omitempty"`
	Extensions        map[string]any     `json:"extensions,omitempty"`
}

func (c Context) MarshalJSON() ([]byte, error) {
	out := contextJSON{
		Registration: c.Registration,
		Instructor:   c.Instructor,
		Team:         c.Team,
		Revision:     c.Revision,
		Platform:     c.Platform,
		Language:     c.Language,
		Statement:    c.Statement,
		Extensions:   c.Extensions,
	}
	if !c.ContextActivities.IsEmpty() {
		out.ContextActivities = c.ContextActivities
	}
	return json.Marshal(out)
}

func (c *Context) UnmarshalJSON(data []byte) error {
	var in contextJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = Context{
		Registration: in.Registration,
		Instructor:   in.Instructor,
		Team:         in.Team,
		Revision:     in.Revision,
		Platform:     in.Platform,
		Language:     in.Language,
		Statement:    in.Statement,
		Extensions:   cloneExtensions(in.Extensions),
	}
	if !in.ContextActivities.IsEmpty() {
		c.ContextActivities = in.ContextActivities
	}
	return nil
}
