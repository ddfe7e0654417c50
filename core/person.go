package core

import (
	"encoding/json"
)

// Section is one structured sub-section of a person record. The set of
// implementations is closed: experience, education, skills, and an
// unrecognized bucket that carries any other field through opaquely.
type Section interface {
	section()
}

// ExperienceEntry is a single position held.
type ExperienceEntry struct {
	Title       string         `json:"title,omitempty"`
	Company     string         `json:"company,omitempty"`
	Location    string         `json:"location,omitempty"`
	Start       string         `json:"start,omitempty"`
	End         string         `json:"end,omitempty"`
	Description string         `json:"description,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// EducationEntry is a single degree or course of study.
type EducationEntry struct {
	School string         `json:"school,omitempty"`
	Degree string         `json:"degree,omitempty"`
	Field  string         `json:"field,omitempty"`
	Start  string         `json:"start,omitempty"`
	End    string         `json:"end,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// ExperienceSection lists positions in source order.
type ExperienceSection []ExperienceEntry

// EducationSection lists education entries in source order.
type EducationSection []EducationEntry

// SkillsSection lists self-reported skills.
type SkillsSection []string

// UnrecognizedSection holds a source field with no known shape as compact JSON.
type UnrecognizedSection struct {
	Field string
	Value json.RawMessage
}

func (ExperienceSection) section()   {}
func (EducationSection) section()    {}
func (SkillsSection) section()       {}
func (UnrecognizedSection) section() {}

// Person is a canonical people-stream record keyed by profile identity.
type Person struct {
	ProfileID   string
	Name        *string
	Position    *string
	Company     *string
	City        *string
	CountryCode *string
	About       *string
	Followers   *int
	Connections *int
	OpenToWork  *bool
	Sections    []Section
	SkillTags   []string

	// Description is the composite text used as embedding input only.
	Description string
}

var _ Record = (*Person)(nil)

func (p *Person) Key() string { return p.ProfileID }

func (p *Person) EmbeddingText() string {
	if p.Description == "" {
		return p.ProfileID
	}
	return p.Description
}

func (p *Person) Columns() map[string]any {
	cols := map[string]any{
		"profile_id":      p.ProfileID,
		"name":            deref(p.Name),
		"position":        deref(p.Position),
		"current_company": deref(p.Company),
		"city":            deref(p.City),
		"country_code":    deref(p.CountryCode),
		"about":           deref(p.About),
		"followers":       deref(p.Followers),
		"connections":     deref(p.Connections),
		"open_to_work":    deref(p.OpenToWork),
		"experience":      nil,
		"education":       nil,
		"skills":          nil,
		"extra":           nil,
		"skill_tags":      ListColumn(p.SkillTags),
	}

	var extra map[string]json.RawMessage
	for _, s := range p.Sections {
		switch s := s.(type) {
		case ExperienceSection:
			cols["experience"] = jsonColumn(s, len(s))
		case EducationSection:
			cols["education"] = jsonColumn(s, len(s))
		case SkillsSection:
			cols["skills"] = ListColumn(s)
		case UnrecognizedSection:
			if extra == nil {
				extra = make(map[string]json.RawMessage)
			}
			extra[s.Field] = s.Value
		}
	}
	cols["extra"] = jsonColumn(extra, len(extra))
	return cols
}

// jsonColumn encodes v as compact JSON. Empty values and encoding
// failures both yield nil.
func jsonColumn(v any, n int) any {
	if n == 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(data)
}
