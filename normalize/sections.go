package normalize

import (
	"strings"

	"github.com/poiesic/vectorload/core"
)

var (
	experienceTitleKeys    = []string{"title", "position", "role"}
	experienceCompanyKeys  = []string{"company", "company_name", "subtitle"}
	experienceLocationKeys = []string{"location"}
	experienceDescKeys     = []string{"description", "summary"}
	educationSchoolKeys    = []string{"school", "institution", "university", "title"}
	educationDegreeKeys    = []string{"degree", "degree_name"}
	educationFieldKeys     = []string{"field", "field_of_study", "major"}
	startKeys              = []string{"start", "start_date", "starts_at", "start_year"}
	endKeys                = []string{"end", "end_date", "ends_at", "end_year"}
)

// experienceSection decodes a list of position mappings. Plain strings are
// taken as titles. Entries with no content are dropped.
func experienceSection(v any) core.ExperienceSection {
	var out core.ExperienceSection
	for _, item := range asList(Nested(v)) {
		switch x := item.(type) {
		case map[string]any:
			known := keySet(experienceTitleKeys, experienceCompanyKeys, experienceLocationKeys,
				experienceDescKeys, startKeys, endKeys)
			entry := core.ExperienceEntry{
				Title:       Text(firstIn(x, experienceTitleKeys)),
				Company:     companyName(firstIn(x, experienceCompanyKeys)),
				Location:    Text(firstIn(x, experienceLocationKeys)),
				Start:       Text(firstIn(x, startKeys)),
				End:         Text(firstIn(x, endKeys)),
				Description: Text(firstIn(x, experienceDescKeys)),
				Extra:       leftovers(x, known),
			}
			if entry.Title != "" || entry.Company != "" || entry.Description != "" || len(entry.Extra) > 0 {
				out = append(out, entry)
			}
		default:
			if s := Text(x); s != "" {
				out = append(out, core.ExperienceEntry{Title: s})
			}
		}
	}
	return out
}

// educationSection decodes a list of education mappings.
func educationSection(v any) core.EducationSection {
	var out core.EducationSection
	for _, item := range asList(Nested(v)) {
		switch x := item.(type) {
		case map[string]any:
			known := keySet(educationSchoolKeys, educationDegreeKeys, educationFieldKeys, startKeys, endKeys)
			entry := core.EducationEntry{
				School: Text(firstIn(x, educationSchoolKeys)),
				Degree: Text(firstIn(x, educationDegreeKeys)),
				Field:  Text(firstIn(x, educationFieldKeys)),
				Start:  Text(firstIn(x, startKeys)),
				End:    Text(firstIn(x, endKeys)),
				Extra:  leftovers(x, known),
			}
			if entry.School != "" || entry.Degree != "" || entry.Field != "" || len(entry.Extra) > 0 {
				out = append(out, entry)
			}
		default:
			if s := Text(x); s != "" {
				out = append(out, core.EducationEntry{School: s})
			}
		}
	}
	return out
}

// skillsSection accepts a list or a comma-, pipe- or semicolon-separated string.
func skillsSection(v any) core.SkillsSection {
	v = Nested(v)
	if s, ok := v.(string); ok {
		v = strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' || r == ';' })
	}
	return SplitAliases(v, ",", "")
}

func asList(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case map[string]any:
		return []any{x}
	case nil:
		return nil
	default:
		return []any{x}
	}
}

func firstIn(m map[string]any, keys []string) any {
	return First(core.RawRecord(m), keys...)
}

// companyName accepts either a plain name or a mapping with a name field.
func companyName(v any) string {
	if m, ok := v.(map[string]any); ok {
		return Text(m["name"])
	}
	return Text(v)
}

func keySet(groups ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, g := range groups {
		for _, k := range g {
			set[k] = struct{}{}
		}
	}
	return set
}

// leftovers returns the sanitized fields of m not named in known, skipping nils.
func leftovers(m map[string]any, known map[string]struct{}) map[string]any {
	var out map[string]any
	for k, v := range m {
		if _, ok := known[k]; ok {
			continue
		}
		clean := Sanitize(v)
		if clean == nil {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[k] = clean
	}
	return out
}
