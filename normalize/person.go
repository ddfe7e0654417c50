package normalize

import (
	"slices"

	"github.com/poiesic/vectorload/core"
)

var (
	personIDKeys       = []string{"id", "profile_id", "linkedin_id", "url"}
	personNameKeys     = []string{"name", "full_name"}
	personPositionKeys = []string{"position", "headline", "title"}
	personCompanyKeys  = []string{"current_company", "current_company_name", "company"}
	personCityKeys     = []string{"city", "location"}
	personCountryKeys  = []string{"country_code", "country"}
	personAboutKeys    = []string{"about", "summary"}
	personExpKeys      = []string{"experience", "positions"}
	personEduKeys      = []string{"education", "educations_details"}
	personSkillKeys    = []string{"skills"}
	personFollowerKeys = []string{"followers"}
	personConnectKeys  = []string{"connections"}
	personOpenKeys     = []string{"open_to_work", "is_open_to_work"}

	personKnown = keySet(personIDKeys, personNameKeys, personPositionKeys, personCompanyKeys,
		personCityKeys, personCountryKeys, personAboutKeys, personExpKeys, personEduKeys,
		personSkillKeys, personFollowerKeys, personConnectKeys, personOpenKeys)
)

// People returns the people-stream normalizer. Fields outside the known
// shape are kept as unrecognized sections. The tagger may be nil.
func People(tagger Tagger) Func {
	return func(raw core.RawRecord) (core.Record, error) {
		id := Text(First(raw, personIDKeys...))
		if id == "" {
			return nil, discard("profile has no identity field")
		}

		p := &core.Person{
			ProfileID:   id,
			Name:        OptionalText(First(raw, personNameKeys...)),
			Position:    OptionalText(First(raw, personPositionKeys...)),
			CountryCode: OptionalText(First(raw, personCountryKeys...)),
			City:        OptionalText(First(raw, personCityKeys...)),
			About:       OptionalText(First(raw, personAboutKeys...)),
			Followers:   ParseCount(First(raw, personFollowerKeys...)),
			Connections: ParseCount(First(raw, personConnectKeys...)),
			OpenToWork:  ParseYesNo(First(raw, personOpenKeys...)),
		}
		if company := companyName(Nested(First(raw, personCompanyKeys...))); company != "" {
			p.Company = &company
		}

		if exp := experienceSection(First(raw, personExpKeys...)); len(exp) > 0 {
			p.Sections = append(p.Sections, exp)
		}
		if edu := educationSection(First(raw, personEduKeys...)); len(edu) > 0 {
			p.Sections = append(p.Sections, edu)
		}
		if skills := skillsSection(First(raw, personSkillKeys...)); len(skills) > 0 {
			p.Sections = append(p.Sections, skills)
		}
		p.Sections = append(p.Sections, unrecognized(raw)...)

		p.Description = Describe(p)
		if tagger != nil {
			p.SkillTags = tagger.Infer(p.Description)
		}
		return p, nil
	}
}

// unrecognized collects fields outside the known shape in key order. Values
// that are absent or fail to serialize are dropped.
func unrecognized(raw core.RawRecord) []core.Section {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		if _, ok := personKnown[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var out []core.Section
	for _, k := range keys {
		data := CompactJSON(Nested(raw[k]))
		if data == nil || string(data) == "null" {
			continue
		}
		out = append(out, core.UnrecognizedSection{Field: k, Value: data})
	}
	return out
}
