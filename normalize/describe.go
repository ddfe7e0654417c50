package normalize

import (
	"strings"

	"github.com/poiesic/vectorload/core"
)

const (
	sectionSeparator = "\n"
	entrySeparator   = "; "
)

// Describe synthesizes the composite description of a person. Present
// sections appear in a fixed order with stable labels; unrecognized
// sections are never included.
func Describe(p *core.Person) string {
	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, label+": "+value)
		}
	}

	add("Name", deref(p.Name))
	add("Position", deref(p.Position))
	add("Company", deref(p.Company))
	add("Location", joinPresent(", ", deref(p.City), deref(p.CountryCode)))
	add("About", deref(p.About))

	for _, s := range p.Sections {
		if exp, ok := s.(core.ExperienceSection); ok {
			add("Experience", describeExperience(exp))
		}
	}
	for _, s := range p.Sections {
		if edu, ok := s.(core.EducationSection); ok {
			add("Education", describeEducation(edu))
		}
	}
	for _, s := range p.Sections {
		if skills, ok := s.(core.SkillsSection); ok {
			add("Skills", strings.Join(skills, ", "))
		}
	}

	return strings.Join(lines, sectionSeparator)
}

func describeExperience(entries core.ExperienceSection) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		line := e.Title
		if e.Company != "" {
			line = joinPresent(" at ", line, e.Company)
		}
		if span := joinPresent(" - ", e.Start, e.End); span != "" {
			line = joinPresent(" ", line, "("+span+")")
		}
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, entrySeparator)
}

func describeEducation(entries core.EducationSection) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		line := joinPresent(", ", e.Degree, e.Field)
		line = joinPresent(" at ", line, e.School)
		if span := joinPresent(" - ", e.Start, e.End); span != "" {
			line = joinPresent(" ", line, "("+span+")")
		}
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, entrySeparator)
}

func joinPresent(sep string, parts ...string) string {
	present := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			present = append(present, p)
		}
	}
	return strings.Join(present, sep)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
