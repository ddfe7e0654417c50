// Package normalize turns raw source rows into canonical records.
//
// A normalizer never fails on malformed input. It returns an error wrapping
// core.ErrMalformedRecord, which callers count and skip; any other error
// aborts the run.
package normalize

import (
	"fmt"

	"github.com/poiesic/vectorload/core"
)

// Func normalizes one raw record.
type Func func(raw core.RawRecord) (core.Record, error)

// Tagger infers category tags from free text.
type Tagger interface {
	Infer(text string) []string
}

// DefaultAliasDelimiter separates alias-like text fields.
const DefaultAliasDelimiter = "|"

// MaxResourceDescription bounds stored resource descriptions, in runes.
const MaxResourceDescription = 600

func discard(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrMalformedRecord, fmt.Sprintf(format, args...))
}

// SkillOptions selects the source columns of the skills stream.
type SkillOptions struct {
	NameFields     []string
	AliasFields    []string
	CategoryFields []string
	Delimiter      string
}

// DefaultSkillOptions matches common skills taxonomies such as ESCO exports.
func DefaultSkillOptions() SkillOptions {
	return SkillOptions{
		NameFields:     []string{"name", "preferredLabel", "skill", "skill_name"},
		AliasFields:    []string{"aliases", "altLabels", "alt_labels"},
		CategoryFields: []string{"category", "skillType", "skill_type"},
		Delimiter:      DefaultAliasDelimiter,
	}
}

// Skills returns the skills-stream normalizer.
func Skills(opts SkillOptions) Func {
	defaults := DefaultSkillOptions()
	if len(opts.NameFields) == 0 {
		opts.NameFields = defaults.NameFields
	}
	if len(opts.AliasFields) == 0 {
		opts.AliasFields = defaults.AliasFields
	}
	if len(opts.CategoryFields) == 0 {
		opts.CategoryFields = defaults.CategoryFields
	}
	if opts.Delimiter == "" {
		opts.Delimiter = defaults.Delimiter
	}

	return func(raw core.RawRecord) (core.Record, error) {
		name := Text(First(raw, opts.NameFields...))
		if name == "" {
			return nil, discard("skill name is blank")
		}
		return &core.Skill{
			Name:        name,
			Aliases:     SplitAliases(First(raw, opts.AliasFields...), opts.Delimiter, name),
			Category:    OptionalText(First(raw, opts.CategoryFields...)),
			Description: OptionalText(First(raw, "description", "definition")),
		}, nil
	}
}

// Resources returns the resources-stream normalizer. The tagger may be nil.
func Resources(tagger Tagger) Func {
	return func(raw core.RawRecord) (core.Record, error) {
		url := Text(First(raw, "url", "link", "marketing_url"))
		if url == "" {
			return nil, discard("resource url is blank")
		}
		title := Text(First(raw, "title", "name"))
		if title == "" {
			return nil, discard("resource %s has no title", url)
		}

		r := &core.Resource{
			URL:           url,
			Title:         title,
			Provider:      OptionalText(First(raw, "provider", "platform")),
			HoursEstimate: ParseHours(First(raw, "hours_estimate", "hours", "effort")),
			Free:          ParseYesNo(First(raw, "free", "is_free")),
		}
		if desc := Truncate(Text(First(raw, "description", "short_description", "summary")), MaxResourceDescription); desc != "" {
			r.Description = &desc
		}
		if tagger != nil {
			r.SkillTargets = tagger.Infer(r.EmbeddingText())
		}
		return r, nil
	}
}
