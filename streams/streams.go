// Package streams defines the built-in import streams: skills, people and
// resources. Each binds a normalizer to the shape of its target table.
package streams

import (
	"errors"
	"fmt"
	"slices"

	"github.com/poiesic/vectorload/core"
	"github.com/poiesic/vectorload/infer"
	"github.com/poiesic/vectorload/ingestion"
	"github.com/poiesic/vectorload/normalize"
	"github.com/poiesic/vectorload/storage"
)

const (
	Skills    = "skills"
	People    = "people"
	Resources = "resources"
)

// VectorColumn is the embedding column of every built-in table.
const VectorColumn = "embedding"

var ErrUnknownStream = errors.New("unknown stream")

// Names lists the built-in streams in import order. Skills come first since
// the other streams infer tags from the skills catalog.
func Names() []string {
	return []string{Skills, People, Resources}
}

// Known reports whether name is a built-in stream.
func Known(name string) bool {
	return slices.Contains(Names(), name)
}

// UsesCatalog reports whether the stream tags records from the skills catalog.
func UsesCatalog(name string) bool {
	return name == People || name == Resources
}

// Options customize stream construction.
type Options struct {
	// Skills selects the source columns of the skills stream.
	Skills normalize.SkillOptions

	// Tagger infers skill tags for people and resources. It may be nil.
	Tagger normalize.Tagger

	// Policies overrides the overwrite policy per stream.
	Policies map[string]storage.OverwritePolicy

	// TableNames overrides the target table per stream.
	TableNames map[string]string
}

// New builds the named stream.
func New(name string, opts Options) (ingestion.Stream, error) {
	table, err := TableFor(name, opts)
	if err != nil {
		return ingestion.Stream{}, err
	}

	var fn normalize.Func
	switch name {
	case Skills:
		fn = normalize.Skills(opts.Skills)
	case People:
		fn = normalize.People(opts.Tagger)
	case Resources:
		fn = normalize.Resources(opts.Tagger)
	}
	return ingestion.Stream{Name: name, Normalize: fn, Table: table}, nil
}

// TableFor returns the target table of the named stream with opts applied.
func TableFor(name string, opts Options) (storage.Table, error) {
	var table storage.Table
	switch name {
	case Skills:
		table = SkillTable()
	case People:
		table = PeopleTable()
	case Resources:
		table = ResourceTable()
	default:
		return storage.Table{}, fmt.Errorf("%w %q", ErrUnknownStream, name)
	}
	if n := opts.TableNames[name]; n != "" {
		table.Name = n
	}
	if p, ok := opts.Policies[name]; ok {
		table.Policy = p
	}
	return table, nil
}

// Tables returns every built-in table with opts applied, in import order.
func Tables(opts Options) []storage.Table {
	tables := make([]storage.Table, 0, len(Names()))
	for _, name := range Names() {
		t, _ := TableFor(name, opts)
		tables = append(tables, t)
	}
	return tables
}

// SkillTable is skill_node keyed by name. parent_id is created but never
// written by imports.
func SkillTable() storage.Table {
	return storage.Table{
		Name:          "skill_node",
		KeyColumns:    []string{"name"},
		EnrichColumns: []string{"aliases", "category", "description", VectorColumn},
		VectorColumn:  VectorColumn,
		Types: map[string]storage.ColumnType{
			"aliases":     storage.TypeJSON,
			"description": storage.TypeLongText,
			"parent_id":   storage.TypeBigInt,
		},
	}
}

// PeopleTable is people_profiles keyed by profile_id.
func PeopleTable() storage.Table {
	return storage.Table{
		Name:       "people_profiles",
		KeyColumns: []string{"profile_id"},
		EnrichColumns: []string{
			"name", "position", "current_company", "city", "country_code", "about",
			"followers", "connections", "open_to_work",
			"experience", "education", "skills", "extra", "skill_tags", VectorColumn,
		},
		VectorColumn: VectorColumn,
		Types: map[string]storage.ColumnType{
			"about":        storage.TypeLongText,
			"followers":    storage.TypeInt,
			"connections":  storage.TypeInt,
			"open_to_work": storage.TypeBool,
			"experience":   storage.TypeJSON,
			"education":    storage.TypeJSON,
			"skills":       storage.TypeJSON,
			"extra":        storage.TypeJSON,
			"skill_tags":   storage.TypeJSON,
		},
	}
}

// ResourceTable is resources keyed by url.
func ResourceTable() storage.Table {
	return storage.Table{
		Name:          "resources",
		KeyColumns:    []string{"url"},
		EnrichColumns: []string{"title", "provider", "hours_estimate", "description", "free", "skill_targets", VectorColumn},
		VectorColumn:  VectorColumn,
		Types: map[string]storage.ColumnType{
			"hours_estimate": storage.TypeInt,
			"description":    storage.TypeLongText,
			"free":           storage.TypeBool,
			"skill_targets":  storage.TypeJSON,
		},
	}
}

// SkillsFromRecords normalizes raw skills rows, dropping malformed ones.
func SkillsFromRecords(records []core.RawRecord, opts normalize.SkillOptions) []core.Skill {
	fn := normalize.Skills(opts)
	skills := make([]core.Skill, 0, len(records))
	for _, raw := range records {
		rec, err := fn(raw)
		if err != nil {
			continue
		}
		if s, ok := rec.(*core.Skill); ok {
			skills = append(skills, *s)
		}
	}
	return skills
}

// CatalogFromRecords builds an inference catalog from raw skills rows.
func CatalogFromRecords(records []core.RawRecord, opts normalize.SkillOptions) infer.Catalog {
	return infer.CatalogFromSkills(SkillsFromRecords(records, opts))
}
