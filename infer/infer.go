// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package infer tags free text with category names from a term catalog.
package infer

import (
	"strings"
	"sync"

	"github.com/poiesic/vectorload/core"
)

// DefaultMaxTargets caps the number of names returned per text.
const DefaultMaxTargets = 12

// Term is one catalog entry: a canonical name and the lower-cased terms
// that select it.
type Term struct {
	Name  string
	Terms []string
}

// Catalog is an ordered list of terms. Inference results follow catalog order.
type Catalog []Term

// CatalogFromSkills builds a catalog from skill records. Each skill
// contributes its lower-cased name and aliases; skills sharing a name are
// merged into the first occurrence.
func CatalogFromSkills(skills []core.Skill) Catalog {
	catalog := make(Catalog, 0, len(skills))
	index := make(map[string]int, len(skills))

	for _, s := range skills {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		i, ok := index[key]
		if !ok {
			i = len(catalog)
			index[key] = i
			catalog = append(catalog, Term{Name: name})
		}
		catalog[i].Terms = addTerm(catalog[i].Terms, name)
		for _, alias := range s.Aliases {
			catalog[i].Terms = addTerm(catalog[i].Terms, alias)
		}
	}
	return catalog
}

func addTerm(terms []string, term string) []string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return terms
	}
	for _, t := range terms {
		if t == term {
			return terms
		}
	}
	return append(terms, term)
}

// Infer returns the names of catalog entries with a term occurring in text,
// in catalog order and capped at limit. A limit of zero or less means
// DefaultMaxTargets. The result is nil when nothing matches.
func Infer(text string, catalog Catalog, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxTargets
	}
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return nil
	}

	var out []string
	for _, entry := range catalog {
		for _, term := range entry.Terms {
			if strings.Contains(lower, term) {
				out = append(out, entry.Name)
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Inferer memoizes Infer over a fixed catalog. It is safe for concurrent use.
// The memo grows with every distinct text, so an Inferer should not outlive
// the run it serves.
type Inferer struct {
	catalog Catalog
	limit   int

	mu    sync.Mutex
	cache map[string][]string
}

// NewInferer creates an Inferer over catalog.
func NewInferer(catalog Catalog, limit int) *Inferer {
	return &Inferer{
		catalog: catalog,
		limit:   limit,
		cache:   make(map[string][]string),
	}
}

// Infer implements normalize.Tagger.
func (i *Inferer) Infer(text string) []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if out, ok := i.cache[text]; ok {
		return out
	}
	out := Infer(text, i.catalog, i.limit)
	i.cache[text] = out
	return out
}

// Len returns the number of catalog entries.
func (i *Inferer) Len() int {
	return len(i.catalog)
}
