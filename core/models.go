package core

import (
	"database/sql/driver"
	"encoding/binary"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// RawRecord is an untyped source row: field name to string, number,
// list, nested mapping or nil. Records are read-only to the normalizer.
type RawRecord map[string]any

// Record is a canonical, sanitized record ready for embedding and storage.
type Record interface {
	// Key returns the natural key used for upsert conflict resolution.
	Key() string

	// EmbeddingText composes the text handed to the embedding provider.
	// Fields are joined in a fixed order so equal records embed equally.
	EmbeddingText() string

	// Columns returns the record's column values keyed by column name.
	// Absent values are nil; compound values are compact JSON text.
	Columns() map[string]any
}

// Vector is a fixed-length embedding attached to exactly one record.
type Vector []float32

// String renders the vector as a bracketed array literal, the form accepted
// by both TiDB VECTOR and pgvector columns.
func (v Vector) String() string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// Value implements driver.Valuer.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return v.String(), nil
}

// Skill is a canonical skills-stream record keyed by name.
type Skill struct {
	Name        string
	Aliases     []string
	Category    *string
	Description *string
}

var _ Record = (*Skill)(nil)

func (s *Skill) Key() string { return s.Name }

// EmbeddingText joins the name and aliases with " | ".
func (s *Skill) EmbeddingText() string {
	parts := make([]string, 0, len(s.Aliases)+1)
	parts = append(parts, s.Name)
	parts = append(parts, s.Aliases...)
	return strings.Join(parts, " | ")
}

func (s *Skill) Columns() map[string]any {
	return map[string]any{
		"name":        s.Name,
		"aliases":     ListColumn(s.Aliases),
		"category":    deref(s.Category),
		"description": deref(s.Description),
	}
}

// Resource is a canonical learning-resource record keyed by URL.
type Resource struct {
	URL           string
	Title         string
	Provider      *string
	HoursEstimate *int
	Description   *string
	Free          *bool
	SkillTargets  []string
}

var _ Record = (*Resource)(nil)

func (r *Resource) Key() string { return r.URL }

// EmbeddingText is the title and description separated by a newline.
func (r *Resource) EmbeddingText() string {
	desc := ""
	if r.Description != nil {
		desc = *r.Description
	}
	return r.Title + "\n" + desc
}

func (r *Resource) Columns() map[string]any {
	return map[string]any{
		"url":            r.URL,
		"title":          r.Title,
		"provider":       deref(r.Provider),
		"hours_estimate": deref(r.HoursEstimate),
		"description":    deref(r.Description),
		"free":           deref(r.Free),
		"skill_targets":  ListColumn(r.SkillTargets),
	}
}

// ListColumn encodes a string list as a JSON array, or nil when empty.
func ListColumn(items []string) any {
	if len(items) == 0 {
		return nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	return string(data)
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
