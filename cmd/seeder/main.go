// Command seeder writes deterministic sample source files for the built-in
// streams, suitable for trying out vectorload against a scratch database.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
)

type seedSkill struct {
	name     string
	aliases  []string
	category string
	desc     string
}

var skills = []seedSkill{
	{"Python", []string{"py", "python3"}, "language", "General purpose programming language."},
	{"Go", []string{"golang"}, "language", "Compiled language with built-in concurrency."},
	{"SQL", []string{"structured query language"}, "language", "Language for querying relational databases."},
	{"Rust", nil, "language", "Systems language focused on memory safety."},
	{"TypeScript", []string{"ts"}, "language", "Typed superset of JavaScript."},
	{"Kubernetes", []string{"k8s"}, "platform", "Container orchestration system."},
	{"Docker", nil, "platform", "Container runtime and image tooling."},
	{"Terraform", []string{"tf"}, "tool", "Infrastructure as code tool."},
	{"PostgreSQL", []string{"postgres", "psql"}, "database", "Open source relational database."},
	{"MySQL", nil, "database", "Open source relational database."},
	{"Redis", nil, "database", "In-memory key-value store."},
	{"Kafka", []string{"apache kafka"}, "platform", "Distributed event streaming platform."},
	{"Machine Learning", []string{"ml"}, "discipline", "Building models that learn from data."},
	{"Data Engineering", nil, "discipline", "Designing and running data pipelines."},
	{"Statistics", nil, "discipline", "Collecting and analyzing numerical data."},
	{"Linux", nil, "platform", "Unix-like operating system."},
	{"Git", nil, "tool", "Distributed version control."},
	{"React", []string{"reactjs"}, "framework", "Library for building user interfaces."},
	{"Spark", []string{"apache spark", "pyspark"}, "platform", "Distributed data processing engine."},
	{"Project Management", []string{"pm"}, "discipline", "Planning and delivering projects."},
}

var (
	firstNames = []string{"Ada", "Grace", "Alan", "Barbara", "Edsger", "Frances", "Ken", "Radia", "Linus", "Margaret"}
	lastNames  = []string{"Lovelace", "Hopper", "Turing", "Liskov", "Dijkstra", "Allen", "Thompson", "Perlman", "Torvalds", "Hamilton"}
	positions  = []string{"Data engineer", "Backend developer", "Site reliability engineer", "ML engineer", "Engineering manager"}
	companies  = []string{"Initech", "Globex", "Hooli", "Umbrella", "Stark Industries"}
	cities     = []struct{ city, country string }{{"Berlin", "DE"}, {"Austin", "US"}, {"Lisbon", "PT"}, {"Toronto", "CA"}, {"Pune", "IN"}}
	providers  = []string{"Coursera", "Udemy", "edX", "Pluralsight", "YouTube"}
	levels     = []string{"Introduction to", "Practical", "Advanced", "Hands-on", "Mastering"}
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("seeder failed", "err", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "seeder",
		Usage: "write sample skills, people and resources source files",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "seed", Usage: "output directory"},
			&cli.IntFlag{Name: "people", Value: 50, Usage: "number of people records"},
			&cli.IntFlag{Name: "resources", Value: 40, Usage: "number of resource records"},
			&cli.Uint64Flag{Name: "seed", Value: 42, Usage: "random seed"},
		},
		Action: func(c *cli.Context) error {
			if c.Int("people") < 0 || c.Int("resources") < 0 {
				return fmt.Errorf("record counts cannot be negative")
			}
			return seed(c.String("out"), c.Int("people"), c.Int("resources"), c.Uint64("seed"))
		},
	}
}

func seed(dir string, people, resources int, value uint64) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	rng := rand.New(rand.NewPCG(value, value^0x9e3779b97f4a7c15))

	if err := writeSkills(filepath.Join(dir, "skills.csv")); err != nil {
		return err
	}
	if err := writeJSONL(filepath.Join(dir, "people.jsonl"), peopleRecords(rng, people)); err != nil {
		return err
	}
	if err := writeJSONL(filepath.Join(dir, "resources.jsonl"), resourceRecords(rng, resources)); err != nil {
		return err
	}
	slog.Info("seed files written", "dir", dir, "skills", len(skills), "people", people, "resources", resources)
	return nil
}

func writeSkills(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"name", "aliases", "category", "description"}); err != nil {
		return err
	}
	for _, s := range skills {
		if err := w.Write([]string{s.name, strings.Join(s.aliases, "|"), s.category, s.desc}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func writeJSONL(path string, records []map[string]any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return f.Close()
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.IntN(len(items))]
}

// pickSkills returns n distinct skill names.
func pickSkills(rng *rand.Rand, n int) []string {
	names := make([]string, 0, n)
	for _, i := range rng.Perm(len(skills))[:n] {
		names = append(names, skills[i].name)
	}
	return names
}

func peopleRecords(rng *rand.Rand, n int) []map[string]any {
	records := make([]map[string]any, 0, n)
	for i := range n {
		first, last := pick(rng, firstNames), pick(rng, lastNames)
		loc := pick(rng, cities)
		known := pickSkills(rng, 2+rng.IntN(3))
		company := pick(rng, companies)
		records = append(records, map[string]any{
			"id":              fmt.Sprintf("person-%04d", i+1),
			"name":            first + " " + last,
			"position":        pick(rng, positions),
			"current_company": map[string]any{"name": company},
			"city":            loc.city,
			"country_code":    loc.country,
			"about":           fmt.Sprintf("%s works with %s.", first, strings.Join(known, " and ")),
			"followers":       rng.IntN(5000),
			"connections":     rng.IntN(500),
			"open_to_work":    rng.IntN(4) == 0,
			"skills":          known,
			"experience": []map[string]any{{
				"title":   pick(rng, positions),
				"company": company,
				"start":   fmt.Sprintf("%d", 2010+rng.IntN(14)),
			}},
		})
	}
	return records
}

func resourceRecords(rng *rand.Rand, n int) []map[string]any {
	records := make([]map[string]any, 0, n)
	for i := range n {
		s := pick(rng, skills)
		lo := 1 + rng.IntN(10)
		free := "no"
		if rng.IntN(2) == 0 {
			free = "yes"
		}
		records = append(records, map[string]any{
			"url":            fmt.Sprintf("https://learn.example/%s/%d", slug(s.name), i+1),
			"title":          pick(rng, levels) + " " + s.name,
			"provider":       pick(rng, providers),
			"hours_estimate": fmt.Sprintf("%d-%d hours per week", lo, lo+1+rng.IntN(5)),
			"description":    s.desc + " Covers " + s.name + " from the ground up.",
			"free":           free,
		})
	}
	return records
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "-")
}
