// Package stages holds the per-stage prompts, deterministic fallback variants
// and quality hints for the creative pipeline.
package stages

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
)

//go:embed stages.yaml
var defaultCatalog []byte

// Catalog is the parsed stage catalog.
type Catalog struct {
	System string                       `yaml:"system"`
	Stages map[models.Stage]*StageSpec `yaml:"stages"`
}

// StageSpec describes one generatable stage.
type StageSpec struct {
	Label    string    `yaml:"label"`
	Prompt   string    `yaml:"prompt"`
	MinWords int       `yaml:"min_words"`
	MaxWords int       `yaml:"max_words"`
	MinLines int       `yaml:"min_lines"`
	Markers  []string  `yaml:"markers"`
	Variants []Variant `yaml:"variants"`

	prompt   *template.Template
	variants []*template.Template
}

// Variant is one deterministic structural lens.
type Variant struct {
	Label string `yaml:"label"`
	Body  string `yaml:"body"`
}

// PromptData is the template input for prompts and fallbacks.
type PromptData struct {
	Stage    models.Stage
	Title    string
	Logline  string
	Genre    string
	Tone     string
	Language string
	Previous string
	Tweak    string
	Variant  string
	Index    int
}

// NewPromptData builds template input for stage from a project context.
func NewPromptData(pc models.ProjectContext, stage models.Stage, tweak string) PromptData {
	lang := pc.Language
	if lang == "" {
		lang = "en"
	}
	return PromptData{
		Stage:    stage,
		Title:    pc.Title,
		Logline:  pc.Logline,
		Genre:    pc.Genre,
		Tone:     pc.Tone,
		Language: lang,
		Previous: pc.Previous(stage),
		Tweak:    strings.TrimSpace(tweak),
	}
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog override from path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stage catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog and compiles its templates.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse stage catalog: %w", err)
	}

	funcs := funcMap()
	for _, stage := range models.GeneratableStages() {
		spec, ok := c.Stages[stage]
		if !ok || spec == nil {
			return nil, fmt.Errorf("stage catalog: missing stage %q", stage)
		}
		if len(spec.Variants) != models.CandidatesPerBatch {
			return nil, fmt.Errorf("stage catalog: stage %q has %d variants, want %d",
				stage, len(spec.Variants), models.CandidatesPerBatch)
		}

		tmpl, err := template.New(string(stage)).Funcs(funcs).Parse(spec.Prompt)
		if err != nil {
			return nil, fmt.Errorf("stage catalog: prompt %q: %w", stage, err)
		}
		spec.prompt = tmpl

		spec.variants = make([]*template.Template, len(spec.Variants))
		for i, v := range spec.Variants {
			if strings.TrimSpace(v.Body) == "" {
				return nil, fmt.Errorf("stage catalog: stage %q variant %d is empty", stage, i)
			}
			vt, err := template.New(fmt.Sprintf("%s-%d", stage, i)).Funcs(funcs).Parse(v.Body)
			if err != nil {
				return nil, fmt.Errorf("stage catalog: variant %q/%d: %w", stage, i, err)
			}
			spec.variants[i] = vt
		}

		for i, m := range spec.Markers {
			spec.Markers[i] = strings.ToLower(m)
		}
	}

	for stage := range c.Stages {
		if !stage.Generatable() {
			return nil, fmt.Errorf("stage catalog: %q is not a generatable stage", stage)
		}
	}
	return &c, nil
}

// Spec returns the spec for stage.
func (c *Catalog) Spec(stage models.Stage) (*StageSpec, bool) {
	spec, ok := c.Stages[stage]
	return spec, ok && spec != nil
}

// RenderPrompt renders the provider prompt for candidate slot i.
func (c *Catalog) RenderPrompt(stage models.Stage, data PromptData, i int) (string, error) {
	spec, ok := c.Spec(stage)
	if !ok {
		return "", fmt.Errorf("no prompt for stage %q", stage)
	}
	data.Index = i
	data.Variant = spec.VariantLabel(i)
	return execute(spec.prompt, data)
}

// RenderFallback renders deterministic variant i for stage.
func (c *Catalog) RenderFallback(stage models.Stage, data PromptData, i int) (string, error) {
	spec, ok := c.Spec(stage)
	if !ok {
		return "", fmt.Errorf("no fallback for stage %q", stage)
	}
	if i < 0 || i >= len(spec.variants) {
		return "", fmt.Errorf("stage %q has no variant %d", stage, i)
	}
	data.Index = i
	data.Variant = spec.Variants[i].Label
	text, err := execute(spec.variants[i], data)
	if err != nil {
		return "", err
	}
	return tidy(text), nil
}

// VariantLabel is the label of variant i, or "" when out of range.
func (s *StageSpec) VariantLabel(i int) string {
	if i < 0 || i >= len(s.Variants) {
		return ""
	}
	return s.Variants[i].Label
}

func execute(tmpl *template.Template, data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// tidy trims trailing spaces per line and drops trailing blank lines.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func funcMap() template.FuncMap {
	titler := cases.Title(language.English)
	return template.FuncMap{
		"title": func(s string) string { return titler.String(s) },
		"default": func(def, s string) string {
			if strings.TrimSpace(s) == "" {
				return def
			}
			return s
		},
		"excerpt": Excerpt,
	}
}

// Excerpt returns the first n words of s, with an ellipsis when cut.
func Excerpt(n int, s string) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "..."
}
