package normalize

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/fishlens/fishlens/pkg/models"
)

//go:embed vocabulary.yaml
var defaultVocabulary []byte

// Field, section and category names a vocabulary must define.
const (
	FieldSpecies           = "species"
	FieldFreshnessScore    = "freshness_score"
	FieldFreshnessCategory = "freshness_category"

	SectionParameters = "parameters"
	SectionNotes      = "notes"
)

var (
	requiredFields   = []string{FieldSpecies, FieldFreshnessScore, FieldFreshnessCategory}
	requiredSections = []string{SectionParameters, SectionNotes}
	knownCategories  = map[string]models.FreshnessCategory{
		string(models.CategoryVeryFresh): models.CategoryVeryFresh,
		string(models.CategoryFresh):     models.CategoryFresh,
		string(models.CategoryLessFresh): models.CategoryLessFresh,
		string(models.CategoryNotFresh):  models.CategoryNotFresh,
	}
)

// Vocabulary is the versioned set of labels and phrases the normalizer
// recognizes in model output.
type Vocabulary struct {
	Version        int             `yaml:"version"`
	UnknownMarkers []string        `yaml:"unknown_markers"`
	Fields         []Entry         `yaml:"fields"`
	Sections       []Entry         `yaml:"sections"`
	Parameters     []Entry         `yaml:"parameters"`
	Categories     []CategoryEntry `yaml:"categories"`
}

// Entry maps label synonyms to a canonical name. Label is used when
// serializing and is always recognized as a synonym of itself.
type Entry struct {
	Name     string   `yaml:"name"`
	Label    string   `yaml:"label"`
	Synonyms []string `yaml:"synonyms"`
}

// CategoryEntry maps freshness phrases to a canonical category.
type CategoryEntry struct {
	Name    string   `yaml:"name"`
	Label   string   `yaml:"label"`
	Phrases []string `yaml:"phrases"`
}

// DefaultVocabulary returns the built-in vocabulary.
func DefaultVocabulary() *Vocabulary {
	v, err := ParseVocabulary(defaultVocabulary)
	if err != nil {
		panic(fmt.Sprintf("normalize: built-in vocabulary is invalid: %v", err))
	}
	return v
}

// LoadVocabulary reads a YAML vocabulary file.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary decodes and checks a YAML vocabulary.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	if _, err := compile(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

type targetKind int

const (
	targetNone targetKind = iota
	targetField
	targetSection
	targetParameter
)

type target struct {
	kind  targetKind
	name  string
	label string
}

type containRule struct {
	target target
	keys   []string
}

type categoryPhrase struct {
	key      string
	category models.FreshnessCategory
}

// matcher is the compiled, read-only form of a Vocabulary.
type matcher struct {
	exact          map[string]target
	contain        []containRule
	unknown        map[string]bool
	unknownLabel   string
	phrases        []categoryPhrase
	categoryLabels map[models.FreshnessCategory]string
	fieldLabels    map[string]string
	sectionLabels  map[string]string
	paramOrder     map[string]int
}

func compile(v *Vocabulary) (*matcher, error) {
	m := &matcher{
		exact:          make(map[string]target),
		unknown:        make(map[string]bool),
		categoryLabels: make(map[models.FreshnessCategory]string),
		fieldLabels:    make(map[string]string),
		sectionLabels:  make(map[string]string),
		paramOrder:     make(map[string]int),
	}

	if len(v.UnknownMarkers) == 0 {
		return nil, fmt.Errorf("vocabulary: no unknown markers")
	}
	for _, u := range v.UnknownMarkers {
		m.unknown[matchKey(u)] = true
	}
	m.unknownLabel = v.UnknownMarkers[0]

	groups := []struct {
		kind    targetKind
		entries []Entry
	}{
		{targetField, v.Fields},
		{targetParameter, v.Parameters},
		{targetSection, v.Sections},
	}
	rules := make(map[targetKind][]containRule)
	for _, g := range groups {
		for _, e := range g.entries {
			if e.Name == "" || e.Label == "" {
				return nil, fmt.Errorf("vocabulary: entry %q needs a name and a label", e.Name)
			}
			t := target{kind: g.kind, name: e.Name, label: e.Label}
			rule := containRule{target: t}
			for _, syn := range append([]string{e.Label}, e.Synonyms...) {
				k := matchKey(syn)
				if k == "" {
					continue
				}
				if _, taken := m.exact[k]; !taken {
					m.exact[k] = t
				}
				rule.keys = append(rule.keys, k)
			}
			rules[g.kind] = append(rules[g.kind], rule)

			switch g.kind {
			case targetField:
				m.fieldLabels[e.Name] = e.Label
			case targetSection:
				m.sectionLabels[e.Name] = e.Label
			case targetParameter:
				m.paramOrder[e.Name] = len(m.paramOrder)
			}
		}
	}
	// Body-part words are more specific than field words, so parameters
	// win containment matches ("skor mata" is an eyes sub-score).
	m.contain = append(m.contain, rules[targetParameter]...)
	m.contain = append(m.contain, rules[targetField]...)
	m.contain = append(m.contain, rules[targetSection]...)

	for _, name := range requiredFields {
		if _, ok := m.fieldLabels[name]; !ok {
			return nil, fmt.Errorf("vocabulary: missing field %q", name)
		}
	}
	for _, name := range requiredSections {
		if _, ok := m.sectionLabels[name]; !ok {
			return nil, fmt.Errorf("vocabulary: missing section %q", name)
		}
	}

	for _, c := range v.Categories {
		cat, ok := knownCategories[c.Name]
		if !ok {
			return nil, fmt.Errorf("vocabulary: unknown category %q", c.Name)
		}
		if c.Label == "" {
			return nil, fmt.Errorf("vocabulary: category %q needs a label", c.Name)
		}
		m.categoryLabels[cat] = c.Label
		for _, p := range append([]string{c.Label}, c.Phrases...) {
			if k := matchKey(p); k != "" {
				m.phrases = append(m.phrases, categoryPhrase{key: k, category: cat})
			}
		}
	}
	for _, cat := range knownCategories {
		if _, ok := m.categoryLabels[cat]; !ok {
			return nil, fmt.Errorf("vocabulary: missing category %q", cat)
		}
	}
	sort.SliceStable(m.phrases, func(i, j int) bool {
		return len(m.phrases[i].key) > len(m.phrases[j].key)
	})

	// Serialized output must parse back to the same structure.
	for _, g := range groups {
		for _, e := range g.entries {
			if got := m.resolve(e.Label); got.name != e.Name || got.kind != g.kind {
				return nil, fmt.Errorf("vocabulary: label %q resolves to %q", e.Label, got.name)
			}
		}
	}
	for cat, label := range m.categoryLabels {
		if got, _ := m.category(label); got != cat {
			return nil, fmt.Errorf("vocabulary: category label %q resolves to %q", label, got)
		}
	}
	return m, nil
}

// resolve maps a label to its target: exact synonym matches first, then
// whole-word containment.
func (m *matcher) resolve(label string) target {
	k := matchKey(label)
	if k == "" {
		return target{}
	}
	if t, ok := m.exact[k]; ok {
		return t
	}
	for _, r := range m.contain {
		for _, syn := range r.keys {
			if containsWord(k, syn) {
				return r.target
			}
		}
	}
	return target{}
}

func (m *matcher) isUnknown(value string) bool {
	k := matchKey(value)
	return k == "" || m.unknown[k]
}

// category finds the longest known phrase in text.
func (m *matcher) category(text string) (models.FreshnessCategory, bool) {
	k := matchKey(text)
	for _, p := range m.phrases {
		if containsWord(k, p.key) {
			return p.category, true
		}
	}
	return models.CategoryAbsent, false
}

// matchKey lowercases s and reduces every run of non-alphanumerics to a
// single space.
func matchKey(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

func containsWord(key, word string) bool {
	return strings.Contains(" "+key+" ", " "+word+" ")
}
