// Package normalize turns free-form vision-model output into the canonical
// NormalizedResult. Labels, parameters and freshness phrases come from a
// versioned Vocabulary so wording changes never reach the validator or scorer.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/fishlens/fishlens/pkg/models"
)

// ErrNoRecognizableContent is returned when raw text holds nothing usable
// for the requested analysis kind.
var ErrNoRecognizableContent = errors.New("no recognizable content")

var (
	numberRe   = regexp.MustCompile(`-?\d+(?:,\d{3})*(?:[.,]\d+)?`)
	numberedRe = regexp.MustCompile(`^\d+[.)]\s+`)
	bulletRe   = regexp.MustCompile(`^[-*•+]\s+`)
)

// maxDigits bounds integer parsing; longer runs are treated as malformed.
const maxDigits = 9

// Normalizer is safe for concurrent use.
type Normalizer struct {
	vocab *Vocabulary
	m     *matcher
}

// New builds a Normalizer. A nil vocabulary selects the built-in one.
func New(vocab *Vocabulary) (*Normalizer, error) {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	m, err := compile(vocab)
	if err != nil {
		return nil, err
	}
	return &Normalizer{vocab: vocab, m: m}, nil
}

// Default returns a Normalizer over the built-in vocabulary.
func Default() *Normalizer {
	n, err := New(nil)
	if err != nil {
		panic(err)
	}
	return n
}

// VocabularyVersion reports the version of the loaded vocabulary.
func (n *Normalizer) VocabularyVersion() int { return n.vocab.Version }

// Normalize parses raw model text for the given kind.
func (n *Normalizer) Normalize(raw string, kind models.AnalysisKind) (models.NormalizedResult, error) {
	if !kind.Valid() {
		return models.NormalizedResult{}, fmt.Errorf("normalize: unknown analysis kind %q", kind)
	}

	p := &parser{m: n.m, subs: make(map[string]models.SubScore)}
	for _, l := range n.m.splitLines(raw) {
		p.line(l)
	}

	if !p.recognized(kind) {
		return models.NormalizedResult{}, ErrNoRecognizableContent
	}
	return p.result(kind), nil
}

type section int

const (
	sectionNone section = iota
	sectionParameters
	sectionNotes
)

type parser struct {
	m *matcher

	section section
	pending *target

	speciesSeen   bool
	freshnessSeen bool

	species  *models.Species
	catSet   bool
	category models.FreshnessCategory
	catText  string
	scoreSet bool
	score    models.Numeric
	catScore *models.Numeric
	subs     map[string]models.SubScore
	notes    []string
	noteSeen map[string]bool
}

// cleaned is one line after markdown noise is removed.
type cleaned struct {
	heading bool
	labeled bool
	label   string
	value   string
	text    string
}

func (p *parser) line(raw string) {
	c, ok := cleanLine(raw)
	if !ok {
		return
	}
	switch {
	case c.heading:
		p.heading(c.text)
	case c.labeled:
		p.labeled(c)
	default:
		p.unlabeled(c.text)
	}
}

func (p *parser) heading(text string) {
	p.pending = nil
	if text == "" {
		p.section = sectionNone
		return
	}
	t := p.m.resolve(text)
	switch t.kind {
	case targetSection:
		p.openSection(t.name)
	case targetField:
		p.section = sectionNone
		p.expect(t)
	case targetParameter:
		if p.section == sectionNotes {
			p.section = sectionNone
		}
		p.expect(t)
	default:
		p.section = sectionNone
	}
}

func (p *parser) labeled(c cleaned) {
	t := p.m.resolve(c.label)
	if t.kind == targetNone {
		switch {
		case p.pending != nil:
			p.fillPending(c.text)
		case p.section == sectionParameters && hasDigit(c.value) && hasLetter(c.label):
			p.addSubScore(target{kind: targetParameter, name: matchKey(c.label), label: c.label}, c.value)
		case p.section == sectionNotes:
			p.addNote(c.text)
		}
		return
	}

	p.pending = nil
	switch t.kind {
	case targetSection:
		p.openSection(t.name)
		if t.name == SectionNotes {
			p.addNote(c.value)
		}
		return
	case targetField:
		p.section = sectionNone
	case targetParameter:
		if p.section == sectionNotes {
			p.section = sectionNone
		}
	}
	if c.value == "" {
		p.expect(t)
		return
	}
	p.assign(t, c.value)
}

func (p *parser) unlabeled(text string) {
	if p.pending != nil {
		p.fillPending(text)
		return
	}
	if p.section == sectionNotes {
		p.addNote(text)
		return
	}
	// A bare label on its own line acts as a heading.
	if _, ok := p.m.exact[matchKey(text)]; ok {
		p.heading(text)
	}
}

func (p *parser) openSection(name string) {
	switch name {
	case SectionParameters:
		p.section = sectionParameters
	case SectionNotes:
		p.section = sectionNotes
	default:
		p.section = sectionNone
	}
}

// expect records a label whose value arrives on the next line.
func (p *parser) expect(t target) {
	p.markSeen(t)
	p.pending = &t
}

func (p *parser) fillPending(value string) {
	t := *p.pending
	p.pending = nil
	p.assign(t, value)
}

func (p *parser) markSeen(t target) {
	switch {
	case t.kind == targetField && t.name == FieldSpecies:
		p.speciesSeen = true
	case t.kind == targetField, t.kind == targetParameter:
		p.freshnessSeen = true
	}
}

func (p *parser) assign(t target, value string) {
	p.markSeen(t)
	if t.kind == targetParameter {
		p.addSubScore(t, value)
		return
	}
	switch t.name {
	case FieldSpecies:
		if p.species == nil {
			s := p.parseSpecies(value)
			p.species = &s
		}
	case FieldFreshnessScore:
		if !p.scoreSet {
			p.scoreSet = true
			p.score = p.parseNumeric(value)
		}
	case FieldFreshnessCategory:
		if !p.catSet {
			p.catSet = true
			p.category, p.catText, p.catScore = p.parseCategory(value)
		}
	}
}

func (p *parser) addSubScore(t target, value string) {
	p.markSeen(t)
	if _, dup := p.subs[t.name]; dup {
		return
	}
	p.subs[t.name] = models.SubScore{
		Parameter: t.name,
		Label:     t.label,
		Score:     p.parseNumeric(value),
	}
}

func (p *parser) addNote(text string) {
	text = collapse(text)
	if p.m.isUnknown(text) {
		return
	}
	if p.noteSeen == nil {
		p.noteSeen = make(map[string]bool)
	}
	if p.noteSeen[text] {
		return
	}
	p.noteSeen[text] = true
	p.notes = append(p.notes, text)
}

func (p *parser) recognized(kind models.AnalysisKind) bool {
	return (kind.WantsSpecies() && p.speciesSeen) || (kind.WantsFreshness() && p.freshnessSeen)
}

func (p *parser) result(kind models.AnalysisKind) models.NormalizedResult {
	r := models.EmptyResult(kind)
	if kind.WantsSpecies() && p.species != nil {
		r.Species = *p.species
	}
	if kind.WantsFreshness() {
		if p.catSet {
			r.Freshness.Category = p.category
			r.Freshness.CategoryText = p.catText
		}
		switch {
		case p.scoreSet && p.score.State != models.StateAbsent:
			r.Freshness.Score = p.score
		case p.catScore != nil:
			r.Freshness.Score = *p.catScore
		}
		r.SubScores = p.orderedSubScores()
	}
	r.Notes = p.notes
	return r
}

func (p *parser) orderedSubScores() []models.SubScore {
	if len(p.subs) == 0 {
		return nil
	}
	out := make([]models.SubScore, 0, len(p.subs))
	for _, s := range p.subs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		oi, ki := p.m.paramOrder[out[i].Parameter]
		oj, kj := p.m.paramOrder[out[j].Parameter]
		switch {
		case ki && kj:
			return oi < oj
		case ki != kj:
			return ki
		default:
			return out[i].Parameter < out[j].Parameter
		}
	})
	return out
}

// parseNumeric reads the first number in value. Decimals round half-up.
func (p *parser) parseNumeric(value string) models.Numeric {
	value = collapse(value)
	if p.m.isUnknown(value) {
		return models.AbsentNumeric()
	}
	tok := numberRe.FindString(value)
	if tok == "" {
		return models.MalformedNumeric(value)
	}
	// A comma is a decimal mark only before one or two digits ("7,5");
	// otherwise it groups thousands ("1,000").
	whole, frac := tok, ""
	if i := strings.LastIndexAny(tok, ".,"); i >= 0 && (tok[i] == '.' || len(tok)-i-1 <= 2) {
		whole, frac = tok[:i], tok[i+1:]
	}
	whole = strings.ReplaceAll(whole, ",", "")
	if len(strings.TrimPrefix(whole, "-")) > maxDigits {
		return models.MalformedNumeric(value)
	}
	if frac != "" {
		f, err := strconv.ParseFloat(whole+"."+frac, 64)
		if err != nil {
			return models.MalformedNumeric(value)
		}
		return models.PresentNumeric(int(math.Floor(f + 0.5)))
	}
	v, err := strconv.Atoi(whole)
	if err != nil {
		return models.MalformedNumeric(value)
	}
	return models.PresentNumeric(v)
}

func (p *parser) parseCategory(value string) (models.FreshnessCategory, string, *models.Numeric) {
	value = collapse(value)
	if p.m.isUnknown(value) {
		return models.CategoryAbsent, "", nil
	}
	var num *models.Numeric
	if hasDigit(value) {
		n := p.parseNumeric(value)
		if n.Present() {
			num = &n
		}
	}
	if cat, ok := p.m.category(value); ok {
		return cat, "", num
	}
	if hasDigit(value) {
		return models.CategoryAbsent, "", num
	}
	return models.CategoryUnrecognized, strings.ToLower(value), nil
}

func (p *parser) parseSpecies(value string) models.Species {
	v := strings.TrimRight(collapse(value), ".,;:! ")
	if p.m.isUnknown(v) {
		return models.Species{State: models.StateAbsent}
	}
	name, sci := v, ""
	if strings.HasSuffix(v, ")") {
		if i := strings.LastIndex(v, "("); i >= 0 {
			sci = strings.TrimSpace(v[i+1 : len(v)-1])
			name = strings.TrimSpace(v[:i])
		}
	}
	if p.m.isUnknown(name) {
		name, sci = sci, ""
	}
	name = strings.TrimRight(name, ".,;:!- ")
	if p.m.isUnknown(name) {
		return models.Species{State: models.StateAbsent}
	}
	return models.Species{State: models.StatePresent, Name: name, ScientificName: sci}
}

// splitLines returns the logical lines of raw. A JSON object opening the
// response and fenced JSON blocks are flattened in place; surrounding prose
// is kept.
func (m *matcher) splitLines(raw string) []string {
	var out []string
	if lines, rest, ok := m.leadingJSON(raw); ok {
		out, raw = lines, rest
	}

	var block []string
	fenced := false
	for _, l := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			if fenced {
				out = append(out, m.blockLines(block)...)
				block = nil
			}
			fenced = !fenced
			continue
		}
		if fenced {
			block = append(block, l)
			continue
		}
		out = append(out, l)
	}
	return append(out, m.blockLines(block)...)
}

func cleanLine(raw string) (cleaned, bool) {
	t := strings.TrimSpace(raw)
	if t == "" {
		return cleaned{}, false
	}

	var c cleaned
	switch {
	case strings.HasPrefix(t, "#"):
		c.heading = true
		t = strings.TrimLeft(t, "#")
	case wrapped(t, "**"), wrapped(t, "__"):
		c.heading = true
	}

	t = strings.NewReplacer("**", "", "__", "", "`", "").Replace(t)
	for strings.HasPrefix(t, ">") {
		t = strings.TrimSpace(strings.TrimPrefix(t, ">"))
	}
	t = bulletRe.ReplaceAllString(t, "")
	t = numberedRe.ReplaceAllString(t, "")
	t = collapse(t)

	if c.heading {
		text := strings.TrimRight(t, ":： ")
		// "## Skor: 8" carries its own value.
		if label, value, ok := splitLabel(text); ok && value != "" {
			return cleaned{labeled: true, label: label, value: value, text: text}, true
		}
		c.text = text
		return c, true
	}
	if t == "" {
		return cleaned{}, false
	}
	c.text = t
	if label, value, ok := splitLabel(t); ok {
		c.labeled = true
		c.label = label
		c.value = value
	}
	return c, true
}

// splitLabel splits "label: value". Colons win over the weaker "=" and " - "
// separators.
func splitLabel(t string) (string, string, bool) {
	for _, seps := range [][]string{{":", "："}, {"=", " - ", " – "}} {
		best, width := -1, 0
		for _, sep := range seps {
			if i := strings.Index(t, sep); i >= 0 && (best < 0 || i < best) {
				best, width = i, len(sep)
			}
		}
		if best < 0 {
			continue
		}
		label := strings.TrimRight(strings.TrimSpace(t[:best]), ".-*")
		if label == "" {
			return "", "", false
		}
		return label, strings.TrimSpace(t[best+width:]), true
	}
	return "", "", false
}

// wrapped reports whether t is a single bold span such as "**Parameter:**".
func wrapped(t, marker string) bool {
	t = strings.TrimRight(t, ":： ")
	return len(t) > 2*len(marker) &&
		strings.HasPrefix(t, marker) &&
		strings.HasSuffix(t, marker) &&
		strings.Count(t, marker) == 2
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}
