package parser

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hupe1980/reactmesh/core"
)

// DefaultTerminationMarker signals a FinalAnswer unless configured otherwise.
const DefaultTerminationMarker = "FINAL ANSWER:"

// ErrNoLabel is wrapped by the ParseError returned for text without any recognized label.
var ErrNoLabel = errors.New("no recognized label")

var (
	labelPattern = regexp.MustCompile(`(?i)(?:\*\*|__)?\b(plan|thought|action|observation)\b(?:[ \t]+\d+)?(?:\*\*|__)?[ \t]*:(?:\*\*|__)?`)
	thinkPattern = regexp.MustCompile(`(?is)<think>.*?</think>`)
)

// Options configures a Parser.
type Options struct {
	// TerminationMarker is the literal that introduces a FinalAnswer. At the
	// start of a line matching is case-insensitive; mid-line it must match exactly.
	TerminationMarker string
	// KeepThinkBlocks disables stripping of <think>...</think> sections.
	KeepThinkBlocks bool
}

// Parser extracts Steps from model output. A Parser is immutable and safe for concurrent use.
type Parser struct {
	marker        string
	markerPattern *regexp.Regexp
	keepThink     bool
}

// New creates a Parser.
func New(optFns ...func(o *Options)) *Parser {
	opts := Options{TerminationMarker: DefaultTerminationMarker}

	for _, fn := range optFns {
		fn(&opts)
	}

	if strings.TrimSpace(opts.TerminationMarker) == "" {
		opts.TerminationMarker = DefaultTerminationMarker
	}

	return &Parser{
		marker:        opts.TerminationMarker,
		markerPattern: regexp.MustCompile(`(?i)(?:\*\*|__)?` + regexp.QuoteMeta(opts.TerminationMarker) + `(?:\*\*|__)?`),
		keepThink:     opts.KeepThinkBlocks,
	}
}

// TerminationMarker returns the configured marker.
func (p *Parser) TerminationMarker() string { return p.marker }

type hitKind int

const (
	hitPlan hitKind = iota
	hitThought
	hitAction
	hitObservation
	hitFinal
)

// hit is a label occurrence: text[start:end] is the label itself.
type hit struct {
	kind       hitKind
	start, end int
}

// Clean strips <think> sections and surrounding whitespace.
func (p *Parser) Clean(raw string) string {
	if !p.keepThink {
		raw = thinkPattern.ReplaceAllString(raw, "")
	}

	return strings.TrimSpace(raw)
}

// Next returns the first well-formed Step of raw together with the unconsumed
// remainder. An Action consumes exactly its JSON span; a FinalAnswer consumes
// the rest of the text. Empty Plan and Thought sections are skipped.
//
// A ParseError wrapping ErrNoLabel is returned when raw contains no further
// label; any other ParseError means an Action could not be decoded.
func (p *Parser) Next(raw string) (core.Step, string, error) {
	text := p.Clean(raw)
	hits := p.scan(text)

	for i := 0; i < len(hits); i++ {
		step, end, err := p.unit(text, hits, i)
		if err != nil {
			return nil, "", err
		}

		if step == nil {
			continue
		}

		return step, text[end:], nil
	}

	return nil, "", &core.ParseError{Reason: "no Plan, Thought, Action or termination marker found", Raw: raw, Err: ErrNoLabel}
}

// Terminal reports whether raw ends the run outright: the termination marker
// appears before any Action label. Reasoning that precedes the marker in the
// same response is superseded by the answer.
func (p *Parser) Terminal(raw string) (core.FinalAnswer, bool) {
	text := p.Clean(raw)

	for _, h := range p.scan(text) {
		switch h.kind {
		case hitAction:
			return core.FinalAnswer{}, false
		case hitFinal:
			return core.FinalAnswer{Text: trimSection(text[h.end:])}, true
		}
	}

	return core.FinalAnswer{}, false
}

// ParseAll extracts the complete ordered Step sequence of a single-response
// generation. Observations written by the model are discarded; the caller
// executes every Action and records the real Observation in its place.
// Parsing stops at the first FinalAnswer. ParseAll is a pure function of raw.
func (p *Parser) ParseAll(raw string) ([]core.Step, error) {
	text := p.Clean(raw)
	hits := p.scan(text)

	if len(hits) == 0 {
		return nil, &core.ParseError{Reason: "no Plan, Thought, Action or termination marker found", Raw: raw, Err: ErrNoLabel}
	}

	var (
		steps []core.Step
		pos   int
	)

	for i, h := range hits {
		if h.start < pos {
			// Label inside an Action span already consumed.
			continue
		}

		step, end, err := p.unit(text, hits, i)
		if err != nil {
			return nil, err
		}

		pos = end

		switch s := step.(type) {
		case nil, core.Observation:
			continue
		case core.FinalAnswer:
			return append(steps, s), nil
		default:
			steps = append(steps, s)
		}
	}

	if len(steps) == 0 {
		return nil, &core.ParseError{Reason: "only empty or observation sections found", Raw: raw, Err: ErrNoLabel}
	}

	return steps, nil
}

// scan returns all label and marker occurrences in text ordered by position.
// A marker counts at the start of a line or when written exactly as
// configured; label matches overlapping a marker are dropped. Action labels
// without a JSON object before the next label are prose when they sit
// mid-line or inside an Observation body.
func (p *Parser) scan(text string) []hit {
	var (
		hits    []hit
		markers [][]int
	)

	for _, m := range p.markerPattern.FindAllStringIndex(text, -1) {
		if !atLineStart(text, m[0]) && !strings.Contains(text[m[0]:m[1]], p.marker) {
			continue
		}

		markers = append(markers, m)
		hits = append(hits, hit{kind: hitFinal, start: m[0], end: m[1]})
	}

	for _, m := range labelPattern.FindAllStringSubmatchIndex(text, -1) {
		if overlaps(m[0], m[1], markers) {
			continue
		}

		// Mid-line labels must be capitalized so prose like "my next action:" is not a label.
		if !atLineStart(text, m[0]) && !isUpper(text[m[2]]) {
			continue
		}

		var kind hitKind

		switch strings.ToLower(text[m[2]:m[3]]) {
		case "plan":
			kind = hitPlan
		case "thought":
			kind = hitThought
		case "action":
			kind = hitAction
		default:
			kind = hitObservation
		}

		hits = append(hits, hit{kind: kind, start: m[0], end: m[1]})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	return dropProseActions(text, hits)
}

// dropProseActions removes Action hits that introduce no JSON object and are
// either mid-line or part of an Observation body.
func dropProseActions(text string, hits []hit) []hit {
	kept := hits[:0]

	for i, h := range hits {
		if h.kind == hitAction {
			limit := len(text)
			if i+1 < len(hits) {
				limit = hits[i+1].start
			}

			inObservation := len(kept) > 0 && kept[len(kept)-1].kind == hitObservation
			hasJSON := strings.IndexByte(text[h.end:limit], '{') >= 0

			if !hasJSON && (inObservation || !atLineStart(text, h.start)) {
				continue
			}
		}

		kept = append(kept, h)
	}

	return kept
}

// atLineStart reports whether only whitespace or list/emphasis markup precedes pos on its line.
func atLineStart(text string, pos int) bool {
	for i := pos - 1; i >= 0; i-- {
		switch text[i] {
		case '\n':
			return true
		case ' ', '\t', '*', '_', '-', '>', '#':
			continue
		default:
			return false
		}
	}

	return true
}

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }

func overlaps(start, end int, spans [][]int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}

	return false
}

// unit decodes hits[i]. It returns a nil step for empty Plan/Thought/Observation
// sections, and the offset in text where the unit ends.
func (p *Parser) unit(text string, hits []hit, i int) (core.Step, int, error) {
	h := hits[i]

	if h.kind == hitFinal {
		return core.FinalAnswer{Text: trimSection(text[h.end:])}, len(text), nil
	}

	limit := len(text)
	if i+1 < len(hits) {
		limit = hits[i+1].start
	}

	switch h.kind {
	case hitAction:
		action, end, err := decodeAction(text, h.end, limit)
		if err != nil {
			return nil, 0, err
		}

		return action, end, nil
	case hitPlan, hitThought, hitObservation:
		body := trimSection(text[h.end:limit])
		if body == "" {
			return nil, limit, nil
		}

		switch h.kind {
		case hitPlan:
			return core.Plan{Text: body}, limit, nil
		case hitThought:
			return core.Thought{Text: body}, limit, nil
		default:
			return core.Observation{Text: body}, limit, nil
		}
	default:
		return nil, 0, fmt.Errorf("unknown label kind %d", h.kind)
	}
}

// trimSection removes whitespace and dangling markdown emphasis around a section body.
func trimSection(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "**")
	s = strings.TrimSuffix(s, "**")

	return strings.TrimSpace(s)
}
