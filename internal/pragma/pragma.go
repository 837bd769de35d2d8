// Package pragma implements the mini-language lexer/parser of §4.C: it
// tokenizes the free-form pragma attribute text attached to a declaration
// into an ordered list of (key, value) pairs, normalizing the handful of
// synonyms the grammar recognizes (I/O direction, update/archive specs).
//
// The chain-composition and merge semantics that turn these ordered pairs
// into a single concrete per-record configuration live one layer up, in
// internal/mergeconfig; this package only concerns itself with a single
// pragma's text.
package pragma

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Pair is one (key, value) entry from a pragma's text, in source order.
type Pair struct {
	Key   string
	Value string
}

// Pragma is the ordered sequence of pairs parsed from one declaration's
// pragma attribute.
type Pragma struct {
	Pairs []Pair
}

// Empty reports whether the pragma carried no recognized content. Per the
// Chain invariant (spec.md §3), an item with an empty pragma never
// contributes to a chain.
func (p Pragma) Empty() bool {
	return len(p.Pairs) == 0
}

var framingRE = regexp.MustCompile(`(?s)^\s*\{attribute\s+'([^']*)'\s*:=\s*'(.*)'\s*\}\s*$`)

// MalformedPragmaError reports unbalanced attribute framing.
type MalformedPragmaError struct {
	Text   string
	Reason string
}

func (e *MalformedPragmaError) Error() string {
	return fmt.Sprintf("pragma: malformed pragma %q: %s", e.Text, e.Reason)
}

// Parse tokenizes raw pragma attribute text into an ordered Pragma.
//
// If the text is wrapped in the TwinCAT attribute framing
// ({attribute 'pytmc' := '...'}), the framing is stripped first; an
// unbalanced brace/quote in that framing is the only condition under which
// Parse returns a *MalformedPragmaError. A missing or empty pragma (after
// stripping) is not an error: it yields a Pragma with no pairs, and callers
// at the chain-walking layer treat that as "no chain through this item".
func Parse(raw string) (Pragma, error) {
	text := raw
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		m := framingRE.FindStringSubmatch(trimmed)
		if m == nil {
			return Pragma{}, &MalformedPragmaError{Text: raw, Reason: "unbalanced attribute framing"}
		}
		text = m[2]
	}

	lines := splitLines(text)

	var pairs []Pair
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			// Not a recognized "key: value" line; ignored non-fatally per §7
			// (unknown/malformed lines inside a well-framed pragma don't
			// abort the whole pragma, only contribute nothing).
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimLeft(line[idx+1:], " \t")
		value = strings.TrimRight(value, " \t")
		pairs = append(pairs, Pair{Key: key, Value: value})
	}

	return Pragma{Pairs: pairs}, nil
}

// splitLines breaks pragma text on newlines and semicolons, which §4.C
// treats equivalently as line delimiters.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, ";", "\n")
	return strings.Split(text, "\n")
}

// Serialize renders a Pragma back to its ordered "key: value" line
// representation, establishing the round-trip law of §8 (parse ∘ serialize
// = identity on the ordered-pair representation). It does not restore the
// {attribute ...} framing, since that framing is a TwinCAT-source-level
// detail that does not survive into the ordered-pair model.
func Serialize(p Pragma) string {
	var b strings.Builder
	for i, pair := range p.Pairs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(pair.Key)
		b.WriteString(": ")
		b.WriteString(pair.Value)
	}
	return b.String()
}

// Direction is the normalized I/O direction of a configuration.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

var (
	inputSynonyms  = map[string]bool{"i": true, "input": true, "ro": true}
	outputSynonyms = map[string]bool{"o": true, "output": true, "rw": true, "io": true}
)

// NormalizeIO maps an io: pragma value's synonym set to a canonical
// Direction, per the §3 pragma table.
func NormalizeIO(raw string) (Direction, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if inputSynonyms[v] {
		return DirectionInput, nil
	}
	if outputSynonyms[v] {
		return DirectionOutput, nil
	}
	return "", fmt.Errorf("pragma: invalid io specifier %q", raw)
}

// UpdateMethod distinguishes polling from change-notification update specs.
type UpdateMethod string

const (
	UpdatePoll   UpdateMethod = "poll"
	UpdateNotify UpdateMethod = "notify"
)

// Update is a normalized update: rate specifier.
type Update struct {
	PeriodSeconds float64
	Method        UpdateMethod
}

var rateRE = regexp.MustCompile(`(?i)^(\d*\.\d+|\d+)\s*(hz|s)(\s+(\w+))?$`)

// ParseUpdate parses an update: pragma value ("<rate>{s|Hz} [poll|notify]")
// per §3/§4.C. An empty value yields the 1-second poll default.
func ParseUpdate(raw string) (Update, error) {
	u, err := parseRate(raw, UpdatePoll, map[string]UpdateMethod{
		"poll":   UpdatePoll,
		"notify": UpdateNotify,
	})
	if err != nil {
		return Update{}, err
	}
	return Update{PeriodSeconds: u.PeriodSeconds, Method: u.Method}, nil
}

// ArchiveMethod distinguishes periodic-scan from monitor-based archiving.
type ArchiveMethod string

const (
	ArchiveScan    ArchiveMethod = "scan"
	ArchiveMonitor ArchiveMethod = "monitor"
)

// Archive is a normalized archive: pragma value.
type Archive struct {
	PeriodSeconds float64
	Method        ArchiveMethod
}

// ParseArchive parses an archive: pragma value ("<rate>{s|Hz} [scan|monitor]").
func ParseArchive(raw string) (Archive, error) {
	u, err := parseRate(raw, "scan", map[string]string{
		"scan":    "scan",
		"monitor": "monitor",
	})
	if err != nil {
		return Archive{}, err
	}
	return Archive{PeriodSeconds: u.PeriodSeconds, Method: ArchiveMethod(u.Method)}, nil
}

// parseRate is the shared "<rate>{s|Hz} [method]" grammar used by both
// update: and archive:, genericized over the method token->value map so the
// two pragmas can share one regex and one rounding rule while keeping
// distinct method vocabularies.
func parseRate[M ~string](raw string, def M, methods map[string]M) (genericUpdate[M], error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return genericUpdate[M]{PeriodSeconds: 1, Method: def}, nil
	}

	m := rateRE.FindStringSubmatch(v)
	if m == nil {
		return genericUpdate[M]{}, fmt.Errorf("pragma: invalid rate specifier %q", raw)
	}

	rate, err := strconv.ParseFloat(m[1], 64)
	if err != nil || rate <= 0 {
		return genericUpdate[M]{}, fmt.Errorf("pragma: invalid rate value %q", m[1])
	}

	var period float64
	switch m[2] {
	case "hz":
		period = 1.0 / rate
	case "s":
		period = rate
	}

	method := def
	if raw4 := m[4]; raw4 != "" {
		mv, ok := methods[raw4]
		if !ok {
			return genericUpdate[M]{}, fmt.Errorf("pragma: invalid method %q", raw4)
		}
		method = mv
	}

	return genericUpdate[M]{PeriodSeconds: period, Method: method}, nil
}

type genericUpdate[M ~string] struct {
	PeriodSeconds float64
	Method        M
}

// ArraySelector is a normalized "array:" pragma value: an ordered list of
// inclusive index ranges selected out of the leaf array's bounds.
type ArraySelector struct {
	Ranges []IndexRange
}

// IndexRange is one comma-separated element of an array: selector: a single
// index (Lo==Hi), an open-ended range ("N.."/"..M"), or a closed range.
type IndexRange struct {
	Lo, Hi   int
	HasLo    bool
	HasHi    bool
}

// ParseArraySelector parses the comma list of "N", "N..M", "N..", "..M"
// tokens from an array: pragma value.
func ParseArraySelector(raw string) (ArraySelector, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ArraySelector{}, nil
	}
	var sel ArraySelector
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		r, err := parseIndexRange(tok)
		if err != nil {
			return ArraySelector{}, err
		}
		sel.Ranges = append(sel.Ranges, r)
	}
	return sel, nil
}

func parseIndexRange(tok string) (IndexRange, error) {
	if !strings.Contains(tok, "..") {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return IndexRange{}, fmt.Errorf("pragma: invalid array index %q", tok)
		}
		return IndexRange{Lo: n, Hi: n, HasLo: true, HasHi: true}, nil
	}
	parts := strings.SplitN(tok, "..", 2)
	lo, hi := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	r := IndexRange{}
	if lo != "" {
		n, err := strconv.Atoi(lo)
		if err != nil {
			return IndexRange{}, fmt.Errorf("pragma: invalid array range lower bound %q", tok)
		}
		r.Lo, r.HasLo = n, true
	}
	if hi != "" {
		n, err := strconv.Atoi(hi)
		if err != nil {
			return IndexRange{}, fmt.Errorf("pragma: invalid array range upper bound %q", tok)
		}
		r.Hi, r.HasHi = n, true
	}
	return r, nil
}

// Resolve expands the selector against the leaf array's [lower, upper]
// bounds, filling open ends from those bounds.
func (s ArraySelector) Resolve(lower, upper int) []int {
	if len(s.Ranges) == 0 {
		indices := make([]int, 0, upper-lower+1)
		for i := lower; i <= upper; i++ {
			indices = append(indices, i)
		}
		return indices
	}
	var indices []int
	for _, r := range s.Ranges {
		lo, hi := lower, upper
		if r.HasLo {
			lo = r.Lo
		}
		if r.HasHi {
			hi = r.Hi
		}
		for i := lo; i <= hi; i++ {
			indices = append(indices, i)
		}
	}
	return indices
}

// DefaultExpand is the ":%.2d" suffix format. The chain walker does not use
// it directly: absent an expand: pragma it calls AutoExpandFormat, which
// yields this same format for arrays whose indices fit in two digits.
const DefaultExpand = ":%.2d"

// AutoExpandFormat returns the "%.Nd" suffix format whose width N is the
// smallest that fits the largest index in [lower, upper], but never less
// than 2, per boundary
// scenario 4/5 (six elements => width 2, three-digit selection over a
// hundred-element array => width 3).
func AutoExpandFormat(lower, upper int) string {
	width := 1
	for n := upper; n >= 10; n /= 10 {
		width++
	}
	if lower < 0 {
		width++ // room for a leading '-'
	}
	if width < 2 {
		width = 2
	}
	return fmt.Sprintf(":%%.%dd", width)
}

// SplitField splits a field: pragma value at the first run of
// whitespace, per §3 ("first whitespace splits name from value").
func SplitField(raw string) (name, value string) {
	raw = strings.TrimSpace(raw)
	idx := strings.IndexFunc(raw, func(r rune) bool { return r == ' ' || r == '\t' })
	if idx < 0 {
		return raw, ""
	}
	return raw[:idx], strings.TrimSpace(raw[idx+1:])
}

// SplitWords splits a space-delimited field list (archive_fields:,
// autosave_pass{0,1}:, etc.) into its tokens.
func SplitWords(raw string) []string {
	return strings.Fields(raw)
}
