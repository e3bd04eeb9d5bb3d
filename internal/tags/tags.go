// Package tags decodes the bracketed control tags the assistant appends to
// its visible answer, e.g.
//
//	Sure! [REFERENCES: [{"title":"Order Assist","type":"project","link":"https://..."}]]
//
// Tags are located by their "[NAME:" prefix and delimited by bracket
// balancing, so JSON payloads may contain nested brackets. Only complete tags
// are stripped; an unbalanced tag at the end of a streamed buffer is left for
// a later pass.
package tags

import (
	"encoding/json"
	"strings"
)

const (
	ContactAction   = "CONTACT_ACTION"
	References      = "REFERENCES"
	SkillMatch      = "SKILL_MATCH"
	Analytics       = "ANALYTICS"
	ScheduleMeeting = "SCHEDULE_MEETING"
)

// MaxReferences is the number of references kept after de-duplication.
const MaxReferences = 3

type Reference struct {
	Title string `json:"title"`
	Type  string `json:"type"`
	Link  string `json:"link"`
}

type SkillMatchResult struct {
	Score    float64  `json:"score"`
	Matched  []string `json:"matched"`
	Missing  []string `json:"missing"`
	Analysis string   `json:"analysis"`
}

type AnalyticsResult struct {
	Sentiment float64  `json:"sentiment"`
	Topics    []string `json:"topics"`
}

// Result is the decoded view of an assistant message.
type Result struct {
	Visible         string
	ContactAction   string
	References      []Reference
	SkillMatch      *SkillMatchResult
	Analytics       *AnalyticsResult
	ScheduleMeeting bool
}

type payloadKind int

const (
	payloadText payloadKind = iota
	payloadJSON
	payloadNone
)

var known = map[string]payloadKind{
	ContactAction:   payloadText,
	References:      payloadJSON,
	SkillMatch:      payloadJSON,
	Analytics:       payloadJSON,
	ScheduleMeeting: payloadNone,
}

// openers are the literal prefixes that start a tag.
var openers = func() []string {
	out := make([]string, 0, len(known))
	for name, kind := range known {
		if kind == payloadNone {
			out = append(out, "["+name+"]")
			continue
		}
		out = append(out, "["+name+":")
	}
	return out
}()

type match struct {
	start, end int
	name       string
	payload    string
}

// Parse strips every complete tag from text and returns the decoded payloads.
// Malformed payloads are dropped. Parse is idempotent on its own output.
func Parse(text string) Result {
	return parse(text, false)
}

func parse(text string, withholdPending bool) Result {
	var (
		res  Result
		refs []Reference
	)

	// Removing a tag can join two fragments into a new tag, so repeat until
	// a pass finds nothing.
	for {
		matches, pending := scan(text)
		if len(matches) == 0 {
			if withholdPending && pending >= 0 {
				text = text[:pending]
			}
			break
		}

		var b strings.Builder
		last := 0
		for _, m := range matches {
			b.WriteString(text[last:m.start])
			last = m.end
			apply(&res, &refs, m)
		}
		b.WriteString(text[last:])
		text = b.String()
	}

	res.Visible = strings.TrimSpace(text)
	res.References = dedupeReferences(refs)
	return res
}

func apply(res *Result, refs *[]Reference, m match) {
	switch m.name {
	case ContactAction:
		if res.ContactAction == "" {
			res.ContactAction = strings.TrimSpace(m.payload)
		}
	case ScheduleMeeting:
		res.ScheduleMeeting = true
	case References:
		var batch []Reference
		if err := json.Unmarshal([]byte(m.payload), &batch); err == nil {
			*refs = append(*refs, batch...)
		}
	case SkillMatch:
		if res.SkillMatch != nil {
			return
		}
		var sm SkillMatchResult
		if err := json.Unmarshal([]byte(m.payload), &sm); err == nil {
			sm.Score = clamp(sm.Score, 0, 100)
			res.SkillMatch = &sm
		}
	case Analytics:
		if res.Analytics != nil {
			return
		}
		var a AnalyticsResult
		if err := json.Unmarshal([]byte(m.payload), &a); err == nil {
			a.Sentiment = clamp(a.Sentiment, -1, 1)
			a.Topics = cleanTopics(a.Topics)
			res.Analytics = &a
		}
	}
}

// scan returns the complete tags in text in order, and the offset where a
// trailing incomplete tag (or a partial opener) begins, or -1.
func scan(text string) ([]match, int) {
	var matches []match
	pending := -1

	i := 0
	for i < len(text) {
		p := strings.IndexByte(text[i:], '[')
		if p < 0 {
			break
		}
		p += i
		rest := text[p:]

		name, ok := openerAt(rest)
		if !ok {
			if pending < 0 && isPartialOpener(rest) {
				pending = p
			}
			i = p + 1
			continue
		}

		kind := known[name]
		if kind == payloadNone {
			end := p + len(name) + 2
			matches = append(matches, match{start: p, end: end, name: name})
			i = end
			continue
		}

		bodyStart := p + len(name) + 2
		payload, end, complete := readPayload(text, bodyStart, kind)
		if !complete {
			next := nextOpener(text, bodyStart)
			if next < 0 {
				if pending < 0 {
					pending = p
				}
				break
			}
			// A later tag starts before this one closes: end the malformed tag
			// at its last ']' before that opener and drop its payload.
			end = next
			if j := strings.LastIndexByte(text[bodyStart:next], ']'); j >= 0 {
				end = bodyStart + j + 1
			}
			payload = ""
		}
		matches = append(matches, match{start: p, end: end, name: name, payload: payload})
		i = end
	}
	return matches, pending
}

func openerAt(s string) (string, bool) {
	for name, kind := range known {
		if kind == payloadNone {
			if strings.HasPrefix(s, "["+name+"]") {
				return name, true
			}
			continue
		}
		if strings.HasPrefix(s, "["+name+":") {
			return name, true
		}
	}
	return "", false
}

// nextOpener returns the offset of the first complete opener at or after
// from, or -1.
func nextOpener(text string, from int) int {
	for i := from; i < len(text); {
		p := strings.IndexByte(text[i:], '[')
		if p < 0 {
			return -1
		}
		p += i
		if _, ok := openerAt(text[p:]); ok {
			return p
		}
		i = p + 1
	}
	return -1
}

// isPartialOpener reports whether s is cut short in the middle of an opener,
// which only happens at the end of a streamed buffer.
func isPartialOpener(s string) bool {
	for _, o := range openers {
		if len(s) < len(o) && strings.HasPrefix(o, s) {
			return true
		}
	}
	return false
}

// readPayload reads from the character after "NAME:" up to and including the
// tag's closing bracket.
func readPayload(text string, from int, kind payloadKind) (payload string, end int, complete bool) {
	start := skipSpace(text, from)
	if start >= len(text) {
		return "", 0, false
	}

	if kind == payloadText {
		depth := 1
		for j := start; j < len(text); j++ {
			switch text[j] {
			case '[':
				depth++
			case ']':
				depth--
				if depth == 0 {
					return text[start:j], j + 1, true
				}
			}
		}
		return "", 0, false
	}

	if c := text[start]; c != '[' && c != '{' {
		return closeAtNextBracket(text, start)
	}

	valueEnd, ok := balanceJSON(text, start)
	if !ok {
		return "", 0, false
	}
	after := skipSpace(text, valueEnd)
	if after >= len(text) {
		return "", 0, false
	}
	if text[after] == ']' {
		return text[start:valueEnd], after + 1, true
	}
	return closeAtNextBracket(text, valueEnd)
}

// closeAtNextBracket ends a malformed tag at the next ']' and drops its payload.
func closeAtNextBracket(text string, from int) (string, int, bool) {
	j := strings.IndexByte(text[from:], ']')
	if j < 0 {
		return "", 0, false
	}
	return "", from + j + 1, true
}

// balanceJSON returns the offset just past the JSON array or object starting
// at start. Brackets inside string literals are ignored.
func balanceJSON(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for j := start; j < len(text); j++ {
		c := text[j]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return j + 1, true
			}
		}
	}
	return 0, false
}

func skipSpace(text string, i int) int {
	for i < len(text) && (text[i] == ' ' || text[i] == '\t' || text[i] == '\n' || text[i] == '\r') {
		i++
	}
	return i
}

func dedupeReferences(refs []Reference) []Reference {
	if len(refs) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(refs))
	out := make([]Reference, 0, MaxReferences)
	for _, r := range refs {
		if seen[r.Link] {
			continue
		}
		seen[r.Link] = true
		out = append(out, r)
		if len(out) == MaxReferences {
			break
		}
	}
	return out
}

func cleanTopics(topics []string) []string {
	out := topics[:0]
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Format renders a tag. A nil payload produces a bare tag, a string is
// written verbatim and anything else is JSON encoded.
func Format(name string, payload any) (string, error) {
	switch p := payload.(type) {
	case nil:
		return "[" + name + "]", nil
	case string:
		return "[" + name + ": " + p + "]", nil
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return "", err
		}
		return "[" + name + ": " + string(b) + "]", nil
	}
}
