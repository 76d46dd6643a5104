package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ksmeta/pkg/utils"
)

// StateMarker introduces the embedded bootstrap assignment inside the
// server-rendered HTML. The object literal that follows it is the only JSON
// surface the endpoint exposes.
const StateMarker = "window.INIT_STATE"

// State is the embedded JSON document harvested from one HTML response.
// Raw keeps the original bytes so document-order scans stay deterministic;
// Doc is the parsed form used for structural matching.
type State struct {
	Raw []byte
	Doc map[string]interface{}
}

// Extract locates and parses the embedded state in an HTML body. A missing
// marker or unparsable payload is a normal outcome for deleted or blocked
// content and is reported through ErrStateAbsent / ErrStateMalformed so the
// caller can log the cause while treating both the same externally.
func Extract(body string) (*State, error) {
	script, found := findStateScript(body)
	if !found {
		return nil, utils.ErrStateAbsent
	}

	raw, ok := sliceObjectLiteral(script)
	if !ok {
		return nil, fmt.Errorf("%w: no balanced object literal after marker", utils.ErrStateMalformed)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrStateMalformed, err)
	}

	return &State{Raw: raw, Doc: doc}, nil
}

// findStateScript returns the text of the script element carrying the state
// assignment. Falls back to a plain substring search when the document is too
// mangled for the HTML parser to locate a script node.
func findStateScript(body string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err == nil {
		var script string
		doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := s.Text()
			if strings.Contains(text, StateMarker) {
				script = text
				return false
			}
			return true
		})
		if script != "" {
			return script, true
		}
	}

	idx := strings.Index(body, StateMarker)
	if idx < 0 {
		return "", false
	}
	rest := body[idx:]
	if end := strings.Index(rest, "</script>"); end >= 0 {
		rest = rest[:end]
	}
	return rest, true
}

// sliceObjectLiteral cuts the balanced {...} following the marker's '='
// out of the script text, honoring JSON string and escape rules.
func sliceObjectLiteral(script string) ([]byte, bool) {
	idx := strings.Index(script, StateMarker)
	if idx < 0 {
		return nil, false
	}
	rest := script[idx+len(StateMarker):]

	eq := strings.Index(rest, "=")
	if eq < 0 {
		return nil, false
	}
	rest = rest[eq+1:]

	start := strings.Index(rest, "{")
	if start < 0 {
		return nil, false
	}
	rest = rest[start:]

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(rest); i++ {
		c := rest[i]
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return []byte(rest[:i+1]), true
			}
		}
	}
	return nil, false // truncated document
}

// DetailNode scans the state's top-level key/value pairs for the first
// mapping that holds both a photo and a counts member. The endpoint nests the
// payload under a non-deterministic top-level key, so the match is
// structural, never by key name. Keys are visited in document order (Go map
// iteration would not be deterministic).
func (s *State) DetailNode() map[string]interface{} {
	for _, key := range topLevelKeys(s.Raw) {
		node, ok := s.Doc[key].(map[string]interface{})
		if !ok {
			continue
		}
		_, hasPhoto := node["photo"]
		_, hasCounts := node["counts"]
		if hasPhoto && hasCounts {
			return node
		}
	}
	return nil
}

// topLevelKeys lists the object's depth-1 keys in document order
func topLevelKeys(raw []byte) []string {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	var keys []string
	depth := 0
	expectKey := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}
		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
			expectKey = depth == 1
		default:
			if depth == 1 && expectKey {
				if k, ok := t.(string); ok {
					keys = append(keys, k)
				}
				expectKey = false
			} else if depth == 1 {
				expectKey = true
			}
		}
	}
}
