package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/javigz/bdnsync-go/internal/registry"
)

// payloadKind tags the wire shape of a legacy classification payload. The
// shape is classified once at this boundary; business logic downstream never
// branches on JSON types.
type payloadKind int

const (
	payloadEmpty payloadKind = iota
	payloadList
	payloadObject
	payloadString
)

// Candidate is one (code, name) classification pair extracted from a legacy
// payload.
type Candidate struct {
	Code string
	Name string
}

// classifyPayload determines the payload shape from its first JSON token.
func classifyPayload(raw json.RawMessage) payloadKind {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return payloadEmpty
	}
	switch trimmed[0] {
	case '[':
		return payloadList
	case '{':
		return payloadObject
	case '"':
		return payloadString
	default:
		return payloadEmpty
	}
}

// ExtractCandidates flattens a legacy classification payload into candidate
// pairs. The three accepted shapes:
//
//   - array of {code, description} objects: used directly
//   - plain object: each key is a name with empty code
//   - bare string: the whole string is one name
//
// Any other shape is a malformed payload and returns an error; callers
// isolate the failure to the record being processed.
func ExtractCandidates(raw json.RawMessage) ([]Candidate, error) {
	switch classifyPayload(raw) {
	case payloadEmpty:
		return nil, nil
	case payloadList:
		return extractFromList(raw)
	case payloadObject:
		return extractFromObject(raw)
	case payloadString:
		return extractFromString(raw)
	default:
		return nil, fmt.Errorf("unrecognized classification payload shape")
	}
}

type listItem struct {
	Code        registry.FlexString `json:"code"`
	Description string              `json:"description"`
}

func extractFromList(raw json.RawMessage) ([]Candidate, error) {
	var items []listItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding classification list: %w", err)
	}
	candidates := make([]Candidate, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.Description)
		if name == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			Code: strings.TrimSpace(string(item.Code)),
			Name: name,
		})
	}
	return candidates, nil
}

func extractFromObject(raw json.RawMessage) ([]Candidate, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decoding classification object: %w", err)
	}
	names := make([]string, 0, len(obj))
	for key := range obj {
		if name := strings.TrimSpace(key); name != "" {
			names = append(names, name)
		}
	}
	// Object keys carry no order; sort for deterministic processing
	sort.Strings(names)
	candidates := make([]Candidate, 0, len(names))
	for _, name := range names {
		candidates = append(candidates, Candidate{Name: name})
	}
	return candidates, nil
}

func extractFromString(raw json.RawMessage) ([]Candidate, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decoding classification string: %w", err)
	}
	name := strings.TrimSpace(s)
	if name == "" {
		return nil, nil
	}
	return []Candidate{{Name: name}}, nil
}

// maxCodeLength bounds generated classification codes.
const maxCodeLength = 64

// SplitRegionName splits a region name of the form "ES511 - Barcelona" into
// code "ES511" and name "Barcelona". Names without the two-letter-plus-digits
// prefix keep the full string as name and get a generated code.
func SplitRegionName(name string) Candidate {
	name = strings.TrimSpace(name)
	if code, rest, ok := splitRegionPrefix(name); ok {
		return Candidate{Code: code, Name: rest}
	}
	return Candidate{Code: GenerateCode(name), Name: name}
}

// splitRegionPrefix matches the NUTS-style prefix: two uppercase letters
// followed by digits, a dash separator, then the remainder.
func splitRegionPrefix(name string) (code, rest string, ok bool) {
	dash := strings.Index(name, "-")
	if dash <= 0 {
		return "", "", false
	}
	prefix := strings.TrimSpace(name[:dash])
	remainder := strings.TrimSpace(name[dash+1:])
	if remainder == "" || len(prefix) < 3 {
		return "", "", false
	}
	for i, r := range prefix {
		switch {
		case i < 2:
			if r < 'A' || r > 'Z' {
				return "", "", false
			}
		default:
			if r < '0' || r > '9' {
				return "", "", false
			}
		}
	}
	return prefix, remainder, true
}

// GenerateCode derives a stable code from a classification name: lowercased,
// with non-alphanumeric runs collapsed to underscores, truncated to a bounded
// length.
func GenerateCode(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	code := strings.Trim(b.String(), "_")
	if len(code) > maxCodeLength {
		cut := maxCodeLength
		for cut > 0 && !utf8.RuneStart(code[cut]) {
			cut--
		}
		code = code[:cut]
	}
	return code
}
