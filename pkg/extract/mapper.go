package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ksmeta/pkg/models"
	"ksmeta/pkg/utils"
)

// photoIDKey is the field name carrying the identifier throughout the
// embedded state, in the matched subtree and in sibling structures alike.
const photoIDKey = "photoId"

// Mapper converts the matched photo/counts subtree into a typed
// MetadataRecord, recovering the canonical numeric identifier from anywhere
// in the document when the subtree only carries the slug form.
type Mapper struct {
	minNumericIDLen int
	log             *logrus.Entry
}

// NewMapper creates a new Mapper instance
func NewMapper(minNumericIDLen int, log *logrus.Entry) *Mapper {
	return &Mapper{
		minNumericIDLen: minNumericIDLen,
		log:             log,
	}
}

// Map builds a MetadataRecord from the state's detail node. Missing fields
// default to zero/empty; only a missing detail node fails the record.
func (m *Mapper) Map(state *State) (*models.MetadataRecord, error) {
	detail := state.DetailNode()
	if detail == nil {
		return nil, utils.ErrNoDetailNode
	}

	photo := asMap(detail["photo"])
	counts := asMap(detail["counts"])

	rec := &models.MetadataRecord{
		AuthorID:   asString(photo["userId"]),
		AuthorName: asString(photo["userName"]),
		Caption:    asString(photo["caption"]),

		FanCount:        asInt64(counts["fanCount"]),
		CollectionCount: asInt64(counts["collectionCount"]),
		WorkCount:       asInt64(counts["photoCount"]),

		LikeCount:    asInt64(photo["likeCount"]),
		CommentCount: asInt64(photo["commentCount"]),
		ViewCount:    asInt64(photo["viewCount"]),
		ShareCount:   asInt64(photo["shareCount"]),

		Duration: asInt64(photo["duration"]),
		Width:    asInt64(photo["width"]),
		Height:   asInt64(photo["height"]),
	}

	rec.TimestampMS, rec.PublishTime = publishTime(photo["timestamp"])
	rec.PhotoID, rec.IDNonNumeric = m.canonicalID(state, photo)

	return rec, nil
}

// canonicalID prefers the first sufficiently long all-digit photoId value
// anywhere in the document, in document order; the authoritative numeric
// identifier sometimes appears only in a sibling structure. Falls back to the
// subtree's own value, flagging non-numeric results for auditing.
func (m *Mapper) canonicalID(state *State, photo map[string]interface{}) (id string, nonNumeric bool) {
	if numeric := firstNumericValue(state.Raw, photoIDKey, m.minNumericIDLen); numeric != "" {
		return numeric, false
	}

	own := asString(photo[photoIDKey])
	if own == "" {
		m.log.Debug("Detail node carries no identifier at all")
		return "", true
	}
	if digitsOnly(own) {
		return own, false
	}
	m.log.WithField("photo_id", own).Debug("Keeping non-numeric identifier, no numeric candidate in document")
	return own, true
}

// firstNumericValue streams the raw JSON and returns the first value, in
// document order, whose key matches and whose value is all digits of at least
// minLen. A token walk is used because parsed Go maps lose key order.
func firstNumericValue(raw []byte, key string, minLen int) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	type frame struct {
		isObject  bool
		expectKey bool
	}
	var stack []frame
	pendingKey := ""

	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{':
				stack = append(stack, frame{isObject: true, expectKey: true})
			case '[':
				stack = append(stack, frame{})
			case '}', ']':
				if len(stack) > 0 {
					stack = stack[:len(stack)-1]
				}
				if len(stack) > 0 && stack[len(stack)-1].isObject {
					stack[len(stack)-1].expectKey = true
				}
			}
			pendingKey = ""
		default:
			if len(stack) == 0 {
				return ""
			}
			top := &stack[len(stack)-1]
			if top.isObject && top.expectKey {
				pendingKey, _ = t.(string)
				top.expectKey = false
				continue
			}

			// Scalar in value position
			if pendingKey == key {
				var s string
				switch v := t.(type) {
				case string:
					s = v
				case json.Number:
					s = v.String()
				}
				if len(s) >= minLen && digitsOnly(s) {
					return s
				}
			}
			if top.isObject {
				top.expectKey = true
			}
			pendingKey = ""
		}
	}
}

// publishTime converts the millisecond publish timestamp into calendar form.
// A value that is not interpretable as milliseconds degrades to its raw
// string rendering rather than failing the record.
func publishTime(v interface{}) (ms int64, formatted string) {
	if v == nil {
		return 0, ""
	}
	ms = asInt64(v)
	if ms <= 0 {
		return 0, asString(v)
	}
	return ms, time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

// --- loose-typed accessors over the parsed JSON ---

func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func asString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return fmt.Sprintf("%.0f", s)
	case json.Number:
		return s.String()
	case bool:
		return fmt.Sprintf("%t", s)
	default:
		return ""
	}
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return i
	case string:
		var i int64
		if _, err := fmt.Sscanf(n, "%d", &i); err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}

// digitsOnly reports whether s is non-empty and all ASCII digits
func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
