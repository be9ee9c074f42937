package stream

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pilosa/hdk"
	"github.com/pkg/errors"
)

// encoder renders record values as JSON. With spaced set, items are
// separated by ", " and keys by ": " as in {"a": 1, "b": [1, 2]};
// otherwise the output is compact. Non-ASCII text is written as UTF-8 and
// HTML characters are not escaped.
type encoder struct {
	spaced bool
}

var (
	spacedJSON  = encoder{spaced: true}
	compactJSON = encoder{}
)

func (e encoder) itemSep() string {
	if e.spaced {
		return ", "
	}
	return ","
}

func (e encoder) keySep() string {
	if e.spaced {
		return ": "
	}
	return ":"
}

func (e encoder) append(buf []byte, v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return append(buf, "null"...), nil
	case string:
		return appendString(buf, val), nil
	case bool:
		return strconv.AppendBool(buf, val), nil
	case int:
		return strconv.AppendInt(buf, int64(val), 10), nil
	case int32:
		return strconv.AppendInt(buf, int64(val), 10), nil
	case int64:
		return strconv.AppendInt(buf, val, 10), nil
	case uint64:
		return strconv.AppendUint(buf, val, 10), nil
	case float32:
		return append(buf, formatFloat(float64(val))...), nil
	case float64:
		return append(buf, formatFloat(val)...), nil
	case hdk.Record:
		if val == nil {
			return append(buf, "null"...), nil
		}
		buf = append(buf, '{')
		i := 0
		var err error
		for p := val.Oldest(); p != nil; p = p.Next() {
			if i > 0 {
				buf = append(buf, e.itemSep()...)
			}
			buf = appendString(buf, p.Key)
			buf = append(buf, e.keySep()...)
			if buf, err = e.append(buf, p.Value); err != nil {
				return nil, errors.Wrapf(err, "encoding %s", p.Key)
			}
			i++
		}
		return append(buf, '}'), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		var err error
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, e.itemSep()...)
			}
			buf = appendString(buf, k)
			buf = append(buf, e.keySep()...)
			if buf, err = e.append(buf, val[k]); err != nil {
				return nil, errors.Wrapf(err, "encoding %s", k)
			}
		}
		return append(buf, '}'), nil
	case []any:
		buf = append(buf, '[')
		var err error
		for i, item := range val {
			if i > 0 {
				buf = append(buf, e.itemSep()...)
			}
			if buf, err = e.append(buf, item); err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case []string:
		buf = append(buf, '[')
		for i, item := range val {
			if i > 0 {
				buf = append(buf, e.itemSep()...)
			}
			buf = appendString(buf, item)
		}
		return append(buf, ']'), nil
	case []hdk.Record:
		items := make([]any, len(val))
		for i, r := range val {
			items[i] = r
		}
		return e.append(buf, items)
	}
	return nil, errors.Errorf("unsupported value type %T", v)
}

const hex = "0123456789abcdef"

// appendString quotes s escaping only quotes, backslashes and control
// characters. Invalid UTF-8 is replaced with U+FFFD.
func appendString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch c {
			case '"', '\\':
				buf = append(buf, '\\', c)
			case '\n':
				buf = append(buf, '\\', 'n')
			case '\r':
				buf = append(buf, '\\', 'r')
			case '\t':
				buf = append(buf, '\\', 't')
			case '\b':
				buf = append(buf, '\\', 'b')
			case '\f':
				buf = append(buf, '\\', 'f')
			default:
				if c < 0x20 {
					buf = append(buf, '\\', 'u', '0', '0', hex[c>>4], hex[c&0xf])
				} else {
					buf = append(buf, c)
				}
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf = utf8.AppendRune(buf, utf8.RuneError)
		} else {
			buf = append(buf, s[i:i+size]...)
		}
		i += size
	}
	return append(buf, '"')
}

// formatFloat renders f with the shortest representation which round
// trips, always keeping a fractional part or exponent so that floats stay
// distinguishable from integers: 1.0, 0.25, 1e+16, 1.5e-05.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	if f == 0 {
		if math.Signbit(f) {
			return "-0.0"
		}
		return "0.0"
	}
	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.LastIndexByte(sci, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return sci
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if strings.IndexByte(s, '.') < 0 {
		s += ".0"
	}
	return s
}
