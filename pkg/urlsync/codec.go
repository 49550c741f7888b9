package urlsync

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/vango-dev/statekit/internal/errors"
	"github.com/vango-dev/statekit/pkg/eventmap"
)

const (
	// DefaultBase is the marker that starts the encoded state in a URL.
	DefaultBase = "#"

	// DefaultDelimiter joins sequence values.
	DefaultDelimiter = "|"
)

// Codec converts between flat key/value state and URL fragments.
type Codec struct {
	Base      string
	Delimiter string
}

// NewCodec returns a Codec with the default base and delimiter.
func NewCodec() Codec {
	return Codec{Base: DefaultBase, Delimiter: DefaultDelimiter}
}

func (c Codec) normalized() Codec {
	if c.Base == "" {
		c.Base = DefaultBase
	}
	if c.Delimiter == "" {
		c.Delimiter = DefaultDelimiter
	}
	return c
}

// Encode returns the fragment for values: the base marker followed by
// key=value pairs in key order. Keys with an empty value are left out.
func (c Codec) Encode(values map[string]any) string {
	c = c.normalized()

	var b strings.Builder
	b.WriteString(c.Base)
	first := true
	for _, key := range eventmap.Snapshot(values).Keys() {
		val := c.format(values[key])
		if val == "" {
			continue
		}
		if !first {
			b.WriteByte('&')
		}
		first = false
		b.WriteString(url.QueryEscape(key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(val))
	}
	return b.String()
}

// Fragment returns the part of rawURL that starts at the base marker, or ""
// if the marker is absent.
func (c Codec) Fragment(rawURL string) string {
	c = c.normalized()
	if i := strings.Index(rawURL, c.Base); i >= 0 {
		return rawURL[i:]
	}
	return ""
}

// Decode parses the state encoded in rawURL. A URL without the base marker
// decodes to an empty map. Values containing the delimiter become []string,
// with one trailing delimiter dropped first; the spellings "undefined" and
// "null" become "".
func (c Codec) Decode(rawURL string) (map[string]any, error) {
	c = c.normalized()

	out := make(map[string]any)
	frag := strings.TrimPrefix(c.Fragment(rawURL), c.Base)
	frag = strings.TrimPrefix(frag, "?")
	if frag == "" {
		return out, nil
	}

	for _, pair := range strings.Split(frag, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawVal, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, malformed(rawURL, err)
		}
		val, err := url.QueryUnescape(rawVal)
		if err != nil {
			return nil, malformed(rawURL, err)
		}
		if key == "" {
			continue
		}
		out[key] = c.parse(val)
	}
	return out, nil
}

func (c Codec) parse(val string) any {
	if val == "undefined" || val == "null" {
		return ""
	}
	if strings.Contains(val, c.Delimiter) {
		return strings.Split(strings.TrimSuffix(val, c.Delimiter), c.Delimiter)
	}
	return val
}

func (c Codec) format(v any) string {
	if v == nil {
		return ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = formatValue(rv.Index(i))
		}
		if len(parts) == 0 {
			return ""
		}
		joined := strings.Join(parts, c.Delimiter)
		// A trailing delimiter marks a sequence that would otherwise read
		// back as a scalar or lose its last empty element.
		if len(parts) == 1 || parts[len(parts)-1] == "" {
			joined += c.Delimiter
		}
		return joined
	}
	return formatValue(rv)
}

func formatValue(v reflect.Value) string {
	if v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Invalid:
		return ""
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

func malformed(rawURL string, err error) error {
	return errors.New(errors.CodeMalformedFragment).
		WithDetail(fmt.Sprintf("cannot decode %q", rawURL)).
		Wrap(err)
}
