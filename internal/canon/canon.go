// Package canon implements the canonical JSON serialization every hash and
// signature in the substrate is computed over: object keys sorted by Unicode
// code point, no insignificant whitespace, minimal number formatting, and
// uniform escaping so two producers never disagree on the byte form of the
// same logical value.
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"unicode/utf8"
)

var hashFieldPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Normalize decodes v (a struct, map, or already-decoded interface{} tree)
// into a canonical-ready interface{} tree: maps, []interface{}, string,
// json.Number, bool, nil. It rejects NaN/Inf, unsupported types, and
// enforces the "Hash"-suffixed field convention: any field whose JSON name
// ends in "Hash" must be empty or 64 lowercase hex characters.
func Normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal for normalization: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("canon: decode for normalization: %w", err)
	}
	if err := validateHashFields(out); err != nil {
		return nil, err
	}
	return out, nil
}

// validateHashFields walks the tree looking for object keys ending in "Hash"
// and checks their string values against the 64-char lowercase hex rule.
func validateHashFields(v any) error {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if len(k) > 4 && k[len(k)-4:] == "Hash" {
				if s, ok := val.(string); ok && s != "" {
					if !hashFieldPattern.MatchString(s) {
						return fmt.Errorf("canon: field %q must be 64 lowercase hex characters, got %q", k, s)
					}
				}
			}
			if err := validateHashFields(val); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range t {
			if err := validateHashFields(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// Marshal produces the canonical byte form of v. It normalizes first, then
// serializes deterministically.
func Marshal(v any) ([]byte, error) {
	normalized, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encode(&buf, normalized); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		return encodeNumber(buf, t)
	case string:
		encodeString(buf, t)
		return nil
	case map[string]any:
		return encodeObject(buf, t)
	case []any:
		return encodeArray(buf, t)
	default:
		return fmt.Errorf("canon: unsupported type %T", v)
	}
}

func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	if i, err := n.Int64(); err == nil {
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("canon: invalid number %q: %w", n.String(), err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canon: NaN/Inf not representable in canonical JSON")
	}
	buf.Write(strconv.AppendFloat(nil, f, 'g', -1, 64))
	return nil
}

func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else if r < utf8.RuneSelf {
				buf.WriteRune(r)
			} else {
				writeUnicodeEscape(buf, r)
			}
		}
	}
	buf.WriteByte('"')
}

func writeUnicodeEscape(buf *bytes.Buffer, r rune) {
	if r > 0xFFFF {
		r1, r2 := utf16Surrogates(r)
		fmt.Fprintf(buf, `\u%04x\u%04x`, r1, r2)
		return
	}
	fmt.Fprintf(buf, `\u%04x`, r)
}

func utf16Surrogates(r rune) (rune, rune) {
	r -= 0x10000
	hi := 0xD800 + (r >> 10)
	lo := 0xDC00 + (r & 0x3FF)
	return hi, lo
}

func encodeObject(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return lessByCodepoint(keys[i], keys[j])
	})
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')
		if err := encode(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeArray(buf *bytes.Buffer, a []any) error {
	buf.WriteByte('[')
	for i, e := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encode(buf, e); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func lessByCodepoint(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	for i := 0; i < len(ra) && i < len(rb); i++ {
		if ra[i] != rb[i] {
			return ra[i] < rb[i]
		}
	}
	return len(ra) < len(rb)
}
