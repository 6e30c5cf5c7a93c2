package crypto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Canonicalize renders arbitrary JSON input in the RFC 8785 JSON
// Canonicalization Scheme (JCS): object members sorted by UTF-16 code
// unit, no insignificant whitespace, numbers in their shortest
// round-tripping form. Every structured object signed or hashed by this
// module passes through here first, so two semantically identical
// documents always hash and sign identically regardless of field order.
func Canonicalize(v interface{}) (string, error) {
	var decoded interface{}

	switch data := v.(type) {
	case []byte:
		if err := unmarshalNumberSafe(data, &decoded); err != nil {
			return "", fmt.Errorf("failed to decode JSON: %w", err)
		}
	case string:
		if err := unmarshalNumberSafe([]byte(data), &decoded); err != nil {
			return "", fmt.Errorf("failed to decode JSON: %w", err)
		}
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal value: %w", err)
		}
		if err := unmarshalNumberSafe(raw, &decoded); err != nil {
			return "", fmt.Errorf("failed to decode JSON: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, decoded); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func unmarshalNumberSafe(data []byte, out *interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		return writeCanonicalNumber(buf, val)
	case string:
		writeCanonicalString(buf, val)
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			return less16(keys[i], keys[j])
		})
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonicalize: unsupported type %T", v)
	}
	return nil
}

// less16 orders strings by UTF-16 code unit sequence, as RFC 8785 requires.
func less16(a, b string) bool {
	ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}

func writeCanonicalString(buf *bytes.Buffer, s string) {
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
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// writeCanonicalNumber renders a json.Number in ECMAScript-style shortest
// form: integral values with no fractional part or exponent, everything
// else via the shortest round-tripping decimal representation.
func writeCanonicalNumber(buf *bytes.Buffer, n json.Number) error {
	if i, err := n.Int64(); err == nil {
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}

	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", n, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("number %q is not representable in JSON", n)
	}

	if f == 0 {
		buf.WriteString("0")
		return nil
	}
	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		buf.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	// Outside that range ECMAScript uses exponent form with no leading
	// zeros in the exponent ("1e-7", "1e+21").
	mant, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	buf.WriteString(mant + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0"))
	return nil
}
