package log

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
	"unicode/utf8"
)

// AppendBeginMarker opens a JSON object.
func AppendBeginMarker(buf *bytes.Buffer) {
	buf.WriteByte('{')
}

// AppendEndMarker closes a JSON object.
func AppendEndMarker(buf *bytes.Buffer) {
	buf.WriteByte('}')
}

func AppendLineBreak(buf *bytes.Buffer) {
	buf.WriteByte('\n')
}

func AppendNil(buf *bytes.Buffer) {
	buf.WriteString("null")
}

// AppendKey writes key and a colon, preceded by a comma unless key is the
// first member of the current object.
func AppendKey(buf *bytes.Buffer, key string) {
	if n := buf.Len(); n > 0 && buf.Bytes()[n-1] != '{' {
		buf.WriteByte(',')
	}
	AppendString(buf, key)
	buf.WriteByte(':')
}

func AppendBool(buf *bytes.Buffer, v bool) {
	var tmp [8]byte
	buf.Write(strconv.AppendBool(tmp[:0], v))
}

func AppendInt64(buf *bytes.Buffer, v int64) {
	var tmp [24]byte
	buf.Write(strconv.AppendInt(tmp[:0], v, 10))
}

func AppendUint64(buf *bytes.Buffer, v uint64) {
	var tmp [24]byte
	buf.Write(strconv.AppendUint(tmp[:0], v, 10))
}

// AppendFloat64 writes v as a JSON number. NaN and infinities are not valid
// JSON numbers and are written as strings.
func AppendFloat64(buf *bytes.Buffer, v float64) {
	switch {
	case math.IsNaN(v):
		buf.WriteString(`"NaN"`)
	case math.IsInf(v, 1):
		buf.WriteString(`"+Inf"`)
	case math.IsInf(v, -1):
		buf.WriteString(`"-Inf"`)
	default:
		var tmp [32]byte
		buf.Write(strconv.AppendFloat(tmp[:0], v, 'f', -1, 64))
	}
}

func AppendFloat64s(buf *bytes.Buffer, vals []float64) {
	buf.WriteByte('[')
	for i, v := range vals {
		if i > 0 {
			buf.WriteByte(',')
		}
		AppendFloat64(buf, v)
	}
	buf.WriteByte(']')
}

func AppendStrings(buf *bytes.Buffer, vals []string) {
	buf.WriteByte('[')
	for i, v := range vals {
		if i > 0 {
			buf.WriteByte(',')
		}
		AppendString(buf, v)
	}
	buf.WriteByte(']')
}

// AppendTime writes t as a quoted "2006-01-02 15:04:05.000".
func AppendTime(buf *bytes.Buffer, t time.Time) {
	var tmp [32]byte
	b := append(tmp[:0], '"')
	b = t.AppendFormat(b, "2006-01-02 15:04:05.000")
	b = append(b, '"')
	buf.Write(b)
}

// AppendInterface writes the JSON encoding of i, or a quoted error message
// when i cannot be encoded.
func AppendInterface(buf *bytes.Buffer, i any) {
	b, err := json.Marshal(i)
	if err != nil {
		AppendString(buf, "marshaling error: "+err.Error())
		return
	}
	buf.Write(b)
}

const _hex = "0123456789abcdef"

var _noEscapeTable = [256]bool{}

func init() {
	for i := 0; i <= 0x7e; i++ {
		_noEscapeTable[i] = i >= 0x20 && i != '\\' && i != '"'
	}
}

// AppendString writes s as a JSON string. Strings that need no escaping
// are copied as is.
func AppendString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if !_noEscapeTable[s[i]] {
			appendEscaped(buf, s)
			buf.WriteByte('"')
			return
		}
	}
	buf.WriteString(s)
	buf.WriteByte('"')
}

func appendEscaped(buf *bytes.Buffer, s string) {
	start := 0
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size == 1 {
				buf.WriteString(s[start:i])
				buf.WriteString(`\ufffd`)
				start = i + 1
				continue
			}
			i += size - 1
			continue
		}
		if _noEscapeTable[b] {
			continue
		}

		buf.WriteString(s[start:i])
		switch b {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteByte(b)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			buf.WriteString(`\u00`)
			buf.WriteByte(_hex[b>>4])
			buf.WriteByte(_hex[b&0xF])
		}
		start = i + 1
	}
	buf.WriteString(s[start:])
}
