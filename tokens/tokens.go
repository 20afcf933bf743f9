// Package tokens splits MICAPS style text products into whitespace
// separated tokens and walks them with a Cursor.
//
// Products written by Chinese forecasting systems are frequently GB18030
// or GBK encoded; Decode tries UTF-8 first and falls back to those.
package tokens

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nmcdev/metio/field"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Decode converts raw product bytes to text, trying UTF-8, GB18030 and
// GBK in that order.
func Decode(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, bom)
	if utf8.Valid(data) {
		return string(data), nil
	}
	var lastErr error
	for _, c := range []struct {
		name string
		enc  encoding.Encoding
	}{{"GB18030", simplifiedchinese.GB18030}, {"GBK", simplifiedchinese.GBK}} {
		out, err := c.enc.NewDecoder().Bytes(data)
		if err == nil {
			logrus.Tracef("decoded %d bytes as %s", len(data), c.name)
			return string(out), nil
		}
		lastErr = err
	}
	return "", lastErr
}

// Cursor is a position over a token sequence. Commas are stripped before
// splitting, so "1,234" reads as 1234.
type Cursor struct {
	format string
	toks   []string
	pos    int
}

// Tokenize decodes data and splits it into a Cursor. format names the
// product in errors.
func Tokenize(format string, data []byte) (*Cursor, error) {
	text, err := Decode(data)
	if err != nil {
		return nil, &field.FormatError{Format: format, Reason: "undecodable text", Err: err}
	}
	return New(format, strings.Fields(strings.ReplaceAll(text, ",", ""))), nil
}

// New wraps an existing token slice.
func New(format string, toks []string) *Cursor {
	return &Cursor{format: format, toks: toks}
}

// Len is the total token count.
func (c *Cursor) Len() int { return len(c.toks) }

// Pos is the index of the next token.
func (c *Cursor) Pos() int { return c.pos }

// Remaining is the number of unread tokens.
func (c *Cursor) Remaining() int { return len(c.toks) - c.pos }

// Token returns token i without moving the cursor.
func (c *Cursor) Token(i int) string { return c.toks[i] }

func (c *Cursor) errorf(at int, reason string, args ...interface{}) error {
	return field.Errorf(c.format, at, reason, args...)
}

// Seek moves to absolute index i. Seeking to Len() is allowed.
func (c *Cursor) Seek(i int) error {
	if i < 0 || i > len(c.toks) {
		return c.errorf(i, "seek outside %d tokens", len(c.toks))
	}
	c.pos = i
	return nil
}

// Skip advances n tokens.
func (c *Cursor) Skip(n int) error { return c.Seek(c.pos + n) }

// Peek returns the next token without consuming it.
func (c *Cursor) Peek() (string, bool) {
	if c.pos >= len(c.toks) {
		return "", false
	}
	return c.toks[c.pos], true
}

// Next consumes one token.
func (c *Cursor) Next() (string, error) {
	if c.pos >= len(c.toks) {
		return "", c.errorf(c.pos, "unexpected end of tokens")
	}
	t := c.toks[c.pos]
	c.pos++
	return t, nil
}

// Int consumes one integer token.
func (c *Cursor) Int() (int, error) {
	t, err := c.Next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimPrefix(t, "+"))
	if err != nil {
		return 0, c.errorf(c.pos-1, "want integer, got %q", t)
	}
	return v, nil
}

// Float consumes one numeric token.
func (c *Cursor) Float() (float64, error) {
	t, err := c.Next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, c.errorf(c.pos-1, "want number, got %q", t)
	}
	return v, nil
}

// Take consumes n tokens.
func (c *Cursor) Take(n int) ([]string, error) {
	if n < 0 || c.pos+n > len(c.toks) {
		return nil, c.errorf(c.pos, "want %d tokens, %d left", n, c.Remaining())
	}
	t := c.toks[c.pos : c.pos+n]
	c.pos += n
	return t, nil
}

// Floats consumes n numeric tokens.
func (c *Cursor) Floats(n int) ([]float64, error) {
	start := c.pos
	toks, err := c.Take(n)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i, t := range toks {
		v, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, c.errorf(start+i, "want number, got %q", t)
		}
		out[i] = v
	}
	return out, nil
}

// Find returns the index of the first token equal to tok, or -1.
func (c *Cursor) Find(tok string) int {
	for i, t := range c.toks {
		if t == tok {
			return i
		}
	}
	return -1
}
