package spreadsheet

// sanitize.go cleans CSV bytes on the fly before they reach encoding/csv.
//
// Point-of-sale exports opened and re-saved on Windows often start with a
// UTF-8 BOM (0xEF 0xBB 0xBF), which would otherwise end up glued to the first
// cell. Exports from older tills also carry Latin-1 bytes that are not valid
// UTF-8. The reader drops the BOM and replaces each invalid byte with '?'
// (one byte, so the data never grows).

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

const sanitizeChunk = 4096

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SanitizingReader strips a leading BOM and replaces invalid UTF-8.
type SanitizingReader struct {
	r          *bufio.Reader
	bomChecked bool

	buf []byte // pending bytes of an incomplete rune, then the next chunk
	out []byte // sanitized bytes not yet returned
	err error  // deferred error from the underlying reader
}

// NewSanitizingReader wraps r.
func NewSanitizingReader(r io.Reader) *SanitizingReader {
	return &SanitizingReader{
		r:   bufio.NewReader(r),
		buf: make([]byte, 0, sanitizeChunk+utf8.UTFMax),
	}
}

// Read implements io.Reader.
func (s *SanitizingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if !s.bomChecked {
		s.bomChecked = true
		if head, err := s.r.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			s.r.Discard(len(utf8BOM))
		}
	}

	for len(s.out) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		s.fill()
	}

	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// fill reads one chunk and sanitizes it into out.
func (s *SanitizingReader) fill() {
	pending := len(s.buf)
	n, err := s.r.Read(s.buf[pending : pending+sanitizeChunk])
	s.buf = s.buf[:pending+n]
	if err != nil {
		s.err = err
	}

	data := s.buf
	keep := 0
	if s.err == nil {
		keep = incompleteTail(data)
	}
	s.out = sanitize(data[:len(data)-keep])

	s.buf = s.buf[:copy(s.buf, data[len(data)-keep:])]
}

// incompleteTail returns how many trailing bytes could begin a rune that
// continues in the next chunk.
func incompleteTail(data []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(data); i++ {
		b := data[len(data)-i]
		if utf8.RuneStart(b) {
			if b >= utf8.RuneSelf && !utf8.FullRune(data[len(data)-i:]) {
				return i
			}
			return 0
		}
	}
	return 0
}

// sanitize returns data with each invalid byte replaced by '?'.
func sanitize(data []byte) []byte {
	if utf8.Valid(data) {
		return bytes.Clone(data)
	}

	out := make([]byte, 0, len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			out = append(out, '?')
		} else {
			out = append(out, data[:size]...)
		}
		data = data[size:]
	}
	return out
}
