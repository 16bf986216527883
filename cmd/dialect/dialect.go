package dialect

import (
	"bytes"
	"errors"
	"fmt"
)

// Static errors for dialect validation
var (
	ErrSeparatorRequired  = errors.New("separator byte is required")
	ErrQuoteRequired      = errors.New("quote byte is required")
	ErrTerminatorRequired = errors.New("terminator sequence is required")
	ErrDialectOverlap     = errors.New("separator, quote, and terminator must not overlap")
	ErrQuotingInvalid     = errors.New("quoting must be one of: minimal, all")
)

// Quoting selects how fields are quoted on encode and which boundary
// resolution strategy applies on read.
type Quoting int

const (
	// QuoteMinimal quotes a field only when it contains a separator,
	// quote, or terminator byte.
	QuoteMinimal Quoting = iota

	// QuoteAll wraps every field in quotes.
	QuoteAll
)

func (q Quoting) String() string {
	switch q {
	case QuoteAll:
		return "all"
	default:
		return "minimal"
	}
}

// ParseQuoting converts a config string into a Quoting value.
func ParseQuoting(s string) (Quoting, error) {
	switch s {
	case "minimal", "":
		return QuoteMinimal, nil
	case "all":
		return QuoteAll, nil
	default:
		return QuoteMinimal, fmt.Errorf("%w: got '%s'", ErrQuotingInvalid, s)
	}
}

// Dialect describes the byte-level framing of a delimited text object.
// Separator and Quote are single bytes; Terminator may be a multi-byte
// sequence such as \r\n.
type Dialect struct {
	Separator  byte
	Quote      byte
	Terminator []byte
	Quoting    Quoting
}

// Default returns the common comma/double-quote/newline dialect.
func Default() Dialect {
	return Dialect{
		Separator:  ',',
		Quote:      '"',
		Terminator: []byte{'\n'},
		Quoting:    QuoteMinimal,
	}
}

// Validate checks that the dialect is internally consistent. The three
// syntactic roles must use disjoint bytes or boundary resolution is
// ambiguous.
func (d Dialect) Validate() error {
	if d.Separator == 0 {
		return ErrSeparatorRequired
	}
	if d.Quote == 0 {
		return ErrQuoteRequired
	}
	if len(d.Terminator) == 0 {
		return ErrTerminatorRequired
	}
	if d.Separator == d.Quote {
		return fmt.Errorf("%w: separator and quote are both %q", ErrDialectOverlap, d.Separator)
	}
	if bytes.IndexByte(d.Terminator, d.Separator) >= 0 {
		return fmt.Errorf("%w: terminator contains separator %q", ErrDialectOverlap, d.Separator)
	}
	if bytes.IndexByte(d.Terminator, d.Quote) >= 0 {
		return fmt.Errorf("%w: terminator contains quote %q", ErrDialectOverlap, d.Quote)
	}
	return nil
}

// inTerminator reports whether b occurs anywhere in the terminator
// sequence. Used to skip stray terminator member bytes (the \n of a
// \r\n dialect) during backward scans.
func (d Dialect) inTerminator(b byte) bool {
	return bytes.IndexByte(d.Terminator, b) >= 0
}

// terminatorAt reports whether the full terminator sequence starts at
// index i of body.
func (d Dialect) terminatorAt(body []byte, i int) bool {
	if i < 0 || i+len(d.Terminator) > len(body) {
		return false
	}
	return bytes.Equal(body[i:i+len(d.Terminator)], d.Terminator)
}

// UnescapeTerminator interprets the usual backslash escapes so config
// values like "\r\n" work from the command line.
func UnescapeTerminator(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				out = append(out, '\n')
				i++
				continue
			case 'r':
				out = append(out, '\r')
				i++
				continue
			case 't':
				out = append(out, '\t')
				i++
				continue
			case '\\':
				out = append(out, '\\')
				i++
				continue
			}
		}
		out = append(out, s[i])
	}
	return out
}
