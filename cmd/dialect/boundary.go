package dialect

import "errors"

// ErrTerminatorNotFound means no safe record boundary exists in the
// scanned window. Callers recover by widening the window; nothing else
// repairs it.
var ErrTerminatorNotFound = errors.New("terminator not found in window")

// TerminatorProfile is the result of one backward scan over a window.
// LastTerminatorSuspectIndex is -1 when the scan saw no terminator at
// all. FirstNonSpecialByteIndex is 0 when the scan ran out of bytes
// before hitting a plain one.
type TerminatorProfile struct {
	LastTerminatorSuspectIndex int
	FirstNonSpecialByteIndex   int
	SepCounter                 int
	QuoteCounter               int
}

// ExtractTerminatorProfile scans body backward from lastIndex
// (exclusive; pass a negative value or anything past the end to start
// from the end) and classifies bytes relative to the most recent full
// terminator match. Until the first match, every byte is skipped. After
// it, separator and quote bytes are counted, stray terminator member
// bytes are skipped, and the first plain byte stops the scan. Each new
// full terminator match moves the suspect and resets both counters.
func ExtractTerminatorProfile(body []byte, d Dialect, lastIndex int) TerminatorProfile {
	if lastIndex < 0 || lastIndex > len(body) {
		lastIndex = len(body)
	}

	p := TerminatorProfile{LastTerminatorSuspectIndex: -1}
	for i := lastIndex - 1; i >= 0; i-- {
		if d.terminatorAt(body, i) {
			p.LastTerminatorSuspectIndex = i
			p.SepCounter = 0
			p.QuoteCounter = 0
			continue
		}
		if p.LastTerminatorSuspectIndex < 0 {
			continue
		}
		switch {
		case body[i] == d.Quote:
			p.QuoteCounter++
		case body[i] == d.Separator:
			p.SepCounter++
		case d.inTerminator(body[i]):
			// partial terminator sequence, not a boundary
		default:
			p.FirstNonSpecialByteIndex = i
			return p
		}
	}
	return p
}

// FindTerminator returns the largest index i such that
// body[:i+len(terminator)] is a whole number of complete records under
// the dialect's quoting discipline. The caller keeps body[:i+len(term)]
// and carries the rest into the next window.
//
// Under QuoteMinimal a terminator is real when an even number of quote
// bytes follows it: any record tail after the boundary has either no
// open quote or a balanced pair. Under QuoteAll every field is quoted,
// so a real record boundary is a terminator immediately preceded by a
// closing quote; the profile's odd quote count distinguishes a close
// from the doubled quotes of an escape.
func FindTerminator(body []byte, d Dialect) (int, error) {
	if d.Quoting == QuoteAll {
		return findTerminatorQuoteAll(body, d)
	}
	return findTerminatorQuoteMinimal(body, d)
}

func findTerminatorQuoteMinimal(body []byte, d Dialect) (int, error) {
	quotes := 0
	for i := len(body) - 1; i >= 0; i-- {
		if d.terminatorAt(body, i) && quotes%2 == 0 {
			return i, nil
		}
		if body[i] == d.Quote {
			quotes++
		}
	}
	return -1, ErrTerminatorNotFound
}

func findTerminatorQuoteAll(body []byte, d Dialect) (int, error) {
	anchor := len(body)
	for {
		p := ExtractTerminatorProfile(body, d, anchor)
		if p.LastTerminatorSuspectIndex < 0 {
			return -1, ErrTerminatorNotFound
		}
		if p.QuoteCounter%2 == 1 {
			return p.LastTerminatorSuspectIndex, nil
		}
		anchor = p.LastTerminatorSuspectIndex
	}
}
