package dialect

import (
	"errors"
	"testing"
)

func testDialect(q Quoting) Dialect {
	d := Default()
	d.Quoting = q
	return d
}

func TestExtractTerminatorProfile(t *testing.T) {
	bang := Dialect{Separator: ';', Quote: '!', Terminator: []byte{'@'}, Quoting: QuoteAll}

	tests := []struct {
		name      string
		body      string
		d         Dialect
		lastIndex int
		want      TerminatorProfile
	}{
		{
			name:      "terminated row",
			body:      "\"foo\",\"boo\"\n",
			d:         testDialect(QuoteAll),
			lastIndex: -1,
			want:      TerminatorProfile{LastTerminatorSuspectIndex: 11, FirstNonSpecialByteIndex: 9, SepCounter: 0, QuoteCounter: 1},
		},
		{
			name:      "terminated row with open tail",
			body:      "\"foo\",\"boo\"\n\"bar",
			d:         testDialect(QuoteAll),
			lastIndex: -1,
			want:      TerminatorProfile{LastTerminatorSuspectIndex: 11, FirstNonSpecialByteIndex: 9, SepCounter: 0, QuoteCounter: 1},
		},
		{
			name:      "alternate byte assignments",
			body:      "!foo!;!boo!@",
			d:         bang,
			lastIndex: -1,
			want:      TerminatorProfile{LastTerminatorSuspectIndex: 11, FirstNonSpecialByteIndex: 9, SepCounter: 0, QuoteCounter: 1},
		},
		{
			name:      "explicit anchor before trailing terminator",
			body:      "\"foo\",\"boo\"\n\"bar\n",
			d:         testDialect(QuoteAll),
			lastIndex: 16,
			want:      TerminatorProfile{LastTerminatorSuspectIndex: 11, FirstNonSpecialByteIndex: 9, SepCounter: 0, QuoteCounter: 1},
		},
		{
			name:      "no terminator at all",
			body:      "jawdnkjawnd",
			d:         testDialect(QuoteAll),
			lastIndex: -1,
			want:      TerminatorProfile{LastTerminatorSuspectIndex: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractTerminatorProfile([]byte(tt.body), tt.d, tt.lastIndex)
			if got != tt.want {
				t.Errorf("profile = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFindTerminator(t *testing.T) {
	tests := []struct {
		name string
		body string
		q    Quoting
		want int
	}{
		{"minimal single boundary", "012\njawdnkjawnd", QuoteMinimal, 3},
		{"minimal picks rightmost", "012\n456\njawdnkjawnd", QuoteMinimal, 7},
		{"all basic", "012\",\n\"foo", QuoteAll, 5},
		{"all boundary at end", "012\",\n", QuoteAll, 5},
		{"all open tail with terminator byte", "012\",\n\"012,\n", QuoteAll, 5},
		{"all separator noise in tail", "012\",\n,,,,,,,,\"012,\n", QuoteAll, 5},
		{"all separators before boundary", "012\",,,,\n\"012,\n", QuoteAll, 8},
		{"all doubled quote in tail", "012\",,,,\n,,,,,,\"\"012,\n", QuoteAll, 8},
		{"all closed tail row", "012\",,,,\n,,,,,,\"\"012\"\n,", QuoteAll, 21},
		{"all escape noise rejects later suspect", "012\",,,,\n,,,,,,\"\"01\"2\"\"\n,\"a", QuoteAll, 8},
		{"all quoted terminator inside field", "\"foo\",\"boo\"\n\"\n\",\"bar\"", QuoteAll, 11},
		{"all embedded terminators in quoted cell", "012\",\n\"foo\",\"\n\n\n\n\",\"\n", QuoteAll, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindTerminator([]byte(tt.body), testDialect(tt.q))
			if err != nil {
				t.Fatalf("FindTerminator() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("FindTerminator() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFindTerminatorNotFound(t *testing.T) {
	tests := []struct {
		name string
		body string
		q    Quoting
	}{
		{"minimal no terminator", "jawdnkjawnd", QuoteMinimal},
		{"all no terminator", "jawdnkjawnd", QuoteAll},
		{"all bare terminator without quotes", "jawdnkj\nawnd", QuoteAll},
		{"all balanced quotes around terminators", "jawdnkj\"x\n\n\"awnd", QuoteAll},
		{"all doubled quote before boundary", "jawdnkj\"\"\n,,,,,,,,,,awnd", QuoteAll},
		{"all escape run before boundary", "jawdnkj,\"\"\"\"\"\"\nawnd", QuoteAll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindTerminator([]byte(tt.body), testDialect(tt.q))
			if !errors.Is(err, ErrTerminatorNotFound) {
				t.Fatalf("FindTerminator() = (%d, %v), want ErrTerminatorNotFound", got, err)
			}
		})
	}
}

func TestFindTerminatorMultiByte(t *testing.T) {
	d := Default()
	d.Terminator = []byte("\r\n")

	idx, err := FindTerminator([]byte("a,b\r\nc,d\r\npartial"), d)
	if err != nil {
		t.Fatalf("FindTerminator() error = %v", err)
	}
	if idx != 8 {
		t.Errorf("FindTerminator() = %d, want 8", idx)
	}

	d.Quoting = QuoteAll
	idx, err = FindTerminator([]byte("\"a\",\"b\"\r\n\"c"), d)
	if err != nil {
		t.Fatalf("FindTerminator() quote-all error = %v", err)
	}
	if idx != 7 {
		t.Errorf("FindTerminator() quote-all = %d, want 7", idx)
	}
}
