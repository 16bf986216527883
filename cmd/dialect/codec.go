package dialect

import (
	"bytes"
	"fmt"
)

// MalformedRecordError reports a row whose cell count differs from the
// first record of the object. Row is the zero-based row number within
// the object, not the chunk.
type MalformedRecordError struct {
	Row  int64
	Got  int
	Want int
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record at row %d: got %d cells, want %d", e.Row, e.Got, e.Want)
}

// DecodeChunk parses a quote-safe chunk into rows of raw cells. The
// chunk must end on a record boundary except for the final chunk of an
// object, whose trailing unterminated record is still emitted.
//
// wantColumns pins the cell count every record must match; pass 0 to
// adopt the first record's count. rowOffset is the object-wide row
// number of the chunk's first record, used for error reporting. Returns
// the rows and the (possibly adopted) column count.
func DecodeChunk(body []byte, d Dialect, wantColumns int, rowOffset int64) ([][]string, int, error) {
	var (
		rows     [][]string
		row      []string
		cell     bytes.Buffer
		inQuotes bool
		sawCell  bool
	)

	endCell := func() {
		row = append(row, cell.String())
		cell.Reset()
		sawCell = false
	}
	endRow := func() error {
		endCell()
		if wantColumns == 0 {
			wantColumns = len(row)
		} else if len(row) != wantColumns {
			return &MalformedRecordError{
				Row:  rowOffset + int64(len(rows)),
				Got:  len(row),
				Want: wantColumns,
			}
		}
		rows = append(rows, row)
		row = nil
		return nil
	}

	for i := 0; i < len(body); {
		b := body[i]
		switch {
		case inQuotes:
			if b == d.Quote {
				if i+1 < len(body) && body[i+1] == d.Quote {
					cell.WriteByte(d.Quote)
					i += 2
					continue
				}
				inQuotes = false
				i++
				continue
			}
			cell.WriteByte(b)
			i++
		case b == d.Quote && !sawCell && cell.Len() == 0:
			inQuotes = true
			sawCell = true
			i++
		case b == d.Separator:
			endCell()
			i++
		case d.terminatorAt(body, i):
			if err := endRow(); err != nil {
				return nil, wantColumns, err
			}
			i += len(d.Terminator)
		default:
			cell.WriteByte(b)
			sawCell = true
			i++
		}
	}

	// final record without a terminator (end of object)
	if sawCell || cell.Len() > 0 || len(row) > 0 {
		if err := endRow(); err != nil {
			return nil, wantColumns, err
		}
	}
	return rows, wantColumns, nil
}

// EncodeRows renders rows under the dialect, the write-side inverse of
// DecodeChunk. Every record, the last included, ends with the
// terminator sequence. QuoteAll wraps every cell; QuoteMinimal quotes
// only cells containing a separator, quote, or terminator byte. Quote
// bytes inside quoted cells are escaped by doubling.
func EncodeRows(rows [][]string, d Dialect) []byte {
	var buf bytes.Buffer
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				buf.WriteByte(d.Separator)
			}
			encodeCell(&buf, cell, d)
		}
		buf.Write(d.Terminator)
	}
	return buf.Bytes()
}

func encodeCell(buf *bytes.Buffer, cell string, d Dialect) {
	quoted := d.Quoting == QuoteAll
	if !quoted {
		for i := 0; i < len(cell); i++ {
			if cell[i] == d.Separator || cell[i] == d.Quote || d.inTerminator(cell[i]) {
				quoted = true
				break
			}
		}
	}
	if !quoted {
		buf.WriteString(cell)
		return
	}
	buf.WriteByte(d.Quote)
	for i := 0; i < len(cell); i++ {
		if cell[i] == d.Quote {
			buf.WriteByte(d.Quote)
		}
		buf.WriteByte(cell[i])
	}
	buf.WriteByte(d.Quote)
}
