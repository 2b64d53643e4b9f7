package hbk

import (
	"archive/zip"
	"bytes"
	"encoding/binary"

	helperrors "github.com/onec-help/onechelp/internal/errors"
)

// ZIP signatures inside the .hbk container. The vendor header precedes
// the ZIP payload and an optional trailer follows it.
var (
	zipSignature  = []byte("PK")
	eocdSignature = []byte("PK\x05\x06")
)

// eocdMinSize is the size of an End of Central Directory record
// without its comment.
const eocdMinSize = 22

// maxEOCDComment bounds the backwards EOCD scan; a ZIP comment is at
// most 65535 bytes.
const maxEOCDComment = 65535

// openContainer locates the ZIP payload inside raw .hbk bytes and
// opens it. Failure to find or open a ZIP is fatal for the whole pass.
func openContainer(data []byte) (*zip.Reader, error) {
	start := bytes.Index(data, zipSignature)
	if start < 0 {
		return nil, helperrors.UnsupportedFormatError("no ZIP signature in archive", nil)
	}

	// First attempt: slice up to the end of the last EOCD record.
	if end := findZipEnd(data, start); end > start {
		if r, err := zipReaderAt(data[start:end]); err == nil {
			return r, nil
		}
	}

	// Second attempt: the whole tail from the ZIP start.
	if r, err := zipReaderAt(data[start:]); err == nil {
		return r, nil
	}

	// Last resort: try every EOCD candidate in order.
	for _, pos := range findAllEOCD(data, start) {
		end := eocdEnd(data, pos)
		if end <= start {
			continue
		}
		if r, err := zipReaderAt(data[start:end]); err == nil {
			return r, nil
		}
	}

	return nil, helperrors.UnsupportedFormatError("archive payload is not a readable ZIP", nil)
}

func zipReaderAt(data []byte) (*zip.Reader, error) {
	return zip.NewReader(bytes.NewReader(data), int64(len(data)))
}

// findZipEnd computes the end of the ZIP payload from the last EOCD
// record. Containers may carry trailer bytes after the ZIP; without an
// EOCD the whole remaining data is used.
func findZipEnd(data []byte, zipStart int) int {
	searchFrom := len(data) - eocdMinSize - maxEOCDComment
	if searchFrom < zipStart {
		searchFrom = zipStart
	}

	pos := bytes.LastIndex(data[searchFrom:], eocdSignature)
	if pos < 0 {
		return len(data)
	}
	return eocdEnd(data, searchFrom+pos)
}

// eocdEnd returns the byte position just past the EOCD record at pos,
// including its comment. The comment length lives at offset 20,
// little-endian uint16.
func eocdEnd(data []byte, pos int) int {
	commentLenPos := pos + 20
	if commentLenPos+2 > len(data) {
		return pos + eocdMinSize
	}
	commentLen := int(binary.LittleEndian.Uint16(data[commentLenPos : commentLenPos+2]))
	end := pos + eocdMinSize + commentLen
	if end > len(data) {
		end = len(data)
	}
	return end
}

// findAllEOCD returns every EOCD signature position at or after start.
func findAllEOCD(data []byte, start int) []int {
	var positions []int
	for pos := start; ; {
		i := bytes.Index(data[pos:], eocdSignature)
		if i < 0 {
			break
		}
		positions = append(positions, pos+i)
		pos += i + 1
	}
	return positions
}
