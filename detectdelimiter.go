package tissuedge

import (
	"bytes"
	"io"

	"github.com/csimplestring/go-csv/detector"
)

// DetermineDelimiter returns the single most likely rune that would delimit the
// values in the reader, assuming a CSV-like file. Expression tables default to
// tabs when nothing can be detected.
func DetermineDelimiter(r io.Reader) rune {
	d := detector.New()
	delimiters := d.DetectDelimiter(r, '"')

	if len(delimiters) > 0 {
		return rune(delimiters[0][0])
	}

	return '\t'
}

// DetermineDelimiterFromPrefix sniffs the delimiter from the first lines of a
// table that has already been read into memory. Only complete lines are
// examined so that a truncated final line does not skew the guess.
func DetermineDelimiterFromPrefix(prefix []byte) rune {
	if idx := bytes.LastIndexByte(prefix, '\n'); idx > 0 {
		prefix = prefix[:idx+1]
	}

	// A header line made of tab-separated fields is unambiguous, and the
	// detector does not always rank tabs first when commas appear in gene
	// annotations.
	if firstLine, _, _ := bytes.Cut(prefix, []byte{'\n'}); bytes.Count(firstLine, []byte{'\t'}) > 0 {
		return '\t'
	}

	return DetermineDelimiter(bytes.NewReader(prefix))
}
