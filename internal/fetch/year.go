package fetch

import (
	"regexp"
	"strconv"
)

// yearScanLimit bounds how much extracted text is searched for a year.
const yearScanLimit = 4000

// noYear is reported when nothing year-like is found, so undated documents
// fall below any configured minimum.
const noYear = 1900

var yearPattern = regexp.MustCompile(`(19|20)\d{2}`)

// Year returns the first year found in parts, searched in order. Only the
// first yearScanLimit bytes of each part are examined.
func Year(parts ...string) int {
	for _, p := range parts {
		if len(p) > yearScanLimit {
			p = p[:yearScanLimit]
		}
		if m := yearPattern.FindString(p); m != "" {
			y, _ := strconv.Atoi(m)
			return y
		}
	}
	return noYear
}
