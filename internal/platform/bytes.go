package platform

import "github.com/dustin/go-humanize"

// Bytes renders a byte count for diagnostics, e.g. "52 MB".
func Bytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}
