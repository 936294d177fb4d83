package httpfetch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vertextoedge/chunkdl/internal/domain"
)

// ContentRange is a parsed Content-Range header
type ContentRange struct {
	Start int64
	End   int64 // inclusive
	Total int64 // domain.UnknownTotal for "*"
}

// Length returns the number of bytes covered by the range
func (c ContentRange) Length() int64 {
	return c.End - c.Start + 1
}

// ParseContentRange parses "bytes start-end/total", "bytes start-end/*"
// and the unsatisfied form "bytes */total" (Start and End are -1).
func ParseContentRange(header string) (ContentRange, error) {
	if !strings.HasPrefix(header, "bytes ") {
		return ContentRange{}, fmt.Errorf("malformed Content-Range: %q", header)
	}
	spec := strings.TrimPrefix(header, "bytes ")

	rangePart, totalPart, ok := strings.Cut(spec, "/")
	if !ok {
		return ContentRange{}, fmt.Errorf("malformed Content-Range: %q", header)
	}

	cr := ContentRange{Start: -1, End: -1, Total: domain.UnknownTotal}

	if totalPart != "*" {
		total, err := strconv.ParseInt(totalPart, 10, 64)
		if err != nil || total < 0 {
			return ContentRange{}, fmt.Errorf("malformed Content-Range total: %q", header)
		}
		cr.Total = total
	}

	if rangePart == "*" {
		if cr.Total < 0 {
			return ContentRange{}, fmt.Errorf("malformed Content-Range: %q", header)
		}
		return cr, nil
	}

	startStr, endStr, ok := strings.Cut(rangePart, "-")
	if !ok {
		return ContentRange{}, fmt.Errorf("malformed Content-Range: %q", header)
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return ContentRange{}, fmt.Errorf("invalid start byte in %q: %w", header, err)
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil {
		return ContentRange{}, fmt.Errorf("invalid end byte in %q: %w", header, err)
	}
	if start < 0 || end < start {
		return ContentRange{}, fmt.Errorf("malformed Content-Range bounds: %q", header)
	}

	cr.Start = start
	cr.End = end
	return cr, nil
}

// cleanETag removes quotes and the weak prefix from an ETag value.
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}
