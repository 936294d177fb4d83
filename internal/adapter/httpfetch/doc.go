// Package httpfetch implements port.ChunkFetcher with HTTP range requests.
//
// Each Fetch issues a single GET with a Range header and validates the
// response:
//
//   - 206 (or 200 carrying Content-Range): body length must match both
//     Content-Length and the Content-Range span
//   - 200 without Content-Range: *domain.RangeUnsupportedError
//   - 416 past offset 0: end of resource
//   - 408, 429, 5xx and connection failures: transient *domain.TransportError
//   - other statuses: permanent *domain.TransportError
//
// No retries happen here; the session owns the retry policy.
package httpfetch
