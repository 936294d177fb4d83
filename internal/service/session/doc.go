// Package session implements a single chunked download.
//
// A Session owns one url and walks it from Pending through InProgress to
// exactly one of Completed, Failed or Cancelled. It fetches one chunk at a
// time, emits one progress payload per delivered chunk and retries
// transient failures with exponential backoff. Subscribers are dropped when
// the session becomes terminal.
package session
