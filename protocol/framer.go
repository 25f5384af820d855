package protocol

import (
	"regexp"
)

// DefaultLineDelimiter matches `\n` with an optional leading `\r`.
var DefaultLineDelimiter = regexp.MustCompile(`\r?\n`)

// Framer turns a stream of byte chunks into lines.
//
// Bytes following the last delimiter are kept until a later chunk completes
// them. There is no limit on how large that partial line may grow, a peer
// that never sends a delimiter will grow it forever. We trust the transport
// here, the same as the server trusts us.
type Framer struct {
	delim  *regexp.Regexp
	buffer []byte
}

// NewFramer returns a Framer splitting on delim, or on DefaultLineDelimiter
// when delim is nil.
func NewFramer(delim *regexp.Regexp) *Framer {
	if delim == nil {
		delim = DefaultLineDelimiter
	}

	return &Framer{delim: delim}
}

// Push appends chunk to the buffered data and returns every line it
// completed, in order, without their delimiters.
func (f *Framer) Push(chunk []byte) []string {
	f.buffer = append(f.buffer, chunk...)

	parts := f.delim.Split(string(f.buffer), -1)

	// The last part is either empty or a partial line, keep it either way.
	last := parts[len(parts)-1]
	f.buffer = append(f.buffer[:0], last...)

	return parts[:len(parts)-1]
}

// Pending returns the bytes waiting for a delimiter.
func (f *Framer) Pending() []byte {
	return f.buffer
}

// Reset drops any buffered partial line.
func (f *Framer) Reset() {
	f.buffer = f.buffer[:0]
}
