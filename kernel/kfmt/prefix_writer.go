package kfmt

import "io"

// PrefixWriter is an io.Writer that forwards writes to Sink, emitting Prefix
// at the start of every line. Subsystems wrap the output sink with a
// PrefixWriter to tag their log lines (e.g. "[pmap] ").
type PrefixWriter struct {
	// Sink receives the prefixed output.
	Sink io.Writer

	// Prefix is emitted at the beginning of each line.
	Prefix []byte

	// midLine is true when the last byte written was not a line feed.
	midLine bool
}

// Write writes p to the sink and returns the number of bytes of p that were
// written; injected prefixes are not counted.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written int

	for len(p) > 0 {
		if !w.midLine {
			if _, err := w.Sink.Write(w.Prefix); err != nil {
				return written, err
			}
			w.midLine = true
		}

		lineLen := len(p)
		for i, ch := range p {
			if ch == '\n' {
				lineLen = i + 1
				w.midLine = false
				break
			}
		}

		n, err := w.Sink.Write(p[:lineLen])
		written += n
		if err != nil {
			return written, err
		}
		p = p[lineLen:]
	}

	return written, nil
}
