// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

// DefaultMaxLineBytes caps one device line.
const DefaultMaxLineBytes = 64 * 1024

// ErrLineTooLong reports one discarded line. The reader stays usable.
var ErrLineTooLong = errors.New("ingest: line too long")

// LineReader yields trimmed, non-empty lines from a device stream. It
// blocks in the underlying Read and cannot be restarted once it has
// returned a stream error.
type LineReader struct {
	br  *bufio.Reader
	max int
	err error // sticky stream error, io.EOF included
}

// NewLineReader wraps r. maxLineBytes <= 0 selects DefaultMaxLineBytes.
func NewLineReader(r io.Reader, maxLineBytes int) *LineReader {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &LineReader{
		br:  bufio.NewReaderSize(r, min(4096, maxLineBytes)),
		max: maxLineBytes,
	}
}

// Next returns the next non-empty line. It returns io.EOF when the stream
// ends cleanly and the read error otherwise. A line longer than the cap is
// skipped up to its newline and reported as ErrLineTooLong; the following
// call carries on with the next line.
func (lr *LineReader) Next() (string, error) {
	for lr.err == nil {
		raw, dropped, err := lr.readLine()
		lr.err = err
		if dropped > 0 {
			return "", fmt.Errorf("%w: discarded %d bytes", ErrLineTooLong, dropped)
		}
		if line := strings.TrimSpace(string(raw)); line != "" {
			return line, nil
		}
	}
	return "", lr.err
}

// readLine reads up to and including the next '\n'. Once the line passes
// the cap its bytes are counted in dropped instead of kept.
func (lr *LineReader) readLine() (line []byte, dropped int, err error) {
	for {
		chunk, err := lr.br.ReadSlice('\n')
		if dropped > 0 {
			dropped += len(chunk)
		} else {
			line = append(line, chunk...)
			if len(bytes.TrimRight(line, "\r\n")) > lr.max {
				dropped = len(line)
				line = nil
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, dropped, err
	}
}

// Lines adapts Next to a range-over-func sequence. A clean EOF ends the
// sequence silently. ErrLineTooLong is yielded and the sequence goes on;
// any other error is yielded once, then it ends.
func (lr *LineReader) Lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			line, err := lr.Next()
			if errors.Is(err, ErrLineTooLong) {
				if !yield("", err) {
					return
				}
				continue
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield("", err)
				}
				return
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}
