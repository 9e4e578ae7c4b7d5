// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ingest

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func TestLineReaderSkipsBlankAndTrims(t *testing.T) {
	lr := NewLineReader(strings.NewReader("  first \r\n\n   \n\tsecond\nthird"), 0)

	var got []string
	for {
		line, err := lr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		got = append(got, line)
	}

	want := []string{"first", "second", "third"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", got, want)
	}

	// Not restartable.
	if _, err := lr.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after EOF = %v, want io.EOF", err)
	}
}

func TestLineReaderReportsStreamFault(t *testing.T) {
	fault := errors.New("device disconnected")
	r := io.MultiReader(strings.NewReader("one\ntwo\n"), iotest.ErrReader(fault))

	var lines []string
	var gotErr error
	for line, err := range NewLineReader(r, 0).Lines() {
		if err != nil {
			gotErr = err
			continue
		}
		lines = append(lines, line)
	}

	if len(lines) != 2 {
		t.Errorf("lines = %q, want two", lines)
	}
	if !errors.Is(gotErr, fault) {
		t.Errorf("sequence error = %v, want %v", gotErr, fault)
	}
}

func TestLineReaderCleanEOFEndsSilently(t *testing.T) {
	n := 0
	for _, err := range NewLineReader(strings.NewReader("a\nb\n"), 0).Lines() {
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		n++
	}
	if n != 2 {
		t.Errorf("got %d lines, want 2", n)
	}
}

func TestLineReaderOverlongLine(t *testing.T) {
	input := strings.Repeat("x", 100) + "\nshort\n" + strings.Repeat("y", 40)
	lr := NewLineReader(strings.NewReader(input), 16)

	if _, err := lr.Next(); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("Next() error = %v, want ErrLineTooLong", err)
	}
	line, err := lr.Next()
	if err != nil || line != "short" {
		t.Fatalf("Next() after overlong line = %q, %v; want short", line, err)
	}
	// Unterminated overlong tail.
	if _, err := lr.Next(); !errors.Is(err, ErrLineTooLong) {
		t.Errorf("Next() error = %v, want ErrLineTooLong", err)
	}
	if _, err := lr.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end = %v, want io.EOF", err)
	}
}

func TestLineReaderLineAtCapIsKept(t *testing.T) {
	exact := strings.Repeat("z", 16)
	line, err := NewLineReader(strings.NewReader(exact+"\r\n"), 16).Next()
	if err != nil || line != exact {
		t.Errorf("Next() = %q, %v; want the 16-byte line", line, err)
	}
}

func TestLineReaderLinesContinuesPastOverlong(t *testing.T) {
	input := strings.Repeat("x", 70*1024) + "\n{\"voltage\":7}\n"

	var lines []string
	skipped := 0
	for line, err := range NewLineReader(strings.NewReader(input), 0).Lines() {
		if errors.Is(err, ErrLineTooLong) {
			skipped++
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		lines = append(lines, line)
	}

	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(lines) != 1 || lines[0] != `{"voltage":7}` {
		t.Errorf("lines = %q", lines)
	}
}

func TestLineReaderStopsWhenConsumerBreaks(t *testing.T) {
	lr := NewLineReader(strings.NewReader("a\nb\nc\n"), 0)
	for range lr.Lines() {
		break
	}
	line, err := lr.Next()
	if err != nil || line != "b" {
		t.Errorf("Next() after break = %q, %v; want b", line, err)
	}
}
