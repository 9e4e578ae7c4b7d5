// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package device opens the field device's character stream and simulates
// it for bench work.
package device

import (
	"fmt"
	"io"
	"os"

	serial "github.com/jacobsa/go-serial/serial"
)

// StdinPort selects standard input instead of a serial device.
const StdinPort = "-"

// Open opens the device stream. Closing the returned stream unblocks a
// pending read.
func Open(port string, baud int) (io.ReadCloser, error) {
	if port == StdinPort {
		return interruptible(os.Stdin), nil
	}

	serialOpts := serial.OpenOptions{
		PortName:              port,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	rwc, err := serial.Open(serialOpts)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	return rwc, nil
}

// interruptible copies r through a pipe. A blocking file such as a
// terminal or inherited pipe on fd 0 ignores Close while a Read is in
// flight; closing the pipe end returns io.ErrClosedPipe to the reader at
// once. The copier exits on its next write or when r ends.
func interruptible(r io.Reader) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := io.Copy(pw, r)
		pw.CloseWithError(err)
	}()
	return pr
}

// IsStdin reports whether port reads standard input. Standard input is
// not reopened once it ends.
func IsStdin(port string) bool {
	return port == StdinPort
}
