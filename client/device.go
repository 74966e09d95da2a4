// Package client is the session client SDK: audio capture with silence
// detection, the duplex session transport, and the processing state machine
// driven by transport events.
package client

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrDeviceUnavailable reports that the audio input device could not be
// acquired. Fatal to capture; the session transport stays connected.
var ErrDeviceUnavailable = errors.New("client: audio device unavailable")

// Device is an exclusive mono PCM16LE audio source. Implementations wrap a
// microphone capture stack or any reader producing little-endian int16
// samples at the engine's configured rate.
type Device interface {
	// Open acquires the device exclusively. Failures wrap
	// ErrDeviceUnavailable.
	Open() error
	// Read fills p with PCM16LE bytes, blocking until data is available.
	Read(p []byte) (int, error)
	// Close releases the device. Safe to call more than once.
	Close() error
}

// FileDevice reads PCM16LE audio from a file or FIFO, e.g. a named pipe fed
// by arecord or sox. Useful for rehearsal runs without a native capture
// backend.
type FileDevice struct {
	Path string

	mu sync.Mutex
	f  *os.File
}

func NewFileDevice(path string) *FileDevice { return &FileDevice{Path: path} }

func (d *FileDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f != nil {
		return fmt.Errorf("%w: already open", ErrDeviceUnavailable)
	}
	f, err := os.Open(d.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	d.f = f
	return nil
}

func (d *FileDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	f := d.f
	d.mu.Unlock()
	if f == nil {
		return 0, io.EOF
	}
	return f.Read(p)
}

func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// ReaderDevice adapts any io.Reader of PCM16LE bytes into a Device. A nil
// reader fails Open with ErrDeviceUnavailable.
type ReaderDevice struct {
	R io.Reader
}

func NewReaderDevice(r io.Reader) *ReaderDevice { return &ReaderDevice{R: r} }

func (d *ReaderDevice) Open() error {
	if d.R == nil {
		return fmt.Errorf("%w: nil reader", ErrDeviceUnavailable)
	}
	return nil
}

func (d *ReaderDevice) Read(p []byte) (int, error) {
	if d.R == nil {
		return 0, io.EOF
	}
	return d.R.Read(p)
}

func (d *ReaderDevice) Close() error {
	if c, ok := d.R.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
