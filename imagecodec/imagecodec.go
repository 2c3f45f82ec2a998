// Package imagecodec defines the disk-image read/write boundary
// (spec.md/SPEC_FULL.md §6) and a format registry, replacing the
// teacher's hfe.DetectImageFormat switch-on-extension dispatch with a
// small ordered list of self-probing codecs (each one inspects the bytes
// itself and reports whether it recognized them, rather than trusting a
// filename extension).
package imagecodec

import (
	"fmt"
	"io"

	"github.com/sergev/floppycore/disk"
)

// Reader decodes a disk image. Read returns (nil, false, nil) when the
// bytes at r don't match this codec's format, letting the registry try
// the next one; a non-nil error means the format *was* recognized but
// something in it was invalid.
type Reader interface {
	Read(r io.ReaderAt, size int64) (*disk.Disk, bool, error)
}

// Writer encodes a disk image in one specific format.
type Writer interface {
	Write(w io.WriterAt, d *disk.Disk) error
}

// Codec names one format, offering a Reader and, when the format supports
// it, a Writer.
type Codec struct {
	Name   string
	Reader Reader
	Writer Writer // nil for read-only formats
}

var registry []Codec

// Register adds a codec to the registry. Readers are tried in
// registration order, so more specific/stricter signature checks should
// register before looser ones.
func Register(c Codec) {
	registry = append(registry, c)
}

// ByName returns the codec registered under name, if any.
func ByName(name string) (Codec, bool) {
	for _, c := range registry {
		if c.Name == name {
			return c, true
		}
	}
	return Codec{}, false
}

// Names lists every registered codec, in registration order.
func Names() []string {
	names := make([]string, len(registry))
	for i, c := range registry {
		names[i] = c.Name
	}
	return names
}

// Detect tries every registered codec's Reader in turn and returns the
// first one that recognizes the image.
func Detect(r io.ReaderAt, size int64) (*disk.Disk, string, error) {
	for _, c := range registry {
		d, ok, err := c.Reader.Read(r, size)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", c.Name, err)
		}
		if ok {
			return d, c.Name, nil
		}
	}
	return nil, "", fmt.Errorf("image format not recognized by any registered codec")
}
