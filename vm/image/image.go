// Package image reads and writes flatvm program images.
//
// Two encodings are supported. The binary form is a fixed header followed by
// the little-endian code words:
//
//	[magic:4 "FVMI"] [version:2] [flags:2] [count:4] [word:4]*count
//
// The CBOR form carries the same words plus debug names for item ids, used
// by the disassembler. Decode tells the two apart by the magic.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Version is the only image version this package reads and writes.
const Version = 1

var (
	ErrInvalidMagic    = errors.New("invalid magic number: expected FVMI")
	ErrVersionMismatch = errors.New("image version mismatch")
	ErrCorruptHeader   = errors.New("corrupt image header")
	ErrUnexpectedEOF   = errors.New("unexpected end of image data")
	ErrUnknownFormat   = errors.New("unknown image format")
)

// Image is a loadable program.
type Image struct {
	Version uint16            `cbor:"1,keyasint"`
	Code    []uint32          `cbor:"2,keyasint"`
	Names   map[uint32]string `cbor:"3,keyasint,omitempty"`
}

// New wraps code in a current-version image.
func New(code []uint32) *Image {
	return &Image{Version: Version, Code: code}
}

// Format selects an on-disk encoding.
type Format uint8

const (
	FormatBinary Format = iota
	FormatCBOR
)

// String implements the Stringer interface.
func (f Format) String() string {
	switch f {
	case FormatBinary:
		return "binary"
	case FormatCBOR:
		return "cbor"
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// ParseFormat accepts "binary" or "cbor". The empty string means binary.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "binary", "bin":
		return FormatBinary, nil
	case "cbor":
		return FormatCBOR, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Decode parses an image in either encoding.
func Decode(data []byte) (*Image, error) {
	if bytes.HasPrefix(data, magic[:]) {
		return decodeBinary(data)
	}
	return unmarshalCBOR(data)
}

// Encode serializes img in the given format.
func Encode(img *Image, f Format) ([]byte, error) {
	switch f {
	case FormatBinary:
		return encodeBinary(img)
	case FormatCBOR:
		return marshalCBOR(img)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, f)
}

// ReadFile loads an image from path.
func ReadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// WriteFile saves img to path in the given format.
func WriteFile(path string, img *Image, f Format) error {
	data, err := Encode(img, f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	return nil
}
