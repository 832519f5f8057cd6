package image

import (
	"encoding/binary"
	"fmt"
)

var magic = [4]byte{'F', 'V', 'M', 'I'}

// Header size constants
const (
	magicSize   = 4
	versionSize = 2
	flagsSize   = 2
	countSize   = 4
	headerSize  = magicSize + versionSize + flagsSize + countSize
)

func encodeBinary(img *Image) ([]byte, error) {
	if img.Version != Version {
		return nil, fmt.Errorf("%w: cannot write version %d", ErrVersionMismatch, img.Version)
	}
	buf := make([]byte, 0, headerSize+4*len(img.Code))
	buf = append(buf, magic[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, img.Version)
	buf = binary.LittleEndian.AppendUint16(buf, 0) // flags, reserved
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(img.Code)))
	for _, w := range img.Code {
		buf = binary.LittleEndian.AppendUint32(buf, w)
	}
	return buf, nil
}

func decodeBinary(data []byte) (*Image, error) {
	if len(data) < headerSize {
		return nil, ErrUnexpectedEOF
	}
	if [4]byte(data[:magicSize]) != magic {
		return nil, ErrInvalidMagic
	}
	off := magicSize
	version := binary.LittleEndian.Uint16(data[off:])
	off += versionSize
	if version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, version, Version)
	}
	if flags := binary.LittleEndian.Uint16(data[off:]); flags != 0 {
		return nil, fmt.Errorf("%w: unknown flags %#04x", ErrCorruptHeader, flags)
	}
	off += flagsSize
	count := binary.LittleEndian.Uint32(data[off:])
	off += countSize

	body := data[off:]
	if uint64(len(body)) < uint64(count)*4 {
		return nil, fmt.Errorf("%w: %d words declared, %d bytes present", ErrUnexpectedEOF, count, len(body))
	}
	if uint64(len(body)) > uint64(count)*4 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptHeader, uint64(len(body))-uint64(count)*4)
	}

	code := make([]uint32, count)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(body[i*4:])
	}
	return &Image{Version: version, Code: code}, nil
}
