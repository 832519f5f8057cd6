package image

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/flatvm/vm"
)

func sampleCode(t *testing.T) []uint32 {
	t.Helper()
	code, err := vm.NewBuilder().Emit(vm.Push(0), vm.Push(1), vm.Val(0),
		vm.Xlo(0x1FFF_FFFF), vm.Xhi(7), vm.Def(1), vm.Def(0)).Words()
	if err != nil {
		t.Fatal(err)
	}
	return code
}

func TestBinaryLayout(t *testing.T) {
	data, err := Encode(New([]uint32{0x4000_0000, 0xDEAD_BEEF}), FormatBinary)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []byte{
		'F', 'V', 'M', 'I',
		0x01, 0x00, // version
		0x00, 0x00, // flags
		0x02, 0x00, 0x00, 0x00, // count
		0x00, 0x00, 0x00, 0x40,
		0xEF, 0xBE, 0xAD, 0xDE,
	}
	if !bytes.Equal(data, want) {
		t.Errorf("Encode = % x\nwant     % x", data, want)
	}
}

func TestDecodeBothFormats(t *testing.T) {
	img := New(sampleCode(t))
	img.Names = map[uint32]string{1: "answer"}

	for _, f := range []Format{FormatBinary, FormatCBOR} {
		t.Run(f.String(), func(t *testing.T) {
			data, err := Encode(img, f)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(got.Code) != len(img.Code) {
				t.Fatalf("decoded %d words, want %d", len(got.Code), len(img.Code))
			}
			for i := range img.Code {
				if got.Code[i] != img.Code[i] {
					t.Errorf("word %d = %08X, want %08X", i, got.Code[i], img.Code[i])
				}
			}
			wantName := ""
			if f == FormatCBOR {
				wantName = "answer"
			}
			if got.Names[1] != wantName {
				t.Errorf("Names[1] = %q, want %q", got.Names[1], wantName)
			}
		})
	}
}

func TestCBORIsDeterministic(t *testing.T) {
	img := New(sampleCode(t))
	img.Names = map[uint32]string{3: "c", 1: "a", 2: "b"}
	a, err := Encode(img, FormatCBOR)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		b, _ := Encode(img, FormatCBOR)
		if !bytes.Equal(a, b) {
			t.Fatal("CBOR encoding is not deterministic")
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	good, _ := Encode(New([]uint32{1, 2}), FormatBinary)

	badVersion := append([]byte(nil), good...)
	badVersion[4] = 2
	badFlags := append([]byte(nil), good...)
	badFlags[6] = 1

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short header", good[:8], ErrUnexpectedEOF},
		{"truncated words", good[:len(good)-2], ErrUnexpectedEOF},
		{"trailing bytes", append(append([]byte(nil), good...), 0), ErrCorruptHeader},
		{"version", badVersion, ErrVersionMismatch},
		{"flags", badFlags, ErrCorruptHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("Decode error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := Decode([]byte("not an image")); err == nil {
		t.Error("Decode of garbage succeeded")
	}
}

func TestEncodeRejectsOtherVersions(t *testing.T) {
	img := &Image{Version: 7}
	for _, f := range []Format{FormatBinary, FormatCBOR} {
		if _, err := Encode(img, f); !errors.Is(err, ErrVersionMismatch) {
			t.Errorf("Encode(%s) error = %v, want ErrVersionMismatch", f, err)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"", FormatBinary, true},
		{"binary", FormatBinary, true},
		{"CBOR", FormatCBOR, true},
		{"json", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err == nil) != tt.ok || (tt.ok && got != tt.want) {
			t.Errorf("ParseFormat(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.fvm")
	if err := WriteFile(path, New(sampleCode(t)), FormatCBOR); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	img, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	m := vm.NewMachine(img.Code)
	for {
		status, err := m.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if status == vm.StepHalted {
			break
		}
	}
	if m.X != vm.I32(0xFFFF_FFFF) {
		t.Errorf("result = %s", m.X)
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("ReadFile of missing file succeeded")
	}
}
