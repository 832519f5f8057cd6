package image

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode so equal images encode identically.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

func marshalCBOR(img *Image) ([]byte, error) {
	if img.Version != Version {
		return nil, fmt.Errorf("%w: cannot write version %d", ErrVersionMismatch, img.Version)
	}
	return cborEncMode.Marshal(img)
}

func unmarshalCBOR(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal cbor: %w", err)
	}
	if img.Version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, img.Version, Version)
	}
	return &img, nil
}
