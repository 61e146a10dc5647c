package classfile

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// BundleVersion is written into every bundle header.
const BundleVersion = 1

// Bundle is a set of class definitions stored as one CBOR document.
type Bundle struct {
	Version int      `cbor:"1,keyasint"`
	Classes []*Class `cbor:"2,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("classfile: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes a single class to CBOR bytes.
func Marshal(c *Class) ([]byte, error) {
	return cborEncMode.Marshal(c)
}

// Unmarshal deserializes a single class and validates it.
func Unmarshal(data []byte) (*Class, error) {
	var c Class
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("classfile: unmarshal class: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// MarshalBundle serializes classes into a versioned bundle.
func MarshalBundle(classes []*Class) ([]byte, error) {
	return cborEncMode.Marshal(&Bundle{Version: BundleVersion, Classes: classes})
}

// UnmarshalBundle deserializes and validates every class in a bundle.
func UnmarshalBundle(data []byte) ([]*Class, error) {
	var b Bundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("classfile: unmarshal bundle: %w", err)
	}
	if b.Version != BundleVersion {
		return nil, fmt.Errorf("classfile: unsupported bundle version %d", b.Version)
	}
	for _, c := range b.Classes {
		if c == nil {
			return nil, fmt.Errorf("classfile: bundle contains a nil class")
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return b.Classes, nil
}
