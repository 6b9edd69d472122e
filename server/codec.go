package server

import (
	"github.com/fxamacker/cbor/v2"
)

// codecName is the Connect codec name; requests travel as application/cbor.
const codecName = "cbor"

// cborCodec carries HeapService messages as canonical CBOR instead of
// protobuf, so the service needs no generated code.
type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() *cborCodec {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
	return &cborCodec{enc: enc, dec: dec}
}

func (c *cborCodec) Name() string { return codecName }

func (c *cborCodec) Marshal(msg any) ([]byte, error) {
	return c.enc.Marshal(msg)
}

func (c *cborCodec) Unmarshal(data []byte, msg any) error {
	return c.dec.Unmarshal(data, msg)
}
