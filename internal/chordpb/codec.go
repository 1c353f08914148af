// Package chordpb defines the gRPC services used between chordkit peers and
// the coordinator. Messages are plain Go structs encoded with msgpack rather
// than protobuf; the codec is registered with gRPC under the "msgpack"
// content subtype and every client call in this package selects it.
package chordpb

import (
	"bytes"

	"github.com/hashicorp/go-msgpack/codec"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype used for chordkit messages.
const CodecName = "msgpack"

func init() {
	encoding.RegisterCodec(msgpackCodec{})
}

type msgpackCodec struct{}

var _ encoding.Codec = msgpackCodec{}

func (msgpackCodec) Marshal(v interface{}) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	var handle codec.MsgpackHandle
	enc := codec.NewEncoder(buf, &handle)
	err := enc.Encode(v)
	return buf.Bytes(), err
}

func (msgpackCodec) Unmarshal(data []byte, v interface{}) error {
	r := bytes.NewReader(data)
	var handle codec.MsgpackHandle
	dec := codec.NewDecoder(r, &handle)
	return dec.Decode(v)
}

func (msgpackCodec) Name() string { return CodecName }
