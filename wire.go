package tdsim

import (
	"bytes"

	"github.com/hashicorp/go-msgpack/codec"
)

var msgpackHandle = &codec.MsgpackHandle{}

// encodeMessage serializes a Message to msgpack: a fresh encoder per
// call, no shared mutable handle state beyond the codec options above.
func encodeMessage(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(&msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeMessage is encodeMessage's inverse.
func decodeMessage(b []byte) (Message, error) {
	var msg Message
	dec := codec.NewDecoder(bytes.NewReader(b), msgpackHandle)
	if err := dec.Decode(&msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
