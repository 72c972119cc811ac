// Package rpc holds the JSON encoding.Codec shared by every hand-rolled gRPC
// surface (drv, job): no `.proto` stub exists in the retrieval pack for
// these services (SPEC_FULL.md §6), so messages are plain Go structs with
// JSON tags, and a single codec registration covers every service built on
// top of it rather than each package registering its own copy.
package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is this codec's registered content-subtype. A client dials with
// grpc.CallContentSubtype(CodecName); a server need not opt in explicitly,
// since grpc-go resolves the subtype from the incoming request.
const CodecName = "json"

// jsonCodec implements encoding.Codec by delegating to encoding/json,
// matching how grpc-go's own proto codec registers itself process-wide.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal %T: %w", v, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpc: unmarshal into %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
