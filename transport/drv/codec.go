// Package drv is the central `drv` service (spec.md §6): session creation,
// a dry-run authorization check, and workflow execution, all served over a
// hand-written gRPC service. No .proto stub exists in the retrieval pack
// for this surface, so messages are plain Go structs with JSON tags,
// marshalled by the shared transport/rpc JSON codec and dispatched through
// manually built grpc.ServiceDesc values (SPEC_FULL.md §6).
package drv

import (
	"github.com/brane-run/brane/transport/rpc"
)

// codecName is the content-subtype transport/rpc registers; a client dials
// with grpc.CallContentSubtype(codecName) to select JSON wire encoding
// instead of the default proto codec.
const codecName = rpc.CodecName
