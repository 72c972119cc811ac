package job

import (
	"github.com/brane-run/brane/transport/rpc"
)

// codecName is the content-subtype transport/rpc registers; Dialer dials
// with grpc.CallContentSubtype(codecName) to select JSON wire encoding
// instead of the default proto codec, matching transport/drv's codec.go.
const codecName = rpc.CodecName
