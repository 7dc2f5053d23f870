// Package checkpoint persists embedding and accumulator tables.
//
// Files use the SafeTensors layout:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[payload]
//
// The header maps tensor names to dtype, shape and data offsets into the
// uncompressed payload. The reserved "__metadata__" entry carries free-form
// string metadata plus the payload compression ("none", "zstd", "lz4") and
// an xxh3 checksum of the uncompressed payload. Uncompressed checkpoints are
// readable by any SafeTensors loader.
package checkpoint

import (
	"github.com/born-ml/sparsegrad/internal/dtype"
)

// Reserved metadata keys.
const (
	metadataKey    = "__metadata__"
	keyCompression = "compression"
	keyChecksum    = "checksum_xxh3"
)

// Validation limits for security and resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxTensorCount   = 100_000           // Maximum number of tensors in a file
	MaxTensorNameLen = 4096              // Maximum tensor name length
)

// Compression selects how the payload is stored.
type Compression string

// Payload compressions.
const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// ParseCompression parses a compression name. The empty string means none.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionZstd, CompressionLZ4:
		return Compression(s), nil
	default:
		return "", &ValidationError{Type: "unsupported_compression", Details: s, Err: ErrUnsupportedCompression}
	}
}

// tensorHeader represents a tensor in the SafeTensors header.
type tensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// dtypeToSafeTensors converts a storage type to its SafeTensors dtype string.
func dtypeToSafeTensors(dt dtype.DataType) string {
	switch dt {
	case dtype.Float16:
		return "F16"
	default:
		return "F32"
	}
}

// safeTensorsToDtype converts a SafeTensors dtype string to a storage type.
func safeTensorsToDtype(s string) (dtype.DataType, bool) {
	switch s {
	case "F32":
		return dtype.Float32, true
	case "F16":
		return dtype.Float16, true
	default:
		return 0, false
	}
}
