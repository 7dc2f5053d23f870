package checkpoint

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/klauspost/compress/zstd"
	lz4 "github.com/pierrec/lz4/v4"
	"github.com/zeebo/xxh3"
)

// Save writes c to path.
func Save(path string, c *Checkpoint, compression Compression) (err error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for checkpoint saving
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(file)
	if err := Write(bw, c, compression); err != nil {
		return err
	}
	return bw.Flush()
}

// Write encodes c to w.
//
// Tensors are written in alphabetical order by name (SafeTensors
// requirement).
func Write(w io.Writer, c *Checkpoint, compression Compression) error {
	if _, err := ParseCompression(string(compression)); err != nil {
		return err
	}
	if compression == "" {
		compression = CompressionNone
	}

	tensors := make([]Tensor, len(c.Tensors))
	copy(tensors, c.Tensors)
	sort.Slice(tensors, func(i, j int) bool { return tensors[i].Name < tensors[j].Name })
	if len(tensors) > MaxTensorCount {
		return &ValidationError{Type: "too_many_tensors", Details: strconv.Itoa(len(tensors)), Err: ErrTooManyTensors}
	}

	header := make(map[string]any, len(tensors)+1)
	var payload bytes.Buffer
	for _, t := range tensors {
		if err := ValidateTensorName(t.Name); err != nil {
			return err
		}
		if want := t.NumElements() * int64(t.DType.Size()); int64(len(t.Data)) != want {
			return fmt.Errorf("checkpoint: %q: %d bytes, want %d: %w", t.Name, len(t.Data), want, ErrShapeMismatch)
		}
		start := int64(payload.Len())
		payload.Write(t.Data)
		header[t.Name] = tensorHeader{
			DType:       dtypeToSafeTensors(t.DType),
			Shape:       t.Shape,
			DataOffsets: [2]int64{start, int64(payload.Len())},
		}
	}

	metadata := make(map[string]string, len(c.Metadata)+2)
	for k, v := range c.Metadata {
		metadata[k] = v
	}
	metadata[keyCompression] = string(compression)
	metadata[keyChecksum] = strconv.FormatUint(xxh3.Hash(payload.Bytes()), 16)
	header[metadataKey] = metadata

	body, err := compress(payload.Bytes(), compression)
	if err != nil {
		return fmt.Errorf("failed to compress payload: %w", err)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	// Write header size (8 bytes, little-endian uint64)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

func compress(b []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(b, make([]byte, 0, len(b)/2)), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(b); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return b, nil
	}
}

func decompress(b []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(b, nil)
	case CompressionLZ4:
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, lz4.NewReader(bytes.NewReader(b))); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return b, nil
	}
}
