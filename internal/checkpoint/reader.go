package checkpoint

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/zeebo/xxh3"
)

// Load reads a checkpoint from path.
func Load(path string) (*Checkpoint, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for checkpoint loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()
	return Read(bufio.NewReader(file))
}

// Read decodes a checkpoint from r, verifying offsets and the payload
// checksum. Files without a checksum (plain SafeTensors) are accepted.
func Read(r io.Reader) (*Checkpoint, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, &ValidationError{
			Type:    "header_too_large",
			Details: fmt.Sprintf("%d bytes, max %d", headerSize, MaxHeaderSize),
			Err:     ErrHeaderTooLarge,
		}
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	c := New()
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
		delete(raw, metadataKey)
	}
	compression, err := ParseCompression(c.Metadata[keyCompression])
	if err != nil {
		return nil, err
	}
	checksum := c.Metadata[keyChecksum]
	delete(c.Metadata, keyCompression)
	delete(c.Metadata, keyChecksum)

	headers := make(map[string]tensorHeader, len(raw))
	for name, msg := range raw {
		var h tensorHeader
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, fmt.Errorf("failed to parse tensor %q: %w", name, err)
		}
		headers[name] = h
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	payload, err := decompress(body, compression)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %w", err)
	}
	if checksum != "" {
		want, err := strconv.ParseUint(checksum, 16, 64)
		if err != nil || xxh3.Hash(payload) != want {
			return nil, ErrChecksumMismatch
		}
	}

	if err := ValidateHeader(headers, int64(len(payload))); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h := headers[name]
		dt, ok := safeTensorsToDtype(h.DType)
		if !ok {
			return nil, fmt.Errorf("checkpoint: %q: %s: %w", name, h.DType, ErrUnsupportedDType)
		}
		t := Tensor{
			Name:  name,
			DType: dt,
			Shape: h.Shape,
			Data:  payload[h.DataOffsets[0]:h.DataOffsets[1]:h.DataOffsets[1]],
		}
		if int64(len(t.Data)) != t.NumElements()*int64(dt.Size()) {
			return nil, fmt.Errorf("checkpoint: %q: %d bytes for %v: %w", name, len(t.Data), t.Shape, ErrShapeMismatch)
		}
		c.Tensors = append(c.Tensors, t)
	}
	return c, nil
}
