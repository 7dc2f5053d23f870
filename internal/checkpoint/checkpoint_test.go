package checkpoint

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func sampleCheckpoint(t *testing.T) *Checkpoint {
	t.Helper()
	c := New()
	c.Metadata["step"] = "3"
	require.NoError(t, AddTable(c, "param", []float32{1, 2, 3, 4, 5, 6}, 3, 2))
	require.NoError(t, AddTable(c, "accum", []float16.Float16{
		float16.Fromfloat32(0.5), float16.Fromfloat32(1.5), float16.Fromfloat32(2.5),
	}, 3, 1))
	return c
}

func TestRoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(string(compression), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tables.safetensors")
			require.NoError(t, Save(path, sampleCheckpoint(t), compression))

			c, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, []string{"accum", "param"}, c.Names())
			assert.Equal(t, map[string]string{"step": "3"}, c.Metadata)

			param, rows, cols, err := Table[float32](c, "param")
			require.NoError(t, err)
			assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, param)
			assert.Equal(t, [2]int{3, 2}, [2]int{rows, cols})

			accum, _, _, err := Table[float32](c, "accum")
			require.NoError(t, err)
			assert.Equal(t, []float32{0.5, 1.5, 2.5}, accum)

			half, _, _, err := Table[float16.Float16](c, "param")
			require.NoError(t, err)
			assert.Equal(t, float32(6), half[5].Float32())
		})
	}
}

func TestWrite_SafeTensorsLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleCheckpoint(t), CompressionNone))

	data := buf.Bytes()
	size := binary.LittleEndian.Uint64(data[:8])
	var header map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data[8:8+size], &header))

	var accum tensorHeader
	require.NoError(t, json.Unmarshal(header["accum"], &accum))
	assert.Equal(t, "F16", accum.DType)
	assert.Equal(t, []int64{3, 1}, accum.Shape)
	assert.Equal(t, [2]int64{0, 6}, accum.DataOffsets)

	var param tensorHeader
	require.NoError(t, json.Unmarshal(header["param"], &param))
	assert.Equal(t, "F32", param.DType)
	assert.Equal(t, [2]int64{6, 30}, param.DataOffsets)
	assert.Len(t, data[8+size:], 30)
}

func TestRead_ChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleCheckpoint(t), CompressionNone))

	data := buf.Bytes()
	data[len(data)-1] ^= 0xff
	_, err := Read(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestRead_PlainSafeTensors(t *testing.T) {
	header := []byte(`{"w":{"dtype":"F32","shape":[1,1],"data_offsets":[0,4]}}`)
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(header))))
	buf.Write(header)
	buf.Write([]byte{0, 0, 0x80, 0x3f}) // 1.0

	c, err := Read(&buf)
	require.NoError(t, err)
	w, _, _, err := Table[float32](c, "w")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, w)
}

func TestRead_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"out of bounds", `{"w":{"dtype":"F32","shape":[2,1],"data_offsets":[0,8]}}`, ErrOutOfBounds},
		{"negative", `{"w":{"dtype":"F32","shape":[1,1],"data_offsets":[4,0]}}`, ErrNegativeOffset},
		{"overlap", `{"a":{"dtype":"F32","shape":[1,1],"data_offsets":[0,4]},"b":{"dtype":"F32","shape":[1,1],"data_offsets":[2,6]}}`, ErrOffsetOverlap},
		{"dtype", `{"w":{"dtype":"BF16","shape":[2,1],"data_offsets":[0,4]}}`, ErrUnsupportedDType},
		{"size", `{"w":{"dtype":"F32","shape":[2,1],"data_offsets":[0,4]}}`, ErrShapeMismatch},
		{"name", `{"../w":{"dtype":"F32","shape":[1,1],"data_offsets":[0,4]}}`, ErrInvalidTensorName},
		{"compression", `{"__metadata__":{"compression":"gzip"}}`, ErrUnsupportedCompression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(tt.header))))
			buf.WriteString(tt.header)
			buf.Write(make([]byte, 6))

			_, err := Read(&buf)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("header too large", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(MaxHeaderSize+1)))
		_, err := Read(&buf)
		assert.ErrorIs(t, err, ErrHeaderTooLarge)
	})
}

func TestAddTable(t *testing.T) {
	c := New()
	require.NoError(t, AddTable(c, "w", []float32{1, 2}, 1, 2))
	require.NoError(t, AddTable(c, "w", []float32{3, 4}, 2, 1))
	require.Len(t, c.Tensors, 1)
	assert.Equal(t, []int64{2, 1}, c.Tensors[0].Shape)

	assert.ErrorIs(t, AddTable(c, "x", []float32{1}, 1, 2), ErrShapeMismatch)
	assert.ErrorIs(t, AddTable(c, "a/b", []float32{1}, 1, 1), ErrInvalidTensorName)
	assert.ErrorIs(t, AddTable(c, metadataKey, []float32{1}, 1, 1), ErrInvalidTensorName)

	_, _, _, err := Table[float32](c, "missing")
	assert.ErrorIs(t, err, ErrTensorNotFound)
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "zstd": CompressionZstd, "lz4": CompressionLZ4} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCompression("brotli")
	assert.ErrorIs(t, err, ErrUnsupportedCompression)
}
