package rtc

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
	"github.com/chromatrack/chromatrack/pkg/media"
)

func testFrame(t *testing.T, width, height int) *media.Frame {
	t.Helper()
	f := media.NewFrame(width, height, media.FormatRGB24)
	for i := range f.Data {
		f.Data[i] = byte(i * 7)
	}
	f.Timestamp = 42
	f.Duration = time.Second / 60
	return f
}

func TestEncodeFrame_HeaderLayout(t *testing.T) {
	f := testFrame(t, 4, 3)

	records, err := EncodeFrame(f, 16)
	require.NoError(t, err)

	// 36 bytes of pixels in 16 byte chunks
	require.Len(t, records, 4)
	header := records[0]
	require.Len(t, header, headerSize)

	assert.Equal(t, headerMagic[:], header[0:4])
	assert.Equal(t, uint32(4), binary.BigEndian.Uint32(header[4:8]))
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(header[8:12]))
	assert.Equal(t, byte(media.FormatRGB24), header[12])
	assert.Equal(t, uint64(42), binary.BigEndian.Uint64(header[13:21]))
	assert.Equal(t, uint64(time.Second/60), binary.BigEndian.Uint64(header[21:29]))
	assert.Equal(t, uint32(36), binary.BigEndian.Uint32(header[29:33]))

	assert.Len(t, records[1], 16)
	assert.Len(t, records[2], 16)
	assert.Len(t, records[3], 4)
}

func TestEncodeFrame_RejectsInvalidFrame(t *testing.T) {
	f := media.NewFrame(4, 3, media.FormatRGB24)
	f.Data = f.Data[:5]

	_, err := EncodeFrame(f, 16)
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeFrameInvalid, appErr.Code)
}

func TestAssembler_RoundTrip(t *testing.T) {
	f := testFrame(t, 20, 10)
	records, err := EncodeFrame(f, 64)
	require.NoError(t, err)

	a := NewFrameAssembler(0)
	var got *media.Frame
	for i, record := range records {
		frame, err := a.Push(record)
		require.NoError(t, err)
		if i < len(records)-1 {
			require.Nil(t, frame, "frame completed early at record %d", i)
		} else {
			got = frame
		}
	}

	require.NotNil(t, got)
	assert.Equal(t, f.Width, got.Width)
	assert.Equal(t, f.Height, got.Height)
	assert.Equal(t, f.Format, got.Format)
	assert.Equal(t, f.Timestamp, got.Timestamp)
	assert.Equal(t, f.Duration, got.Duration)
	assert.True(t, bytes.Equal(f.Data, got.Data))
}

func TestAssembler_SingleChunk(t *testing.T) {
	f := testFrame(t, 4, 4)
	records, err := EncodeFrame(f, 1<<16)
	require.NoError(t, err)
	require.Len(t, records, 2)

	a := NewFrameAssembler(0)
	frame, err := a.Push(records[0])
	require.NoError(t, err)
	require.Nil(t, frame)

	frame, err = a.Push(records[1])
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.True(t, bytes.Equal(f.Data, frame.Data))
}

func TestAssembler_BackToBackFrames(t *testing.T) {
	a := NewFrameAssembler(0)

	for tick := int64(0); tick < 3; tick++ {
		f := testFrame(t, 8, 8)
		f.Timestamp = tick
		records, err := EncodeFrame(f, 32)
		require.NoError(t, err)

		var got *media.Frame
		for _, record := range records {
			frame, err := a.Push(record)
			require.NoError(t, err)
			if frame != nil {
				got = frame
			}
		}
		require.NotNil(t, got)
		assert.Equal(t, tick, got.Timestamp)
	}
}

func TestAssembler_GarbageResyncs(t *testing.T) {
	a := NewFrameAssembler(0)

	_, err := a.Push([]byte("definitely not a frame header"))
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeFramingCorrupt, appErr.Code)

	// the stream recovers at the next valid header
	f := testFrame(t, 4, 4)
	records, err := EncodeFrame(f, 64)
	require.NoError(t, err)

	frame, err := a.Push(records[0])
	require.NoError(t, err)
	require.Nil(t, frame)
	frame, err = a.Push(records[1])
	require.NoError(t, err)
	require.NotNil(t, frame)
}

func TestAssembler_BadMagic(t *testing.T) {
	f := testFrame(t, 4, 4)
	records, err := EncodeFrame(f, 64)
	require.NoError(t, err)

	header := append([]byte(nil), records[0]...)
	header[0] = 'X'

	a := NewFrameAssembler(0)
	_, err = a.Push(header)
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeFramingCorrupt, appErr.Code)
}

func TestAssembler_GeometryMismatch(t *testing.T) {
	f := testFrame(t, 4, 4)
	records, err := EncodeFrame(f, 64)
	require.NoError(t, err)

	header := append([]byte(nil), records[0]...)
	binary.BigEndian.PutUint32(header[29:33], 9999)

	a := NewFrameAssembler(0)
	_, err = a.Push(header)
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeFramingCorrupt, appErr.Code)
}

func TestAssembler_FrameTooLarge(t *testing.T) {
	f := testFrame(t, 100, 100)
	records, err := EncodeFrame(f, 1<<16)
	require.NoError(t, err)

	a := NewFrameAssembler(1024)
	_, err = a.Push(records[0])
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeFrameTooLarge, appErr.Code)
}

func TestAssembler_OverlongChunkResets(t *testing.T) {
	f := testFrame(t, 4, 4)
	records, err := EncodeFrame(f, 64)
	require.NoError(t, err)

	a := NewFrameAssembler(0)
	_, err = a.Push(records[0])
	require.NoError(t, err)

	oversized := make([]byte, len(f.Data)+1)
	_, err = a.Push(oversized)
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeFramingCorrupt, appErr.Code)

	// assembler is back in header state
	frame, err := a.Push(records[0])
	require.NoError(t, err)
	require.Nil(t, frame)
	frame, err = a.Push(records[1])
	require.NoError(t, err)
	require.NotNil(t, frame)
}

func BenchmarkEncodeFrame(b *testing.B) {
	f := media.NewFrame(800, 600, media.FormatRGB24)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := EncodeFrame(f, 0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssembler(b *testing.B) {
	f := media.NewFrame(800, 600, media.FormatRGB24)
	records, err := EncodeFrame(f, 0)
	if err != nil {
		b.Fatal(err)
	}
	a := NewFrameAssembler(0)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, record := range records {
			if _, err := a.Push(record); err != nil {
				b.Fatal(err)
			}
		}
	}
}
