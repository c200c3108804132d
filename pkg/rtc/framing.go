package rtc

import (
	"encoding/binary"
	"time"

	apperrors "github.com/chromatrack/chromatrack/pkg/errors"
	"github.com/chromatrack/chromatrack/pkg/media"
)

// Frames cross the data channel as one header record followed by the pixel
// buffer split into chunks. The channel is reliable and ordered, so the
// decoder is a plain two-state machine: a record that is not a valid header
// while one is expected resets the stream and surfaces a framing error.
//
// Header layout, big endian:
//
//	0:4   magic "CTF1"
//	4:8   width
//	8:12  height
//	12    pixel format
//	13:21 timestamp (tick counter)
//	21:29 duration, nanoseconds
//	29:33 pixel buffer length

const headerSize = 33

var headerMagic = [4]byte{'C', 'T', 'F', '1'}

// EncodeFrame serializes a frame into the records to send, header first.
func EncodeFrame(f *media.Frame, chunkSize int) ([][]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if chunkSize <= 0 {
		chunkSize = DefaultOption().GetFrameChunkSize()
	}

	header := make([]byte, headerSize)
	copy(header[0:4], headerMagic[:])
	binary.BigEndian.PutUint32(header[4:8], uint32(f.Width))
	binary.BigEndian.PutUint32(header[8:12], uint32(f.Height))
	header[12] = byte(f.Format)
	binary.BigEndian.PutUint64(header[13:21], uint64(f.Timestamp))
	binary.BigEndian.PutUint64(header[21:29], uint64(f.Duration))
	binary.BigEndian.PutUint32(header[29:33], uint32(len(f.Data)))

	records := make([][]byte, 0, 1+(len(f.Data)+chunkSize-1)/chunkSize)
	records = append(records, header)
	for off := 0; off < len(f.Data); off += chunkSize {
		end := off + chunkSize
		if end > len(f.Data) {
			end = len(f.Data)
		}
		records = append(records, f.Data[off:end])
	}
	return records, nil
}

// FrameAssembler rebuilds frames from the record stream. Not safe for
// concurrent use; feed it from a single OnMessage callback.
type FrameAssembler struct {
	maxBytes int

	frame *media.Frame
	need  int
}

func NewFrameAssembler(maxBytes int) *FrameAssembler {
	if maxBytes <= 0 {
		maxBytes = DefaultOption().GetMaxFrameBytes()
	}
	return &FrameAssembler{maxBytes: maxBytes}
}

// Push consumes one record. It returns a frame when the record completed
// one, nil while more records are needed, and an error when the stream is
// corrupt. After an error the assembler has reset and the next record is
// expected to be a header again.
func (a *FrameAssembler) Push(record []byte) (*media.Frame, error) {
	if a.frame == nil {
		return nil, a.beginFrame(record)
	}

	if len(record) > a.need {
		a.reset()
		return nil, apperrors.NewAppErrorf(apperrors.ErrCodeFramingCorrupt,
			"chunk of %d bytes overruns frame by %d", len(record), len(record)-a.need)
	}

	off := len(a.frame.Data) - a.need
	copy(a.frame.Data[off:], record)
	a.need -= len(record)

	if a.need > 0 {
		return nil, nil
	}

	f := a.frame
	a.reset()
	return f, nil
}

func (a *FrameAssembler) beginFrame(record []byte) error {
	if len(record) != headerSize || [4]byte(record[0:4]) != headerMagic {
		return apperrors.NewAppErrorf(apperrors.ErrCodeFramingCorrupt,
			"expected %d byte frame header, got %d bytes", headerSize, len(record))
	}

	width := int(binary.BigEndian.Uint32(record[4:8]))
	height := int(binary.BigEndian.Uint32(record[8:12]))
	format := media.PixelFormat(record[12])
	dataLen := int(binary.BigEndian.Uint32(record[29:33]))

	if dataLen > a.maxBytes {
		return apperrors.NewAppErrorf(apperrors.ErrCodeFrameTooLarge,
			"frame of %d bytes exceeds limit %d", dataLen, a.maxBytes)
	}
	if width <= 0 || height <= 0 || format.BytesPerPixel() == 0 ||
		dataLen != width*height*format.BytesPerPixel() {
		return apperrors.NewAppErrorf(apperrors.ErrCodeFramingCorrupt,
			"header declares %dx%d %s with %d bytes", width, height, format, dataLen)
	}

	a.frame = &media.Frame{
		Data:      make([]byte, dataLen),
		Width:     width,
		Height:    height,
		Format:    format,
		Timestamp: int64(binary.BigEndian.Uint64(record[13:21])),
		Duration:  time.Duration(binary.BigEndian.Uint64(record[21:29])),
	}
	a.need = dataLen
	return nil
}

func (a *FrameAssembler) reset() {
	a.frame = nil
	a.need = 0
}
