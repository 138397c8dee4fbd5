package channel

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/switchboard-io/switchboard/internal/serde"
)

// DefaultMaxFrameSize is the default frame size limit: frames larger
// than this are refused with FrameTooLargeError.
const DefaultMaxFrameSize uint32 = 4 * 1024 * 1024

// FrameWriter serializes Messages onto a stream transport (Unix domain
// socket or TCP) as length-prefixed bincode frames. It reuses a scratch
// buffer across writes rather than allocating one per frame.
type FrameWriter struct {
	w io.Writer
	scratch bytes.Buffer
	maxFrameSize uint32
}

func NewFrameWriter(w io.Writer, maxFrameSize uint32) *FrameWriter {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &FrameWriter{w: w, maxFrameSize: maxFrameSize}
}

// WriteMessage encodes msg, checks it against max_frame_size, and writes
// it as length-prefixed bincode: u32 big-endian length, then the buffer.
func (fw *FrameWriter) WriteMessage(msg Message) error {
	fw.scratch.Reset()

	encoded, err := serde.BincodeCodec{}.EncodeValue(msg.ToValue())
	if err != nil {
		return err
	}
	if uint32(len(encoded)) > fw.maxFrameSize {
		return &FrameTooLargeError{Size: uint32(len(encoded)), Max: fw.maxFrameSize}
	}
	fw.scratch.Write(encoded)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(fw.scratch.Len()))
	if _, err := fw.w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = fw.w.Write(fw.scratch.Bytes())
	return err
}

// FrameReader reads length-prefixed bincode frames and decodes them back
// into Messages.
type FrameReader struct {
	r io.Reader
	maxFrameSize uint32
}

func NewFrameReader(r io.Reader, maxFrameSize uint32) *FrameReader {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &FrameReader{r: r, maxFrameSize: maxFrameSize}
}

// ReadMessage reads one frame and decodes it into a Message. Both peers
// must share the same max_frame_size for this check to agree.
func (fr *FrameReader) ReadMessage() (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > fr.maxFrameSize {
		return nil, &FrameTooLargeError{Size: length, Max: fr.maxFrameSize}
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		return nil, err
	}

	value, err := serde.BincodeCodec{}.DecodeValue(buf)
	if err != nil {
		return nil, err
	}
	return DecodeMessage(value)
}

func unixToTime(unix int64) time.Time {
	return time.Unix(unix, 0).UTC()
}
