package journal

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
)

// maxSeqInSegment returns the highest sequence in a segment without
// reading payloads. It is used for resuming and truncation only.
func maxSeqInSegment(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var max uint64
	header := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(f, header); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return max, nil
			}
			return max, err
		}

		seq := binary.BigEndian.Uint64(header[1:9])
		payloadLen := binary.BigEndian.Uint32(header[17:21])

		// skip payload + crc; a torn record does not count
		if _, err := io.CopyN(io.Discard, f, int64(payloadLen)+4); err != nil {
			if errors.Is(err, io.EOF) {
				return max, nil
			}
			return max, err
		}
		if seq > max {
			max = seq
		}
	}
}
