package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

var (
	ErrCRCMismatch = errors.New("journal: crc mismatch")
	ErrCorrupt     = errors.New("journal: corrupt record")
	ErrClosed      = errors.New("journal: closed")
)

const (
	// Frame: [type:1][seq:8][time:8][len:4][payload][crc:4]
	headerSize = 1 + 8 + 8 + 4
	maxPayload = 16 << 20

	defaultSegmentSize = 64 << 20
)

type Config struct {
	Dir         string
	SegmentSize int64
	// SegmentDuration also seals a segment once it is this old; zero
	// rotates on size only.
	SegmentDuration time.Duration
}

// Journal is an append-only log of CRC-framed records split across
// size-bounded segment files. Append is safe for concurrent use.
type Journal struct {
	mu           sync.Mutex
	dir          string
	segSize      int64
	segDuration  time.Duration
	current      *segment
	segIndex     int
	lastRotation time.Time
	seq          uint64
	closed       bool
}

// Open resumes the journal in cfg.Dir. Appends always go to a fresh
// segment, so a torn tail left by a crash is never written after.
func Open(cfg Config) (*Journal, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = defaultSegmentSize
	}

	files, err := segments(cfg.Dir)
	if err != nil {
		return nil, err
	}

	j := &Journal{dir: cfg.Dir, segSize: cfg.SegmentSize, segDuration: cfg.SegmentDuration}
	if n := len(files); n > 0 {
		last, err := segmentIndex(files[n-1])
		if err != nil {
			return nil, err
		}
		j.segIndex = last + 1
		for i := n - 1; i >= 0 && j.seq == 0; i-- {
			if j.seq, err = maxSeqInSegment(files[i]); err != nil {
				return nil, fmt.Errorf("journal: scanning %s: %w", files[i], err)
			}
		}
	}

	if j.current, err = openSegment(j.dir, j.segIndex); err != nil {
		return nil, err
	}
	j.lastRotation = time.Now()
	return j, nil
}

// Append writes one record and returns the sequence it was given.
func (j *Journal) Append(t RecordType, data []byte) (uint64, error) {
	if len(data) > maxPayload {
		return 0, fmt.Errorf("%w: payload of %d bytes", ErrCorrupt, len(data))
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, ErrClosed
	}

	now := time.Now()
	r := Record{Type: t, Seq: j.seq + 1, Time: now.UnixNano(), Data: data}
	if err := j.current.append(encodeFrame(r)); err != nil {
		return 0, err
	}
	j.seq = r.Seq

	if j.shouldRotate(now) {
		if err := j.rotate(); err != nil {
			return r.Seq, err
		}
	}
	return r.Seq, nil
}

func encodeFrame(r Record) []byte {
	payloadLen := uint32(len(r.Data))
	buf := make([]byte, headerSize+payloadLen+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[headerSize:], r.Data)

	crc := checksum(buf[:headerSize+payloadLen])
	binary.BigEndian.PutUint32(buf[headerSize+payloadLen:], crc)
	return buf
}

func (j *Journal) shouldRotate(now time.Time) bool {
	return j.current.offset >= j.segSize ||
		(j.segDuration > 0 && now.Sub(j.lastRotation) >= j.segDuration)
}

// rotate keeps writing to the current segment when the next one
// cannot be opened; the next Append tries again.
func (j *Journal) rotate() error {
	seg, err := openSegment(j.dir, j.segIndex+1)
	if err != nil {
		return fmt.Errorf("journal: opening segment %d: %w", j.segIndex+1, err)
	}
	old := j.current
	j.current = seg
	j.segIndex++
	j.lastRotation = time.Now()
	if err := old.close(); err != nil {
		return fmt.Errorf("journal: sealing segment %d: %w", j.segIndex-1, err)
	}
	return nil
}

// LastSeq is the sequence of the last appended record.
func (j *Journal) LastSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	return j.current.file.Sync()
}

// Replay reads every record of the journal in order.
func (j *Journal) Replay(fn func(*Record) error) (uint64, error) {
	return Replay(j.dir, fn)
}

// TruncateBefore deletes sealed segments holding nothing newer than
// seq. The segment being written is kept. It returns how many segment
// files were removed.
func (j *Journal) TruncateBefore(seq uint64) (int, error) {
	j.mu.Lock()
	current := j.segIndex
	j.mu.Unlock()

	files, err := segments(j.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range files {
		index, err := segmentIndex(path)
		if err != nil || index >= current {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			if err := os.Remove(path); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if err := j.current.file.Sync(); err != nil {
		_ = j.current.close()
		return err
	}
	return j.current.close()
}
