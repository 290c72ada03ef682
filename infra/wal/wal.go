// Package wal persists every accepted command before it is applied, so
// a restart can rebuild the full exchange state by replay. Frames are
// CRC-checked and sequence numbers must increase strictly; segments
// rotate by size and are reclaimed once a snapshot covers them.
package wal

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

const frameHeaderSize = 1 + 8 + 8 + 4

// maxPayloadSize bounds a single frame's payload. The length field is
// read from disk before the CRC can vouch for it, so the reader must
// refuse implausible values rather than allocate them.
const maxPayloadSize = 16 << 20

type Config struct {
	Dir         string
	SegmentSize int64
}

const DefaultSegmentSize = 64 << 20

type Log struct {
	dir        string
	segSize    int64
	current    *segment
	segIndex   int
	lastRotate time.Time
}

// Open creates the directory if needed and appends to the highest
// existing segment, so a restart never writes behind already-replayed
// frames.
func Open(cfg Config) (*Log, error) {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = DefaultSegmentSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	index := 0
	if paths, err := listSegments(cfg.Dir); err != nil {
		return nil, err
	} else if len(paths) > 0 {
		index = segmentIndex(paths[len(paths)-1])
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}

	return &Log{
		dir:        cfg.Dir,
		segSize:    cfg.SegmentSize,
		current:    seg,
		segIndex:   index,
		lastRotate: time.Now(),
	}, nil
}

// Append frames and writes one record:
// [op:1][seq:8][time:8][len:4][payload][crc:4], crc over everything
// before it.
func (l *Log) Append(r *Record) error {
	if len(r.Data) > maxPayloadSize {
		return fmt.Errorf("wal: payload %d bytes exceeds %d limit", len(r.Data), maxPayloadSize)
	}
	payloadLen := uint32(len(r.Data))

	buf := make([]byte, frameHeaderSize+payloadLen+4)
	buf[0] = byte(r.Op)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[frameHeaderSize:], r.Data)

	crc := CRC32(buf[:frameHeaderSize+payloadLen])
	binary.BigEndian.PutUint32(buf[frameHeaderSize+payloadLen:], crc)

	if err := l.current.append(buf); err != nil {
		return err
	}

	if l.current.offset >= l.segSize {
		return l.rotate()
	}
	return nil
}

// Sync flushes the current segment to stable storage.
func (l *Log) Sync() error { return l.current.sync() }

func (l *Log) Close() error { return l.current.close() }

func (l *Log) rotate() error {
	if err := l.current.sync(); err != nil {
		return err
	}
	_ = l.current.close()
	l.segIndex++

	seg, err := openSegment(l.dir, l.segIndex)
	if err != nil {
		return err
	}
	l.current = seg
	l.lastRotate = time.Now()
	return nil
}

// TruncateBefore removes whole segments whose every record is covered
// by seq. The active segment is never removed.
func (l *Log) TruncateBefore(seq uint64) error {
	paths, err := listSegments(l.dir)
	if err != nil {
		return err
	}

	active := segmentPath(l.dir, l.segIndex)
	for _, path := range paths {
		if path == active {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			_ = os.Remove(path)
		}
	}
	return nil
}
