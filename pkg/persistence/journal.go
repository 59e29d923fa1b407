package persistence

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Journal is an append-only file of framed records. It holds the changes
// made since the last snapshot.
type Journal struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	fw      *FrameWriter
	path    string
	records int
}

// OpenJournal opens or creates the journal at path. New records are
// compressed with codec.
func OpenJournal(path string, codec Codec) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	buf := bufio.NewWriter(file)
	return &Journal{
		file: file,
		buf:  buf,
		fw:   NewFrameWriter(buf, codec),
		path: path,
	}, nil
}

// Append writes one record. It is buffered until Flush, Sync or Close.
func (j *Journal) Append(payload []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.fw.WriteFrame(KindRecord, payload); err != nil {
		return err
	}
	j.records++
	return nil
}

// AppendValue gob-encodes v and appends it.
func AppendValue[T any](j *Journal, v T) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return fmt.Errorf("failed to encode journal record: %w", err)
	}
	return j.Append(buf.Bytes())
}

// Records returns the number of records appended since open or the last truncate.
func (j *Journal) Records() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.records
}

// Flush pushes buffered records to the OS.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.buf.Flush()
}

// Sync flushes and fsyncs the journal.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.buf.Flush(); err != nil {
		return err
	}
	return j.file.Sync()
}

// Truncate drops every record. Called once a snapshot covers them.
func (j *Journal) Truncate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.buf.Reset(j.file)
	if err := j.file.Truncate(0); err != nil {
		return err
	}
	j.records = 0
	_, err := j.file.Seek(0, io.SeekStart)
	return err
}

// Close flushes and closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.buf.Flush(); err != nil {
		_ = j.file.Close()
		return err
	}
	return j.file.Close()
}

// Path returns the file path.
func (j *Journal) Path() string {
	return j.path
}

// ReplayResult summarizes a journal replay.
type ReplayResult struct {
	Records int
	// Torn is set when the file ends with a partially written record, which
	// happens when the process dies mid-write. The partial record is ignored.
	Torn bool
}

// ReplayJournal calls fn for every record in the journal at path.
// A missing file replays nothing.
func ReplayJournal(path string, fn func(payload []byte) error) (ReplayResult, error) {
	var res ReplayResult

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("failed to open journal file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		frame, err := ReadFrame(r)
		if err == io.EOF {
			return res, nil
		}
		if errors.Is(err, ErrIncompleteFrame) {
			res.Torn = true
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("journal record %d: %w", res.Records, err)
		}
		if frame.Kind != KindRecord {
			return res, fmt.Errorf("journal record %d: unexpected frame kind %d", res.Records, frame.Kind)
		}
		if err := fn(frame.Payload); err != nil {
			return res, err
		}
		res.Records++
	}
}

// ReplayValues decodes every journal record as a T.
func ReplayValues[T any](path string, fn func(v T) error) (ReplayResult, error) {
	return ReplayJournal(path, func(payload []byte) error {
		var v T
		if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&v); err != nil {
			return fmt.Errorf("failed to decode journal record: %w", err)
		}
		return fn(v)
	})
}
