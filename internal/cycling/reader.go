// Package cycling parses and analyzes the measurement stream a tomato
// pipeline appends to its snapshot file while an experiment runs.
//
// The file is single-writer (the instrument), multi-reader: any number
// of Readers may follow it independently, and none of them ever writes.
package cycling

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aurora-lab/tomato-bridge/internal/model"
)

// fieldCount is the column count of a snapshot row:
// uts, Ewe, I, Q, cycle, step.
const fieldCount = 6

// MalformedRecordError reports a snapshot line that failed structural
// validation, with the byte offset of the offending line.
type MalformedRecordError struct {
	Offset int64
	Line   string
	Cause  error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record at offset %d: %q: %v", e.Offset, e.Line, e.Cause)
}

func (e *MalformedRecordError) Unwrap() error { return model.ErrMalformedRecord }

// Reader incrementally parses a snapshot file. Each Records call resumes
// from the last successfully consumed byte offset, so a Reader can follow
// a file that is still being appended to. An incomplete trailing line is
// held back and retried on the next call instead of being reported as
// malformed.
type Reader struct {
	path   string
	offset int64
}

func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// NewReaderAt resumes from a previously recorded offset, e.g. after the
// caller restarted.
func NewReaderAt(path string, offset int64) *Reader {
	return &Reader{path: path, offset: offset}
}

// Offset returns the byte position the next Records call resumes from.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Records yields every complete record appended since the previous call.
// Malformed lines are yielded as a zero record with a MalformedRecordError
// wrapping model.ErrMalformedRecord; the consumer decides whether to skip
// or abort. A file that does not exist yet yields nothing: the instrument
// simply has not produced it.
func (r *Reader) Records() iter.Seq2[model.MeasurementRecord, error] {
	return func(yield func(model.MeasurementRecord, error) bool) {
		f, err := os.Open(r.path)
		if err != nil {
			if os.IsNotExist(err) {
				slog.Debug("snapshot not yet produced", "path", r.path)
				return
			}
			yield(model.MeasurementRecord{}, err)
			return
		}
		defer func() {
			_ = f.Close()
		}()

		if _, err := f.Seek(r.offset, io.SeekStart); err != nil {
			yield(model.MeasurementRecord{}, err)
			return
		}
		buf, err := io.ReadAll(f)
		if err != nil {
			yield(model.MeasurementRecord{}, err)
			return
		}

		for len(buf) > 0 {
			nl := bytes.IndexByte(buf, '\n')
			if nl < 0 {
				// partially written final line, retry next call
				return
			}
			line := string(buf[:nl])
			lineOffset := r.offset
			buf = buf[nl+1:]
			r.offset += int64(nl + 1)

			if lineOffset == 0 {
				// header line
				continue
			}
			if strings.TrimSpace(line) == "" {
				continue
			}

			rec, err := parseRecord(line)
			if err != nil {
				err = &MalformedRecordError{Offset: lineOffset, Line: line, Cause: err}
			}
			if !yield(rec, err) {
				return
			}
		}
	}
}

func parseRecord(line string) (model.MeasurementRecord, error) {
	fields := strings.Fields(line)
	if len(fields) != fieldCount {
		return model.MeasurementRecord{}, fmt.Errorf("expected %d columns, got %d", fieldCount, len(fields))
	}

	var rec model.MeasurementRecord
	var err error
	if rec.Uts, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return model.MeasurementRecord{}, fmt.Errorf("uts: %v", err)
	}
	if rec.Ewe, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return model.MeasurementRecord{}, fmt.Errorf("Ewe: %v", err)
	}
	if rec.I, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return model.MeasurementRecord{}, fmt.Errorf("I: %v", err)
	}
	if rec.Q, err = strconv.ParseFloat(fields[3], 64); err != nil {
		return model.MeasurementRecord{}, fmt.Errorf("Q: %v", err)
	}
	if rec.Cycle, err = strconv.Atoi(fields[4]); err != nil {
		return model.MeasurementRecord{}, fmt.Errorf("cycle: %v", err)
	}
	if rec.Step, err = strconv.Atoi(fields[5]); err != nil {
		return model.MeasurementRecord{}, fmt.Errorf("step: %v", err)
	}
	return rec, nil
}

// ReadAll parses a complete snapshot in one pass. Unlike the incremental
// path, any malformed record aborts: a finished file is expected to be
// fully well-formed.
func ReadAll(path string) ([]model.MeasurementRecord, error) {
	var records []model.MeasurementRecord
	for rec, err := range NewReader(path).Records() {
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
