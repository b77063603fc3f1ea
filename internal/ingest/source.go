// Package ingest turns billing export files into fact rows.
package ingest

import (
	"encoding/csv"
	"errors"
	"io"
)

var ErrEmptyFile = errors.New("empty_file")

// RowSource yields one file's header row followed by its records. Both the
// synchronous upload path and the bucket poll path feed the same ingestion
// run through this seam.
type RowSource interface {
	// Headers returns the header row. It must be called before Next.
	Headers() ([]string, error)
	// Next returns the next record, or io.EOF when the file is exhausted.
	Next() ([]string, error)
}

type readerSource struct {
	reader  *csv.Reader
	headers []string
}

// NewReaderSource wraps a CSV stream. Records with a deviating field count
// are tolerated and handled downstream.
func NewReaderSource(r io.Reader) RowSource {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false
	return &readerSource{reader: reader}
}

func (s *readerSource) Headers() ([]string, error) {
	if s.headers != nil {
		return s.headers, nil
	}
	record, err := s.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, err
	}
	s.headers = record
	return s.headers, nil
}

func (s *readerSource) Next() ([]string, error) {
	return s.reader.Read()
}
