package flightdata

import (
	"archive/zip"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Row is one CSV record keyed by the header of the file it came from.
type Row map[string]string

type stream struct {
	io.Reader
	closers []io.Closer
}

func (s *stream) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openStream opens the decompressed byte stream behind a data file. Zip
// archives contribute their first CSV entry.
func openStream(path string) (io.ReadCloser, error) {
	lower := strings.ToLower(path)

	switch {
	case strings.HasSuffix(lower, ".zip"):
		archive, err := zip.OpenReader(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		for _, entry := range archive.File {
			if strings.HasSuffix(strings.ToLower(entry.Name), ".csv") {
				rc, err := entry.Open()
				if err != nil {
					archive.Close()
					return nil, fmt.Errorf("opening %s in %s: %w", entry.Name, path, err)
				}
				return &stream{Reader: rc, closers: []io.Closer{rc, archive}}, nil
			}
		}
		archive.Close()
		return nil, fmt.Errorf("no CSV entry found in %s", path)

	case strings.HasSuffix(lower, ".gz"):
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		gz, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		return &stream{Reader: gz, closers: []io.Closer{gz, file}}, nil

	default:
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		return file, nil
	}
}

// RowReader iterates the records of one data file as header-keyed maps.
type RowReader struct {
	source io.ReadCloser
	csv    *csv.Reader
	header []string
}

// OpenRows opens a plain, gzipped or zipped CSV file and reads its header.
// The caller owns the returned reader and must Close it.
func OpenRows(path string) (*RowReader, error) {
	source, err := openStream(path)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(source)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}

	return &RowReader{source: source, csv: reader, header: header}, nil
}

// Header returns the column names of the file being read.
func (r *RowReader) Header() []string {
	return r.header
}

// Read returns the next record. Fields beyond the header are dropped and
// missing trailing fields stay absent from the map. The stream ends with
// io.EOF.
func (r *RowReader) Read() (Row, error) {
	record, err := r.csv.Read()
	if err != nil {
		return nil, err
	}

	row := make(Row, len(r.header))
	for i, name := range r.header {
		if i < len(record) {
			row[name] = record[i]
		}
	}

	return row, nil
}

func (r *RowReader) Close() error {
	return r.source.Close()
}
