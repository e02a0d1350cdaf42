package main

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/graphstore"
)

// csvSource streams the rows of a CSV file. Columns are matched to props by
// position; the null marker becomes NULL.
func csvSource(path string, props []graphstore.Property, header bool, delim rune, null string) graphstore.RowSource {
	return func(yield func([]graphstore.Value, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(nil, err)
			return
		}
		defer f.Close()

		r := csv.NewReader(f)
		r.Comma = delim
		r.FieldsPerRecord = len(props)
		r.ReuseRecord = true
		if header {
			if _, err := r.Read(); err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, fmt.Errorf("%s: header: %w", path, err))
				}
				return
			}
		}
		for {
			rec, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("%s: %w", path, err))
				return
			}
			row, err := parseRecord(rec, props, null)
			if err != nil {
				line, _ := r.FieldPos(0)
				yield(nil, fmt.Errorf("%s:%d: %w", path, line, err))
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

func parseRecord(rec []string, props []graphstore.Property, null string) ([]graphstore.Value, error) {
	row := make([]graphstore.Value, len(props))
	for i, p := range props {
		if rec[i] == null && (null != "" || p.Type != graphstore.String) {
			row[i] = graphstore.Null(p.Type)
			continue
		}
		v, err := graphstore.ParseValue(rec[i], p.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", p.Name, err)
		}
		row[i] = v
	}
	return row, nil
}

// countRows estimates the rows of a CSV file from its line count. Quoted
// fields with line breaks make it an overestimate.
func countRows(path string, header bool) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var n uint64
	buf := make([]byte, 64<<10)
	for {
		k, err := f.Read(buf)
		n += uint64(bytes.Count(buf[:k], []byte{'\n'}))
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
	}
	if header && n > 0 {
		n--
	}
	return n, nil
}
