package rows

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// LoadFile reads a header-delimited CSV export and returns one
// normalized row per record.
func LoadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load parses CSV from r. The first record is the header; every field
// arrives as a string and is coerced by Normalize.
func Load(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read export header: %w", err)
	}

	var out []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read export row %d: %w", len(out)+1, err)
		}

		row := make(Row, len(header))
		for i, name := range header {
			if i >= len(record) {
				break
			}
			row[name] = String(record[i])
		}
		out = append(out, Normalize(row))
	}

	return out, nil
}
