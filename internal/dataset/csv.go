package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ReadCSV parses a table whose first row is a header, whose last column is
// the integer class and whose other columns are numeric features.
func ReadCSV(in io.Reader) (*MemorySource, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("csv is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read csv header")
	}
	if len(header) < 2 {
		return nil, errors.Errorf("csv needs at least one feature and a class column, got %d columns", len(header))
	}

	var (
		inputs  [][]float64
		targets []int
	)
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read csv row %d", row)
		}
		if blankRecord(record) {
			continue
		}
		if len(record) != len(header) {
			return nil, errors.Errorf("csv row %d has %d fields, header has %d", row, len(record), len(header))
		}
		x := make([]float64, len(record)-1)
		for j := range x {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[j]), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "csv row %d column %q", row, header[j])
			}
			x[j] = v
		}
		class, err := strconv.Atoi(strings.TrimSpace(record[len(record)-1]))
		if err != nil {
			return nil, errors.Wrapf(err, "csv row %d class", row)
		}
		inputs = append(inputs, x)
		targets = append(targets, class)
	}
	return NewMemorySource(inputs, targets)
}

// LoadCSV reads a CSV source from disk.
func LoadCSV(path string) (*MemorySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, err := ReadCSV(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return src, nil
}

// WriteCSV writes src in the layout ReadCSV expects.
func WriteCSV(out io.Writer, src Source) error {
	w := csv.NewWriter(out)
	header := make([]string, 0, src.Dim()+1)
	for j := 0; j < src.Dim(); j++ {
		header = append(header, "x"+strconv.Itoa(j))
	}
	header = append(header, "class")
	if err := w.Write(header); err != nil {
		return err
	}
	record := make([]string, src.Dim()+1)
	for i := 0; i < src.Len(); i++ {
		s, err := src.Sample(i)
		if err != nil {
			return err
		}
		for j, v := range s.Input {
			record[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		record[len(record)-1] = strconv.Itoa(s.Target)
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
