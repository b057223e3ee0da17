package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/itohio/stepresp/pkg/sample"
)

// Stdout is the CSV path that selects standard output.
const Stdout = "-"

// CSV writes datasets as a header row followed by one row per point.
type CSV struct {
	w      io.Writer
	closer io.Closer
}

// NewCSV creates a CSV sink writing to w. Close does not close w.
func NewCSV(w io.Writer) *CSV {
	return &CSV{w: w}
}

// OpenCSV creates a CSV sink writing to the file at path, or to stdout when
// path is Stdout.
func OpenCSV(path string) (*CSV, error) {
	if path == Stdout {
		return NewCSV(os.Stdout), nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create csv file: %w", err)
	}
	return &CSV{w: f, closer: f}, nil
}

// Show implements Sink.
func (c *CSV) Show(ds *sample.Dataset, xlabel, ylabel string) error {
	w := csv.NewWriter(c.w)

	if err := w.Write([]string{xlabel, ylabel}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, 2)
	for i := 0; i < ds.Len(); i++ {
		row[0] = strconv.FormatFloat(ds.Xs[i], 'f', -1, 64)
		row[1] = strconv.FormatFloat(ds.Ys[i], 'f', -1, 64)
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	w.Flush()
	return w.Error()
}

// Close closes the underlying file, if the sink opened one.
func (c *CSV) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
