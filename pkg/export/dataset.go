package export

import "errors"

// ErrNoColumns is returned when a dataset declares no columns.
var ErrNoColumns = errors.New("export: dataset has no columns")

// Column is one exported field. Weight scales the PDF column width; zero counts as 1.
type Column struct {
	Key    string
	Label  string
	Weight float64
}

// Row maps column keys to cell text. Missing keys render as empty cells.
type Row map[string]string

// Dataset is a titled table handed to an Exporter.
type Dataset struct {
	Title   string
	Columns []Column
	Rows    []Row
}

// Exporter renders a dataset into file bytes.
type Exporter interface {
	Render(data Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// Labels returns the column labels in order, falling back to the key.
func (d Dataset) Labels() []string {
	labels := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		labels[i] = col.Label
		if labels[i] == "" {
			labels[i] = col.Key
		}
	}
	return labels
}

// Record projects row onto the column order.
func (d Dataset) Record(row Row) []string {
	record := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		record[i] = row[col.Key]
	}
	return record
}

func (d Dataset) weights() (weights []float64, total float64) {
	weights = make([]float64, len(d.Columns))
	for i, col := range d.Columns {
		w := col.Weight
		if w <= 0 {
			w = 1
		}
		weights[i] = w
		total += w
	}
	return weights, total
}
