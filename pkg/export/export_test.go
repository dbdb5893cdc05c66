package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auditDataset(rows int) Dataset {
	data := Dataset{
		Title: "Constraint Audit tt-1",
		Columns: []Column{
			{Key: "class", Label: "Class Group"},
			{Key: "subject", Label: "Subject", Weight: 2},
			{Key: "teacher", Label: "Teacher"},
			{Key: "duration", Label: "Duration"},
			{Key: "availability", Label: "Availability (%)"},
			{Key: "availability_status", Label: "Availability Status"},
			{Key: "saturation", Label: "Saturation (%)"},
			{Key: "saturation_status"},
		},
	}
	for i := 0; i < rows; i++ {
		data.Rows = append(data.Rows, Row{
			"class":               "10A",
			"subject":             "Mathematics, advanced track with an unusually long label",
			"teacher":             "t1",
			"availability":        "33.3",
			"availability_status": "error",
		})
	}
	return data
}

func TestDatasetLabelsFallBackToKey(t *testing.T) {
	data := auditDataset(0)
	labels := data.Labels()
	assert.Equal(t, "Class Group", labels[0])
	assert.Equal(t, "saturation_status", labels[len(labels)-1])
	assert.Equal(t, []string{"10A", "x", "", "", "", "", "", ""}, data.Record(Row{"class": "10A", "subject": "x", "unknown": "y"}))
}

func TestCSVExporterKeepsColumnOrder(t *testing.T) {
	out, err := NewCSVExporter().Render(auditDataset(2))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Class Group,Subject,Teacher,Duration,Availability (%),Availability Status,Saturation (%),saturation_status", lines[0])
	assert.Equal(t, `10A,"Mathematics, advanced track with an unusually long label",t1,,33.3,error,,`, lines[1])
}

func TestCSVExporterSeparator(t *testing.T) {
	exporter := &CSVExporter{Comma: ';'}
	out, err := exporter.Render(Dataset{Columns: []Column{{Key: "a"}, {Key: "b"}}, Rows: []Row{{"a": "1", "b": "2"}}})
	require.NoError(t, err)
	assert.Equal(t, "a;b\n1;2\n", string(out))
}

func TestExportersRequireColumns(t *testing.T) {
	exporters := []Exporter{NewCSVExporter(), NewPDFExporter()}
	for _, exporter := range exporters {
		_, err := exporter.Render(Dataset{Title: "empty"})
		assert.ErrorIs(t, err, ErrNoColumns, exporter.Extension())
	}
}

func TestPDFExporterPaginatesWideTables(t *testing.T) {
	out, err := NewPDFExporter().Render(auditDataset(80))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}
