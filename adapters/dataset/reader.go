package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"clusterpval/internal"
	"clusterpval/internal/errors"

	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/mat"
)

// Format is the on-disk layout of a numeric table.
type Format string

const (
	FormatText Format = "text" // whitespace-delimited, one header line
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Table is a parsed numeric dataset: rows are observations.
type Table struct {
	Header []string
	Data   *mat.Dense
}

// DataReader handles reading text, CSV and Excel files
type DataReader struct {
	filePath string
	format   Format
	logger   *internal.Logger
}

// NewDataReader picks the format from the file extension; anything that is
// not .csv or .xlsx is read as whitespace-delimited text.
func NewDataReader(filePath string) *DataReader {
	format := FormatText
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		format = FormatCSV
	case ".xlsx":
		format = FormatXLSX
	}
	return &DataReader{filePath: filePath, format: format, logger: internal.DefaultLogger}
}

// Format returns the detected file format.
func (r *DataReader) Format() Format { return r.format }

// ReadData reads the file into a numeric table.
func (r *DataReader) ReadData() (*Table, error) {
	r.logger.Debug("[DataReader] reading %s file: %s", r.format, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.NotFound(fmt.Sprintf("%s file %s", r.format, r.filePath))
	}

	switch r.format {
	case FormatXLSX:
		return r.readExcelData()
	case FormatCSV:
		f, err := os.Open(r.filePath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %s", r.filePath)
		}
		defer f.Close()
		return ParseCSV(f)
	default:
		f, err := os.Open(r.filePath)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %s", r.filePath)
		}
		defer f.Close()
		return ParseText(f)
	}
}

// ParseText reads whitespace-delimited numeric rows. The first non-blank line
// is a header and is kept only as column names.
func ParseText(in io.Reader) (*Table, error) {
	scanner := bufio.NewScanner(in)
	var header []string
	var records [][]string
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if header == nil {
			header = fields
			continue
		}
		records = append(records, fields)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read text data")
	}
	return buildTable(header, records)
}

// ParseCSV reads comma-separated numeric rows with a header line.
func ParseCSV(in io.Reader) (*Table, error) {
	reader := csv.NewReader(in)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(errors.InvalidInput(err.Error()), "failed to parse CSV")
	}
	if len(rows) == 0 {
		return nil, errors.InvalidInput("CSV file is empty")
	}
	return buildTable(rows[0], rows[1:])
}

// readExcelData reads the first sheet; the first row is the header.
func (r *DataReader) readExcelData() (*Table, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.InvalidInput("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sheet %s", sheets[0])
	}
	if len(rows) == 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("sheet %s is empty", sheets[0]))
	}
	return buildTable(rows[0], rows[1:])
}

func buildTable(header []string, records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, errors.InvalidInput("no data rows")
	}
	q := len(records[0])
	if q == 0 {
		return nil, errors.InvalidInput("data rows have no columns")
	}

	values := make([]float64, 0, len(records)*q)
	for i, rec := range records {
		if len(rec) != q {
			return nil, errors.InvalidInput(fmt.Sprintf("data row %d has %d fields, expected %d", i+1, len(rec), q))
		}
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, errors.InvalidInput(fmt.Sprintf("data row %d, column %d: %q is not a number", i+1, j+1, field))
			}
			values = append(values, v)
		}
	}

	if len(header) != q {
		header = nil
	}
	return &Table{Header: header, Data: mat.NewDense(len(records), q, values)}, nil
}

// ReadLabels reads one integer cluster label per non-blank line.
func ReadLabels(in io.Reader) ([]int, error) {
	scanner := bufio.NewScanner(in)
	var labels []int
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		l, err := strconv.Atoi(text)
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("line %d: %q is not an integer label", lineNo, text))
		}
		labels = append(labels, l)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read labels")
	}
	return labels, nil
}
