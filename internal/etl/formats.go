package etl

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/segmentio/parquet-go"
)

// RecordReader yields records until io.EOF.
type RecordReader interface {
	Read() (Record, error)
	Close() error
}

// RecordWriter writes records. Close flushes buffered output.
type RecordWriter interface {
	Write(Record) error
	Close() error
}

// OpenReader opens path for reading in the given format.
func OpenReader(path string, format FileFormat) (RecordReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	var r RecordReader
	switch format {
	case FormatCSV:
		r, err = newCSVReader(file)
	case FormatJSON:
		r = &jsonReader{file: file, dec: json.NewDecoder(bufio.NewReader(file))}
	case FormatParquet:
		r = &parquetReader{file: file, reader: parquet.NewReader(file)}
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return r, nil
}

// CreateWriter creates path for writing in the given format.
func CreateWriter(path string, format FileFormat) (RecordWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	switch format {
	case FormatCSV:
		w := csv.NewWriter(file)
		if err := w.Write([]string{"id", "text"}); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to write CSV header: %w", err)
		}
		return &csvWriter{file: file, writer: w}, nil
	case FormatJSON:
		buf := bufio.NewWriter(file)
		return &jsonWriter{file: file, buf: buf, enc: json.NewEncoder(buf)}, nil
	case FormatParquet:
		return &parquetWriter{file: file, writer: parquet.NewWriter(file, parquet.SchemaOf(new(Record)))}, nil
	default:
		_ = file.Close()
		return nil, fmt.Errorf("unsupported file format: %s", format)
	}
}

type csvReader struct {
	file    *os.File
	reader  *csv.Reader
	textCol int
	idCol   int
}

func newCSVReader(file *os.File) (*csvReader, error) {
	reader := csv.NewReader(bufio.NewReader(file))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	r := &csvReader{file: file, reader: reader, textCol: -1, idCol: -1}
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "text":
			r.textCol = i
		case "id":
			r.idCol = i
		}
	}
	if r.textCol < 0 {
		return nil, fmt.Errorf("CSV header has no text column: %v", header)
	}
	return r, nil
}

func (r *csvReader) Read() (Record, error) {
	row, err := r.reader.Read()
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if r.textCol < len(row) {
		rec.Text = row[r.textCol]
	}
	if r.idCol >= 0 && r.idCol < len(row) {
		rec.ID = row[r.idCol]
	}
	return rec, nil
}

func (r *csvReader) Close() error { return r.file.Close() }

type csvWriter struct {
	file   *os.File
	writer *csv.Writer
}

func (w *csvWriter) Write(rec Record) error {
	return w.writer.Write([]string{rec.ID, rec.Text})
}

func (w *csvWriter) Close() error {
	w.writer.Flush()
	return errors.Join(w.writer.Error(), w.file.Close())
}

type jsonReader struct {
	file *os.File
	dec  *json.Decoder
}

func (r *jsonReader) Read() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *jsonReader) Close() error { return r.file.Close() }

type jsonWriter struct {
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

func (w *jsonWriter) Write(rec Record) error { return w.enc.Encode(rec) }

func (w *jsonWriter) Close() error {
	return errors.Join(w.buf.Flush(), w.file.Close())
}

type parquetReader struct {
	file   *os.File
	reader *parquet.Reader
}

func (r *parquetReader) Read() (Record, error) {
	var rec Record
	if err := r.reader.Read(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *parquetReader) Close() error {
	return errors.Join(r.reader.Close(), r.file.Close())
}

type parquetWriter struct {
	file   *os.File
	writer *parquet.Writer
}

func (w *parquetWriter) Write(rec Record) error { return w.writer.Write(&rec) }

func (w *parquetWriter) Close() error {
	return errors.Join(w.writer.Close(), w.file.Close())
}
