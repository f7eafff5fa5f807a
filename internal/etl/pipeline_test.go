package etl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raaihank/llm-veil/internal/config"
	"github.com/raaihank/llm-veil/internal/logger"
	"github.com/raaihank/llm-veil/internal/privacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	pc := config.GetDefaults().Privacy
	pc.MatchTimeout = 2 * time.Second
	a, err := privacy.New(pc, logger.NewNop(), nil)
	require.NoError(t, err)
	return NewPipeline(a, cfg, logger.NewNop())
}

type sliceReader struct {
	records []Record
	err     error
}

func (r *sliceReader) Read() (Record, error) {
	if len(r.records) == 0 {
		if r.err != nil {
			return Record{}, r.err
		}
		return Record{}, io.EOF
	}
	rec := r.records[0]
	r.records = r.records[1:]
	return rec, nil
}

func (r *sliceReader) Close() error { return nil }

type sliceWriter struct{ records []Record }

func (w *sliceWriter) Write(rec Record) error {
	w.records = append(w.records, rec)
	return nil
}

func (w *sliceWriter) Close() error { return nil }

func TestDetectFileFormat(t *testing.T) {
	tests := map[string]FileFormat{
		"data.csv":          FormatCSV,
		"DATA.PARQUET":      FormatParquet,
		"events.json":       FormatJSON,
		"events.jsonl":      FormatJSON,
		"events.ndjson":     FormatJSON,
		"no-extension":      FormatCSV,
		"dir.parquet/x.csv": FormatCSV,
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, DetectFileFormat(name))
		})
	}
}

func TestProcess_PreservesOrderAcrossWorkers(t *testing.T) {
	p := newPipeline(t, Config{BatchSize: 3, WorkerCount: 4})

	var in []Record
	for i := 0; i < 10; i++ {
		in = append(in, Record{ID: string(rune('a' + i)), Text: "mail john.doe@example.com"})
	}
	in[4].Text = "nothing to hide"

	w := &sliceWriter{}
	result, err := p.Process(context.Background(), &sliceReader{records: in}, w)
	require.NoError(t, err)

	require.Len(t, w.records, 10)
	for i, rec := range w.records {
		assert.Equal(t, string(rune('a'+i)), rec.ID)
	}
	assert.Equal(t, "mail [EMAIL_1]", w.records[0].Text)
	assert.Equal(t, "nothing to hide", w.records[4].Text)

	assert.EqualValues(t, 10, result.TotalRecords)
	assert.EqualValues(t, 9, result.AnonymizedRecords)
	assert.EqualValues(t, 9, result.Entities)
	assert.Equal(t, map[string]int64{"EMAIL": 9}, result.EntitiesByType)
}

func TestProcess_ReadError(t *testing.T) {
	p := newPipeline(t, Config{BatchSize: 2})
	r := &sliceReader{records: []Record{{Text: "a"}, {Text: "b"}, {Text: "c"}}, err: errors.New("bad row")}

	w := &sliceWriter{}
	result, err := p.Process(context.Background(), r, w)
	require.ErrorContains(t, err, "failed to read record 4")
	assert.EqualValues(t, 2, result.TotalRecords)
}

func TestProcess_Cancelled(t *testing.T) {
	p := newPipeline(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, &sliceReader{records: []Record{{Text: "x"}}}, &sliceWriter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessFile_CSVToJSON(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.csv")
	output := filepath.Join(dir, "out.jsonl")
	require.NoError(t, os.WriteFile(input, []byte("label,text,id\n"+
		"x,\"Contact john.doe@example.com, please\",1\n"+
		"y,plain,2\n"), 0o600))

	result, err := newPipeline(t, Config{}).ProcessFile(context.Background(), input, output)
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.TotalRecords)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()

	var got []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		got = append(got, rec)
	}
	assert.Equal(t, []Record{
		{ID: "1", Text: "Contact [EMAIL_1], please"},
		{ID: "2", Text: "plain"},
	}, got)
}

func TestProcessFile_JSONToCSV(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.json")
	output := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(input, []byte(
		`{"id":"7","text":"jane@example.org wrote to john.doe@example.com"}`+"\n"), 0o600))

	_, err := newPipeline(t, Config{}).ProcessFile(context.Background(), input, output)
	require.NoError(t, err)

	out, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "id,text\n7,[EMAIL_2] wrote to [EMAIL_1]\n", string(out))
}

func TestProcessFile_Parquet(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.parquet")
	output := filepath.Join(dir, "out.parquet")

	w, err := CreateWriter(input, FormatParquet)
	require.NoError(t, err)
	require.NoError(t, w.Write(Record{ID: "1", Text: "Contact john.doe@example.com"}))
	require.NoError(t, w.Write(Record{ID: "2", Text: "nothing"}))
	require.NoError(t, w.Close())

	result, err := newPipeline(t, Config{}).ProcessFile(context.Background(), input, output)
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.TotalRecords)
	assert.EqualValues(t, 1, result.AnonymizedRecords)

	r, err := OpenReader(output, FormatParquet)
	require.NoError(t, err)
	defer r.Close()

	first, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, Record{ID: "1", Text: "Contact [EMAIL_1]"}, first)
	second, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "nothing", second.Text)
	_, err = r.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenReader_CSVWithoutTextColumn(t *testing.T) {
	input := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(input, []byte("id,body\n1,x\n"), 0o600))

	_, err := OpenReader(input, FormatCSV)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no text column"))
}
