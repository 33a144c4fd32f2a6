package sources

import (
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/corey-cole/riot/builder"
	"github.com/corey-cole/riot/config"
	"github.com/corey-cole/riot/models"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// drain reads a source to the end, collecting records and parse errors
func drain(t *testing.T, src models.Source) ([]*models.Record, []*models.ParseError) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, src.Open(ctx))
	defer src.Close()

	var records []*models.Record
	var parseErrs []*models.ParseError
	for {
		record, err := src.Next(ctx)
		if errors.Is(err, models.ErrEndOfStream) {
			return records, parseErrs
		}
		var parseErr *models.ParseError
		if errors.As(err, &parseErr) {
			parseErrs = append(parseErrs, parseErr)
			continue
		}
		require.NoError(t, err)
		records = append(records, record)
	}
}

func TestFileSource_CSVWithHeader(t *testing.T) {
	path := writeFile(t, "people.csv", "id,name,city\n1,Ada,London\n2,\"Hopper, Grace\",Arlington\n")
	src, err := NewFileSource(FileOptions{Path: path})
	require.NoError(t, err)

	records, parseErrs := drain(t, src)
	require.Empty(t, parseErrs)
	require.Len(t, records, 2)
	require.Equal(t, []string{"id", "name", "city"}, records[0].Keys())
	require.Equal(t, "Hopper, Grace", records[1].GetString("name"))
	require.Equal(t, int64(-1), src.Capabilities().EstimatedSize)
	require.False(t, src.Capabilities().Live)
}

func TestFileSource_DelimiterFromExtension(t *testing.T) {
	tsv := writeFile(t, "data.tsv", "a\tb\n1\t2\n")
	src, err := NewFileSource(FileOptions{Path: tsv})
	require.NoError(t, err)
	records, _ := drain(t, src)
	require.Len(t, records, 1)
	require.Equal(t, "2", records[0].GetString("b"))

	psv := writeFile(t, "data.psv", "a|b\n3|4")
	src, err = NewFileSource(FileOptions{Path: psv})
	require.NoError(t, err)
	records, _ = drain(t, src)
	require.Len(t, records, 1)
	require.Equal(t, "4", records[0].GetString("b"))
}

func TestFileSource_MalformedLineIsParseError(t *testing.T) {
	path := writeFile(t, "bad.csv", "id,name\n1,Ada\n2,Grace,extra\n3,Linus\n")
	src, err := NewFileSource(FileOptions{Path: path})
	require.NoError(t, err)

	records, parseErrs := drain(t, src)
	require.Len(t, records, 2)
	require.Len(t, parseErrs, 1)
	require.Equal(t, int64(3), parseErrs[0].Line)
	require.Equal(t, "2,Grace,extra", parseErrs[0].Input)
	require.Equal(t, models.FailureParse, models.Classify(parseErrs[0]))
}

func TestFileSource_ExplicitFieldsAndSkipLines(t *testing.T) {
	path := writeFile(t, "export.csv", "# exported\nID,NAME\n1,Ada\n")
	noHeader := false
	src, err := NewFileSource(FileOptions{Path: path, Fields: []string{"id", "name"}, SkipLines: 2, Header: &noHeader})
	require.NoError(t, err)
	records, _ := drain(t, src)
	require.Len(t, records, 1)
	require.Equal(t, "Ada", records[0].GetString("name"))

	src, err = NewFileSource(FileOptions{Path: path, Fields: []string{"id", "name"}, SkipLines: 1})
	require.NoError(t, err)
	records, _ = drain(t, src)
	require.Len(t, records, 1, "header line is replaced by the explicit names")
	require.Equal(t, "1", records[0].GetString("id"))
}

func TestFileSource_NoHeader(t *testing.T) {
	path := writeFile(t, "raw.csv", "1,Ada\n")
	noHeader := false
	src, err := NewFileSource(FileOptions{Path: path, Header: &noHeader})
	require.NoError(t, err)
	records, _ := drain(t, src)
	require.Len(t, records, 1)
	require.Equal(t, []string{"field1", "field2"}, records[0].Keys())
}

func TestFileSource_FixedWidth(t *testing.T) {
	path := writeFile(t, "accounts.fw", "0001Ada       London\n0002Grace     NYC\n")
	src, err := NewFileSource(FileOptions{
		Path:   path,
		Fields: []string{"id", "name", "city"},
		Ranges: []string{"1-4", "5-14", "15-24"},
	})
	require.NoError(t, err)

	records, _ := drain(t, src)
	require.Len(t, records, 2)
	require.Equal(t, "0001", records[0].GetString("id"))
	require.Equal(t, "Ada", records[0].GetString("name"))
	require.Equal(t, "NYC", records[1].GetString("city"))
}

func TestFileSource_JSONLines(t *testing.T) {
	path := writeFile(t, "events.jsonl", "{\"id\":1,\"tags\":[\"a\"]}\n\nnot json\n{\"id\":2.5}\n")
	src, err := NewFileSource(FileOptions{Path: path})
	require.NoError(t, err)

	records, parseErrs := drain(t, src)
	require.Len(t, records, 2)
	require.Len(t, parseErrs, 1)
	require.Equal(t, int64(3), parseErrs[0].Line)

	id, _ := records[0].Get("id")
	require.Equal(t, int64(1), id)
	id, _ = records[1].Get("id")
	require.Equal(t, 2.5, id)
}

func TestFileSource_JSONArray(t *testing.T) {
	path := writeFile(t, "people.json", `[{"name":"Ada"}, 42, {"name":"Grace"}]`)
	src, err := NewFileSource(FileOptions{Path: path})
	require.NoError(t, err)

	records, parseErrs := drain(t, src)
	require.Len(t, records, 2)
	require.Len(t, parseErrs, 1)
	require.Equal(t, "Grace", records[1].GetString("name"))

	_, err = NewFileSource(FileOptions{Path: path, Follow: true})
	require.Error(t, err)
}

func TestFileSource_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.csv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte("id,name\n1,Ada\n2,Grace\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	src, err := NewFileSource(FileOptions{Path: path})
	require.NoError(t, err)
	records, _ := drain(t, src)
	require.Len(t, records, 2)
	require.Equal(t, "Grace", records[1].GetString("name"))
}

func TestFileSource_MaxRecords(t *testing.T) {
	path := writeFile(t, "n.csv", "n\n1\n2\n3\n4\n")
	src, err := NewFileSource(FileOptions{Path: path, MaxRecords: 2})
	require.NoError(t, err)
	records, _ := drain(t, src)
	require.Len(t, records, 2)
}

func TestFileSource_StaysExhausted(t *testing.T) {
	path := writeFile(t, "one.jsonl", "{\"a\":1}\n")
	src, err := NewFileSource(FileOptions{Path: path})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, src.Open(ctx))
	defer src.Close()

	_, err = src.Next(ctx)
	require.NoError(t, err)
	for range 3 {
		_, err = src.Next(ctx)
		require.ErrorIs(t, err, models.ErrEndOfStream)
	}
}

func TestFileSource_Follow(t *testing.T) {
	path := writeFile(t, "tail.jsonl", "{\"n\":1}\n{\"n\":")
	src, err := NewFileSource(FileOptions{Path: path, Follow: true})
	require.NoError(t, err)
	require.True(t, src.Capabilities().Live)

	ctx := context.Background()
	require.NoError(t, src.Open(ctx))
	defer src.Close()

	record, err := src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "1", record.GetString("n"))

	_, err = src.Next(ctx)
	require.ErrorIs(t, err, models.ErrNoData, "partial line is held back")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("2}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	record, err = src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "2", record.GetString("n"))

	_, err = src.Next(ctx)
	require.ErrorIs(t, err, models.ErrNoData)
}

func TestNewFileSource_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts FileOptions
	}{
		{"missing path", FileOptions{}},
		{"unknown extension", FileOptions{Path: "data.bin"}},
		{"unknown type", FileOptions{Path: "data.csv", Type: "xml"}},
		{"long delimiter", FileOptions{Path: "data.csv", Delimiter: "::"}},
		{"fixed without ranges", FileOptions{Path: "data.fw", Fields: []string{"a"}}},
		{"fixed range mismatch", FileOptions{Path: "data.fw", Fields: []string{"a"}, Ranges: []string{"1-2", "3-4"}}},
		{"bad range", FileOptions{Path: "data.fw", Fields: []string{"a"}, Ranges: []string{"4-2"}}},
		{"follow gzip", FileOptions{Path: "data.jsonl.gz", Follow: true}},
		{"negative skip", FileOptions{Path: "data.csv", SkipLines: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFileSource(tt.opts)
			require.Error(t, err)
		})
	}
}

func TestFileSource_OpenMissingFile(t *testing.T) {
	src, err := NewFileSource(FileOptions{Path: filepath.Join(t.TempDir(), "missing.csv")})
	require.NoError(t, err)
	require.Error(t, src.Open(context.Background()))
}

func TestFileSource_Registered(t *testing.T) {
	path := writeFile(t, "people.psv", "id|name\n1|Ada\n")
	src, err := builder.CreateSource(config.ComponentConfig{
		Type:   "file",
		Config: map[string]any{"path": "$var:input", "header": true},
	}, map[string]any{"input": path})
	require.NoError(t, err)

	records, _ := drain(t, src)
	require.Len(t, records, 1)
	require.Equal(t, "Ada", records[0].GetString("name"))

	_, err = builder.CreateSource(config.ComponentConfig{
		Type:   "file",
		Config: map[string]any{"path": path, "bogus": 1},
	}, nil)
	require.Error(t, err)
}
