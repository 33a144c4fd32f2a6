package sources

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/corey-cole/riot/builder"
	"github.com/corey-cole/riot/models"
)

// File formats
const (
	FormatDelimited = "delimited"
	FormatFixed     = "fixed"
	FormatJSON      = "json"
	FormatJSONL     = "jsonl"
)

// FileOptions configures a file source
type FileOptions struct {
	Path       string   `mapstructure:"path"`
	Type       string   `mapstructure:"type"`
	Delimiter  string   `mapstructure:"delimiter"`
	Header     *bool    `mapstructure:"header"`
	Fields     []string `mapstructure:"fields"`
	Ranges     []string `mapstructure:"ranges"`
	SkipLines  int      `mapstructure:"skip_lines"`
	MaxRecords int64    `mapstructure:"max_records"`
	Follow     bool     `mapstructure:"follow"`
}

type columnRange struct {
	start, end int // 0-based, end exclusive
}

// FileSource reads records from a delimited, fixed-width, JSON or JSON lines file.
// With Follow set the file is tailed: reaching the end yields ErrNoData instead of ErrEndOfStream.
type FileSource struct {
	opts      FileOptions
	format    string
	delimiter rune
	gzipped   bool
	ranges    []columnRange

	file    *os.File
	gz      *gzip.Reader
	reader  *bufio.Reader
	decoder *json.Decoder

	fields  []string
	line    int64
	emitted int64
	pending string
	done    bool
}

// NewFileSource validates the options. The file is opened by Open.
func NewFileSource(opts FileOptions) (*FileSource, error) {
	if opts.Path == "" {
		return nil, models.ErrMissingConfig("path")
	}
	if opts.SkipLines < 0 {
		return nil, fmt.Errorf("skip_lines must be >= 0, got %d", opts.SkipLines)
	}
	if opts.MaxRecords < 0 {
		return nil, fmt.Errorf("max_records must be >= 0, got %d", opts.MaxRecords)
	}

	s := &FileSource{opts: opts}

	name := strings.ToLower(opts.Path)
	if strings.HasSuffix(name, ".gz") {
		s.gzipped = true
		name = strings.TrimSuffix(name, ".gz")
	}
	ext := strings.TrimPrefix(filepath.Ext(name), ".")

	s.format = strings.ToLower(opts.Type)
	if s.format == "" {
		switch ext {
		case "csv", "tsv", "psv", "txt":
			s.format = FormatDelimited
		case "fw", "dat":
			s.format = FormatFixed
		case "json":
			s.format = FormatJSON
		case "jsonl", "ndjson":
			s.format = FormatJSONL
		default:
			return nil, fmt.Errorf("cannot infer file type from %q, set 'type'", opts.Path)
		}
	}

	switch s.format {
	case FormatDelimited:
		delimiter := opts.Delimiter
		if delimiter == "" {
			switch ext {
			case "tsv":
				delimiter = "\t"
			case "psv":
				delimiter = "|"
			default:
				delimiter = ","
			}
		}
		if delimiter == `\t` {
			delimiter = "\t"
		}
		runes := []rune(delimiter)
		if len(runes) != 1 {
			return nil, fmt.Errorf("delimiter must be a single character, got %q", delimiter)
		}
		s.delimiter = runes[0]
	case FormatFixed:
		if len(opts.Ranges) == 0 {
			return nil, models.ErrMissingConfig("ranges")
		}
		if len(opts.Fields) != len(opts.Ranges) {
			return nil, fmt.Errorf("fixed-width files need one field name per range, got %d fields and %d ranges",
				len(opts.Fields), len(opts.Ranges))
		}
		for _, r := range opts.Ranges {
			cr, err := parseRange(r)
			if err != nil {
				return nil, err
			}
			s.ranges = append(s.ranges, cr)
		}
	case FormatJSON:
		if opts.Follow {
			return nil, errors.New("json array files cannot be followed, use jsonl")
		}
	case FormatJSONL:
	default:
		return nil, fmt.Errorf("unsupported file type: %s", opts.Type)
	}

	if opts.Follow && s.gzipped {
		return nil, errors.New("gzip files cannot be followed")
	}
	return s, nil
}

// parseRange parses a 1-based inclusive "start-end" column range, or a single column
func parseRange(spec string) (columnRange, error) {
	startStr, endStr, found := strings.Cut(strings.TrimSpace(spec), "-")
	start, err := strconv.Atoi(strings.TrimSpace(startStr))
	if err != nil || start < 1 {
		return columnRange{}, fmt.Errorf("invalid range %q", spec)
	}
	end := start
	if found {
		end, err = strconv.Atoi(strings.TrimSpace(endStr))
		if err != nil || end < start {
			return columnRange{}, fmt.Errorf("invalid range %q", spec)
		}
	}
	return columnRange{start: start - 1, end: end}, nil
}

func (s *FileSource) Open(ctx context.Context) error {
	file, err := os.Open(s.opts.Path)
	if err != nil {
		return err
	}
	s.file = file

	var r io.Reader = file
	if s.gzipped {
		s.gz, err = gzip.NewReader(file)
		if err != nil {
			file.Close()
			return fmt.Errorf("failed to read gzip header of %s: %w", s.opts.Path, err)
		}
		r = s.gz
	}
	s.reader = bufio.NewReader(r)
	s.fields = s.opts.Fields

	if s.format == FormatJSON {
		s.decoder = json.NewDecoder(s.reader)
		s.decoder.UseNumber()
		tok, err := s.decoder.Token()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", s.opts.Path, err)
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			return fmt.Errorf("%s: expected a JSON array", s.opts.Path)
		}
	}
	return nil
}

func (s *FileSource) Next(ctx context.Context) (*models.Record, error) {
	if s.reader == nil {
		return nil, errors.New("file source is not open")
	}
	if s.done || (s.opts.MaxRecords > 0 && s.emitted >= s.opts.MaxRecords) {
		s.done = true
		return nil, models.ErrEndOfStream
	}

	if s.format == FormatJSON {
		return s.nextElement()
	}

	for {
		line, err := s.readLine()
		if err != nil {
			return nil, err
		}
		s.line++
		if s.line <= int64(s.opts.SkipLines) {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		record, err := s.parseLine(line)
		if err != nil {
			return nil, models.ErrParse(s.line, line, err)
		}
		if record == nil {
			continue
		}
		s.emitted++
		return record, nil
	}
}

// readLine returns the next complete line without its terminator
func (s *FileSource) readLine() (string, error) {
	chunk, err := s.reader.ReadString('\n')
	switch {
	case err == nil:
		line := s.pending + chunk
		s.pending = ""
		return strings.TrimRight(line, "\r\n"), nil
	case errors.Is(err, io.EOF):
		if s.opts.Follow {
			// keep the partial line until the writer finishes it
			s.pending += chunk
			return "", models.ErrNoData
		}
		line := s.pending + chunk
		s.pending = ""
		if line == "" {
			s.done = true
			return "", models.ErrEndOfStream
		}
		return strings.TrimRight(line, "\r\n"), nil
	default:
		return "", err
	}
}

// parseLine returns nil for a header line
func (s *FileSource) parseLine(line string) (*models.Record, error) {
	switch s.format {
	case FormatJSONL:
		record := models.NewRecord()
		if err := json.Unmarshal([]byte(line), record); err != nil {
			return nil, err
		}
		return record, nil
	case FormatFixed:
		record := models.NewRecord()
		for i, r := range s.ranges {
			record.Set(s.fields[i], columnValue(line, r))
		}
		return record, nil
	default:
		values, err := s.splitDelimited(line)
		if err != nil {
			return nil, err
		}
		if s.fields == nil && s.header() {
			s.fields = values
			return nil, nil
		}
		if len(s.opts.Fields) > 0 && s.header() && s.line == int64(s.opts.SkipLines)+1 {
			// explicit names replace the header line
			return nil, nil
		}
		return s.delimitedRecord(values)
	}
}

func (s *FileSource) header() bool {
	return s.opts.Header == nil || *s.opts.Header
}

func (s *FileSource) splitDelimited(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = s.delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	values, err := r.Read()
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (s *FileSource) delimitedRecord(values []string) (*models.Record, error) {
	record := models.NewRecord()
	if s.fields == nil {
		for i, v := range values {
			record.Set("field"+strconv.Itoa(i+1), v)
		}
		return record, nil
	}
	if len(values) != len(s.fields) {
		return nil, fmt.Errorf("expected %d values, got %d", len(s.fields), len(values))
	}
	for i, v := range values {
		record.Set(s.fields[i], v)
	}
	return record, nil
}

func columnValue(line string, r columnRange) string {
	if r.start >= len(line) {
		return ""
	}
	end := min(r.end, len(line))
	return strings.TrimSpace(line[r.start:end])
}

func (s *FileSource) nextElement() (*models.Record, error) {
	if !s.decoder.More() {
		s.done = true
		return nil, models.ErrEndOfStream
	}
	s.line++
	record := models.NewRecord()
	if err := s.decoder.Decode(record); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			// the decoder cannot resynchronize after a syntax error
			s.done = true
			return nil, fmt.Errorf("%s: malformed JSON array at element %d: %w", s.opts.Path, s.line, err)
		}
		return nil, models.ErrParse(s.line, "", err)
	}
	s.emitted++
	return record, nil
}

func (s *FileSource) Close() error {
	var errs []error
	if s.gz != nil {
		errs = append(errs, s.gz.Close())
	}
	if s.file != nil {
		errs = append(errs, s.file.Close())
	}
	s.reader = nil
	return errors.Join(errs...)
}

// Capabilities reports an unknown size: byte length says nothing about the record count
func (s *FileSource) Capabilities() models.SourceCapabilities {
	return models.SourceCapabilities{Live: s.opts.Follow, EstimatedSize: -1}
}

func init() {
	builder.RegisterSourceType("file", func(cfg map[string]any, vars map[string]any) (models.Source, error) {
		var opts FileOptions
		if err := builder.DecodeOptions(cfg, &opts); err != nil {
			return nil, err
		}
		return NewFileSource(opts)
	})
}
