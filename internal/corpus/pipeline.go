package corpus

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/remask/remask/internal/logger"
	"github.com/remask/remask/internal/masking"
)

// LabelNone marks samples that must not trigger any pattern.
const LabelNone = "none"

const maxTextLength = 10000

// Pipeline evaluates detection coverage over a labeled dataset. One
// pipeline evaluates one file at a time.
type Pipeline struct {
	config    *Config
	engineCfg masking.Config
	logger    *logger.Logger

	mu        sync.Mutex
	report    *CoverageReport
	processed int64
	startTime time.Time
}

// DefaultConfig returns the evaluation defaults used by the CLI.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      1000,
		WorkerCount:    4,
		ProgressReport: 1000,
		MissSamples:    5,
	}
}

// NewPipeline creates an evaluation pipeline running the given detection
// configuration. A nil config selects the defaults.
func NewPipeline(config *Config, engineCfg masking.Config, log *logger.Logger) *Pipeline {
	if config == nil {
		config = DefaultConfig()
	}
	return &Pipeline{
		config:    config,
		engineCfg: engineCfg,
		logger:    log.WithComponent("corpus"),
	}
}

// ProcessFile evaluates a dataset file (CSV, Parquet, or JSON).
func (p *Pipeline) ProcessFile(ctx context.Context, filePath string) (*CoverageReport, error) {
	start := time.Now()
	p.startTime = start
	atomic.StoreInt64(&p.processed, 0)
	p.report = &CoverageReport{Categories: make(map[string]*CategoryCoverage)}

	format := DetectFileFormat(filePath)
	p.logger.Info("Starting corpus evaluation",
		zap.String("file", filePath),
		zap.String("format", string(format)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount))

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	var readBatch func() ([]Record, error)
	switch format {
	case FormatCSV:
		readBatch, err = p.csvReader(file)
		if err != nil {
			return nil, err
		}
	case FormatParquet:
		reader := parquet.NewReader(file)
		defer reader.Close()
		readBatch = p.parquetReader(reader)
	case FormatJSON:
		readBatch = p.jsonReader(json.NewDecoder(file))
	default:
		return nil, fmt.Errorf("unsupported dataset format: %s", format)
	}

	if err := p.processBatches(ctx, readBatch); err != nil {
		return nil, err
	}

	report := p.report
	report.Duration = time.Since(start)
	if report.Duration > 0 {
		report.RatePerSecond = float64(report.TotalRecords) / report.Duration.Seconds()
	}
	finalize(report)

	p.logger.Info("Corpus evaluation completed",
		zap.Int64("total_records", report.TotalRecords),
		zap.Int64("valid_records", report.ValidRecords),
		zap.Int64("invalid_records", report.InvalidRecords),
		zap.Int64("false_positives", report.FalsePositives),
		zap.Float64("precision", report.Precision),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// csvReader returns a batch reader over a two-column CSV: text, label.
// Malformed rows are skipped with a warning.
func (p *Pipeline) csvReader(file *os.File) (func() ([]Record, error), error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 2

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	p.logger.Debug("CSV header detected", zap.Strings("columns", header))

	return func() ([]Record, error) {
		var batch []Record
		for len(batch) < p.config.BatchSize {
			row, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				p.logger.Warn("Failed to read CSV record", zap.Error(err))
				continue
			}
			batch = append(batch, Record{
				Text:  row[0],
				Label: strings.TrimSpace(row[1]),
			})
		}
		return batch, nil
	}, nil
}

// parquetReader returns a batch reader over a Parquet dataset. Read
// errors other than EOF abort the run since the decoder cannot recover.
func (p *Pipeline) parquetReader(reader *parquet.Reader) func() ([]Record, error) {
	return func() ([]Record, error) {
		var batch []Record
		for len(batch) < p.config.BatchSize {
			var rec Record
			err := reader.Read(&rec)
			if err == io.EOF {
				break
			}
			if err != nil {
				return batch, fmt.Errorf("failed to read Parquet record: %w", err)
			}
			batch = append(batch, rec)
		}
		return batch, nil
	}
}

// jsonReader returns a batch reader over a stream of JSON objects, one
// record each.
func (p *Pipeline) jsonReader(decoder *json.Decoder) func() ([]Record, error) {
	return func() ([]Record, error) {
		var batch []Record
		for len(batch) < p.config.BatchSize {
			var rec Record
			err := decoder.Decode(&rec)
			if err == io.EOF {
				break
			}
			if err != nil {
				return batch, fmt.Errorf("failed to read JSON record: %w", err)
			}
			batch = append(batch, rec)
		}
		return batch, nil
	}
}

// processBatches fans batches out to worker goroutines, each evaluating
// its batch locally before merging into the shared report.
func (p *Pipeline) processBatches(ctx context.Context, readBatch func() ([]Record, error)) error {
	workers := p.config.WorkerCount
	if workers < 1 {
		workers = 1
	}

	batches := make(chan []Record, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batches {
				p.evaluateBatch(batch)
			}
		}()
	}

	var readErr error
	for readErr == nil {
		select {
		case <-ctx.Done():
			readErr = ctx.Err()
			continue
		default:
		}

		batch, err := readBatch()
		if err != nil {
			readErr = err
			continue
		}
		if len(batch) == 0 {
			break
		}
		batches <- batch
	}

	close(batches)
	wg.Wait()
	return readErr
}

type batchTally struct {
	total, valid, invalid int64
	clean, falsePositives int64
	categories            map[string]*CategoryCoverage
}

// evaluateBatch tallies one batch and merges it into the report.
func (p *Pipeline) evaluateBatch(batch []Record) {
	tally := &batchTally{categories: make(map[string]*CategoryCoverage)}
	for i := range batch {
		p.evaluateRecord(&batch[i], tally)
	}

	p.mu.Lock()
	r := p.report
	r.TotalRecords += tally.total
	r.ValidRecords += tally.valid
	r.InvalidRecords += tally.invalid
	r.CleanRecords += tally.clean
	r.FalsePositives += tally.falsePositives
	for name, c := range tally.categories {
		dst := r.Categories[name]
		if dst == nil {
			dst = &CategoryCoverage{}
			r.Categories[name] = dst
		}
		dst.Expected += c.Expected
		dst.Hits += c.Hits
		dst.Misses += c.Misses
		for _, sample := range c.MissSamples {
			if len(dst.MissSamples) >= p.config.MissSamples {
				break
			}
			dst.MissSamples = append(dst.MissSamples, sample)
		}
	}
	p.mu.Unlock()

	n := atomic.AddInt64(&p.processed, tally.total)
	if p.config.ProgressReport > 0 &&
		n/int64(p.config.ProgressReport) != (n-tally.total)/int64(p.config.ProgressReport) {
		p.reportProgress(n)
	}
}

// evaluateRecord scores one sample. A labeled record hits when any match
// of its expected category fires; a "none" record is a false positive
// when anything fires.
func (p *Pipeline) evaluateRecord(rec *Record, tally *batchTally) {
	tally.total++

	if !validRecord(rec) {
		tally.invalid++
		return
	}
	tally.valid++

	if p.config.ValidateOnly {
		return
	}

	label := strings.ToLower(strings.TrimSpace(rec.Label))
	matches := masking.Detect(rec.Text, p.engineCfg)

	if label == LabelNone {
		tally.clean++
		if len(matches) > 0 {
			tally.falsePositives++
		}
		return
	}

	cov := tally.categories[label]
	if cov == nil {
		cov = &CategoryCoverage{}
		tally.categories[label] = cov
	}
	cov.Expected++
	for _, m := range matches {
		if string(m.Category) == label {
			cov.Hits++
			return
		}
	}
	cov.Misses++
	if len(cov.MissSamples) < p.config.MissSamples {
		cov.MissSamples = append(cov.MissSamples, truncate(rec.Text, 120))
	}
}

func validRecord(rec *Record) bool {
	if strings.TrimSpace(rec.Text) == "" {
		return false
	}
	if len(rec.Text) > maxTextLength {
		return false
	}
	label := strings.ToLower(strings.TrimSpace(rec.Label))
	return label == LabelNone || masking.Category(label).Valid()
}

func finalize(report *CoverageReport) {
	var hits int64
	for _, c := range report.Categories {
		if c.Expected > 0 {
			c.Recall = float64(c.Hits) / float64(c.Expected)
		}
		hits += int64(c.Hits)
	}
	if hits+report.FalsePositives > 0 {
		report.Precision = float64(hits) / float64(hits+report.FalsePositives)
	}
}

func (p *Pipeline) reportProgress(n int64) {
	elapsed := time.Since(p.startTime)
	p.logger.Info("Evaluation progress",
		zap.Int64("records_processed", n),
		zap.Float64("rate_per_sec", float64(n)/elapsed.Seconds()),
		zap.Duration("elapsed", elapsed))
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
