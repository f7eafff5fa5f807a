package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/raaihank/llm-veil/internal/logger"
	"github.com/raaihank/llm-veil/internal/privacy"
	"go.uber.org/zap"
)

// Pipeline anonymizes datasets with a shared anonymizer.
type Pipeline struct {
	anonymizer *privacy.Anonymizer
	config     Config
	logger     *logger.Logger
}

// NewPipeline creates a new pipeline. Non-positive config values fall back
// to the defaults.
func NewPipeline(anonymizer *privacy.Anonymizer, cfg Config, log *logger.Logger) *Pipeline {
	defaults := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = defaults.WorkerCount
	}
	if cfg.ProgressReport <= 0 {
		cfg.ProgressReport = defaults.ProgressReport
	}
	return &Pipeline{
		anonymizer: anonymizer,
		config:     cfg,
		logger:     log.WithComponent("etl"),
	}
}

// ProcessFile anonymizes inputPath into outputPath. The formats are taken
// from the file extensions and may differ.
func (p *Pipeline) ProcessFile(ctx context.Context, inputPath, outputPath string) (*ProcessingResult, error) {
	inFormat := DetectFileFormat(inputPath)
	outFormat := DetectFileFormat(outputPath)

	p.logger.Info("Starting ETL pipeline",
		zap.String("input", inputPath),
		zap.String("input_format", string(inFormat)),
		zap.String("output", outputPath),
		zap.String("output_format", string(outFormat)),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.WorkerCount),
	)

	reader, err := OpenReader(inputPath, inFormat)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	writer, err := CreateWriter(outputPath, outFormat)
	if err != nil {
		return nil, err
	}

	result, err := p.Process(ctx, reader, writer)
	if closeErr := writer.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("failed to finish %s: %w", outputPath, closeErr)
	}
	if err != nil {
		return result, err
	}

	p.logger.Info("ETL pipeline completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("anonymized_records", result.AnonymizedRecords),
		zap.Int64("entities", result.Entities),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("anonymize_time", result.AnonymizeTime),
	)
	return result, nil
}

// Process reads every record from r, anonymizes its text and writes it to
// w in input order. w is not closed.
func (p *Pipeline) Process(ctx context.Context, r RecordReader, w RecordWriter) (*ProcessingResult, error) {
	start := time.Now()
	result := &ProcessingResult{EntitiesByType: make(map[string]int64)}
	nextReport := int64(p.config.ProgressReport)

	for {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}

		batch, err := readBatch(r, p.config.BatchSize)
		if err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("failed to read record %d: %w", result.TotalRecords+int64(len(batch))+1, err)
		}
		if len(batch) == 0 {
			break
		}

		anonStart := time.Now()
		results := p.anonymizeBatch(ctx, batch)
		result.AnonymizeTime += time.Since(anonStart)

		for i, rec := range batch {
			res := results[i]
			rec.Text = res.AnonymizedText()
			if err := w.Write(rec); err != nil {
				result.Duration = time.Since(start)
				return result, fmt.Errorf("failed to write record %d: %w", result.TotalRecords+1, err)
			}

			result.TotalRecords++
			if res.HasAnonymizedEntities() {
				result.AnonymizedRecords++
			}
			for _, f := range res.Findings() {
				result.Entities += int64(f.Count)
				result.EntitiesByType[string(f.EntityType)] += int64(f.Count)
			}
		}

		if result.TotalRecords >= nextReport {
			p.reportProgress(result, start)
			nextReport += int64(p.config.ProgressReport)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// readBatch reads up to size records. A short batch without error means the
// input is exhausted.
func readBatch(r RecordReader, size int) ([]Record, error) {
	batch := make([]Record, 0, size)
	for len(batch) < size {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return batch, nil
		}
		if err != nil {
			return batch, err
		}
		batch = append(batch, rec)
	}
	return batch, nil
}

// anonymizeBatch anonymizes the batch with up to WorkerCount goroutines.
func (p *Pipeline) anonymizeBatch(ctx context.Context, batch []Record) []*privacy.Result {
	results := make([]*privacy.Result, len(batch))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for range min(p.config.WorkerCount, len(batch)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.anonymizer.Anonymize(ctx, batch[i].Text)
			}
		}()
	}
	for i := range batch {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func (p *Pipeline) reportProgress(result *ProcessingResult, start time.Time) {
	elapsed := time.Since(start)
	rate := float64(result.TotalRecords) / elapsed.Seconds()
	p.logger.Info("ETL progress",
		zap.Int64("records", result.TotalRecords),
		zap.Int64("entities", result.Entities),
		zap.Duration("elapsed", elapsed),
		zap.Float64("records_per_second", rate),
	)
}
