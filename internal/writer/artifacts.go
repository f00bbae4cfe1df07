// Package writer persists analysis artifacts as parquet files in the
// local artifact directory and optionally in S3.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "levelflow/config"
	"levelflow/internal/models"
	"levelflow/logger"
)

// LevelRecord is the flattened parquet row for one structural level.
type LevelRecord struct {
	RunID        string  `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Instrument   string  `parquet:"name=instrument, type=BYTE_ARRAY, convertedtype=UTF8"`
	Date         string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price        float64 `parquet:"name=price, type=DOUBLE"`
	Kind         string  `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Strength     float64 `parquet:"name=strength, type=DOUBLE"`
	Volume       int64   `parquet:"name=volume, type=INT64"`
	OpenInterest int64   `parquet:"name=open_interest, type=INT64"`
}

// ZoneRecord is the parquet row for one confluence zone.
type ZoneRecord struct {
	RunID         string  `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Instrument    string  `parquet:"name=instrument, type=BYTE_ARRAY, convertedtype=UTF8"`
	Date          string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	CenterPrice   float64 `parquet:"name=center_price, type=DOUBLE"`
	LevelCount    int32   `parquet:"name=level_count, type=INT32"`
	TotalStrength float64 `parquet:"name=total_strength, type=DOUBLE"`
	RangeMin      float64 `parquet:"name=range_min, type=DOUBLE"`
	RangeMax      float64 `parquet:"name=range_max, type=DOUBLE"`
}

// MappedRecord is the parquet row for one cross-market mapped level.
type MappedRecord struct {
	Instrument  string  `parquet:"name=instrument, type=BYTE_ARRAY, convertedtype=UTF8"`
	Date        string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	FutureLevel float64 `parquet:"name=future_level, type=DOUBLE"`
	CFDLevel    float64 `parquet:"name=cfd_level, type=DOUBLE"`
	Basis       float64 `parquet:"name=basis_applied, type=DOUBLE"`
	Confidence  string  `parquet:"name=confidence, type=BYTE_ARRAY, convertedtype=UTF8"`
	IsFallback  bool    `parquet:"name=is_fallback, type=BOOLEAN"`
	Timestamp   int64   `parquet:"name=timestamp, type=INT64"`
}

// memoryFileWriter implements the ParquetFile interface over a byte
// buffer so files are assembled in memory before hitting disk or S3.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error)  { return mfw, nil }

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// ArtifactWriter writes run artifacts under the configured directory and
// mirrors them to S3 when storage is enabled.
type ArtifactWriter struct {
	config   *appconfig.Config
	s3Client *s3.Client
	log      *logger.Log
}

// NewArtifactWriter creates a writer. The S3 client is only built when S3
// storage is enabled; credential problems then fail construction.
func NewArtifactWriter(cfg *appconfig.Config) (*ArtifactWriter, error) {
	log := logger.GetLogger()
	w := &ArtifactWriter{config: cfg, log: log}

	if !cfg.Storage.S3.Enabled {
		return w, nil
	}

	ctx := context.Background()
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	w.s3Client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	log.WithComponent("artifact_writer").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("artifact writer initialized with S3 storage")

	return w, nil
}

// WriteLevelSet persists the flattened levels of one structural level set.
// It returns the artifact key.
func (w *ArtifactWriter) WriteLevelSet(ctx context.Context, set *models.StructuralLevelSet) (string, error) {
	levels := set.Levels()
	records := make([]LevelRecord, 0, len(levels))
	for _, l := range levels {
		records = append(records, LevelRecord{
			RunID:        set.RunID,
			Instrument:   set.Instrument,
			Date:         set.CalculationDate,
			Price:        l.Price,
			Kind:         string(l.Kind),
			Strength:     l.Strength,
			Volume:       l.Volume,
			OpenInterest: l.OpenInterest,
		})
	}

	data, err := w.createParquetFile(new(LevelRecord), func(pw *writer.ParquetWriter) error {
		for _, r := range records {
			if err := pw.Write(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create levels parquet for %s: %w", set.Instrument, err)
	}

	key := w.artifactKey("levels", set.Instrument, set.CalculationDate, set.CalculatedAt)
	return key, w.store(ctx, key, data, len(records))
}

// WriteConfluenceZones persists the confluence zones of one level set.
func (w *ArtifactWriter) WriteConfluenceZones(ctx context.Context, set *models.StructuralLevelSet, zones []models.ConfluenceZone) (string, error) {
	records := make([]ZoneRecord, 0, len(zones))
	for _, z := range zones {
		records = append(records, ZoneRecord{
			RunID:         set.RunID,
			Instrument:    set.Instrument,
			Date:          set.CalculationDate,
			CenterPrice:   z.CenterPrice,
			LevelCount:    int32(z.LevelCount),
			TotalStrength: z.TotalStrength,
			RangeMin:      z.PriceRange.Min,
			RangeMax:      z.PriceRange.Max,
		})
	}

	data, err := w.createParquetFile(new(ZoneRecord), func(pw *writer.ParquetWriter) error {
		for _, r := range records {
			if err := pw.Write(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create zones parquet for %s: %w", set.Instrument, err)
	}

	key := w.artifactKey("zones", set.Instrument, set.CalculationDate, set.CalculatedAt)
	return key, w.store(ctx, key, data, len(records))
}

// WriteMappedLevels persists cross-market mapped levels together with the
// basis record that produced them.
func (w *ArtifactWriter) WriteMappedLevels(ctx context.Context, instrument, date string, mapped []models.MappedLevel, basis *models.BasisRecord) (string, error) {
	records := make([]MappedRecord, 0, len(mapped))
	for _, m := range mapped {
		records = append(records, MappedRecord{
			Instrument:  m.Instrument,
			Date:        date,
			FutureLevel: m.OriginalFutureLevel,
			CFDLevel:    m.MappedCFDLevel,
			Basis:       m.BasisApplied,
			Confidence:  string(m.Confidence),
			IsFallback:  basis != nil && basis.IsFallback,
			Timestamp:   m.MappingTime.UnixMilli(),
		})
	}

	data, err := w.createParquetFile(new(MappedRecord), func(pw *writer.ParquetWriter) error {
		for _, r := range records {
			if err := pw.Write(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create mapped levels parquet for %s: %w", instrument, err)
	}

	key := w.artifactKey("mapped", instrument, date, time.Now())
	return key, w.store(ctx, key, data, len(records))
}

// createParquetFile assembles one parquet file in memory.
func (w *ArtifactWriter) createParquetFile(schema interface{}, writeAll func(pw *writer.ParquetWriter) error) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, schema, 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch w.config.Artifacts.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	if err := writeAll(pw); err != nil {
		pw.WriteStop()
		return nil, fmt.Errorf("failed to write parquet records: %w", err)
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return fw.Bytes(), nil
}

// artifactKey builds the partitioned path of one artifact.
func (w *ArtifactWriter) artifactKey(kind, instrument, date string, ts time.Time) string {
	filename := fmt.Sprintf("%s_%s_%s.parquet", kind, instrument, ts.UTC().Format("20060102150405"))
	key := filepath.Join(
		fmt.Sprintf("kind=%s", kind),
		fmt.Sprintf("instrument=%s", instrument),
		fmt.Sprintf("date=%s", date),
		filename,
	)
	return filepath.ToSlash(key)
}

// store writes the file locally and mirrors it to S3 when enabled.
func (w *ArtifactWriter) store(ctx context.Context, key string, data []byte, recordCount int) error {
	log := w.log.WithComponent("artifact_writer").WithFields(logger.Fields{
		"key":          key,
		"file_size":    len(data),
		"record_count": recordCount,
	})

	localPath := filepath.Join(w.config.Artifacts.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	if err := os.WriteFile(localPath, data, 0644); err != nil {
		return fmt.Errorf("write artifact %s: %w", localPath, err)
	}

	if w.s3Client != nil {
		if err := w.uploadToS3(ctx, key, data); err != nil {
			log.WithError(err).
				WithEnv("S3_BUCKET").
				WithFields(logger.Fields{"bucket": w.config.Storage.S3.Bucket}).
				Error("failed to upload artifact to S3")
			return err
		}
	}

	logger.IncrementArtifactWritten()
	log.Info("artifact written")
	return nil
}

func (w *ArtifactWriter) uploadToS3(ctx context.Context, key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":      "parquet",
			"compression":       w.config.Artifacts.Compression,
			"levelflow-version": w.config.Levelflow.Version,
		},
	}

	_, err := w.s3Client.PutObject(context.WithoutCancel(ctx), input)
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", w.config.Storage.S3.Bucket, err)
	}
	return nil
}
