package logger

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

var (
	errorCount       int64
	warnCount        int64
	providerCalls    int64
	providerFailures int64
	basisComputed    int64
	basisFallbacks   int64
	cacheHits        int64
	artifactsWritten int64
)

func recordWarn() {
	atomic.AddInt64(&warnCount, 1)
}

func recordError() {
	atomic.AddInt64(&errorCount, 1)
}

// IncrementProviderCall records one external price lookup attempt.
func IncrementProviderCall() {
	atomic.AddInt64(&providerCalls, 1)
}

// IncrementProviderFailure records one failed external price lookup.
func IncrementProviderFailure() {
	atomic.AddInt64(&providerFailures, 1)
}

// IncrementBasisComputed records one freshly computed basis record.
func IncrementBasisComputed() {
	atomic.AddInt64(&basisComputed, 1)
}

// IncrementBasisFallback records one basis resolution that degraded to the
// static fallback estimate.
func IncrementBasisFallback() {
	atomic.AddInt64(&basisFallbacks, 1)
}

// IncrementCacheHit records one basis cache hit.
func IncrementCacheHit() {
	atomic.AddInt64(&cacheHits, 1)
}

// IncrementArtifactWritten records one exported artifact file.
func IncrementArtifactWritten() {
	atomic.AddInt64(&artifactsWritten, 1)
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and engine statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	memMB := int64(0)
	if memStats != nil {
		memMB = int64(memStats.Used) / 1024 / 1024
	}

	fields := Fields{
		"errors":            atomic.LoadInt64(&errorCount),
		"warns":             atomic.LoadInt64(&warnCount),
		"provider_calls":    atomic.LoadInt64(&providerCalls),
		"provider_failures": atomic.LoadInt64(&providerFailures),
		"basis_computed":    atomic.LoadInt64(&basisComputed),
		"basis_fallbacks":   atomic.LoadInt64(&basisFallbacks),
		"cache_hits":        atomic.LoadInt64(&cacheHits),
		"artifacts_written": atomic.LoadInt64(&artifactsWritten),
		"goroutines":        runtime.NumGoroutine(),
		"cpu_percent":       cpuPct,
		"memory_mb":         memMB,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memMB))},
		{MetricName: aws.String("Errors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors"].(int64)))},
		{MetricName: aws.String("Warns"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns"].(int64)))},
		{MetricName: aws.String("ProviderCalls"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["provider_calls"].(int64)))},
		{MetricName: aws.String("ProviderFailures"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["provider_failures"].(int64)))},
		{MetricName: aws.String("BasisComputed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["basis_computed"].(int64)))},
		{MetricName: aws.String("BasisFallbacks"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["basis_fallbacks"].(int64)))},
		{MetricName: aws.String("CacheHits"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["cache_hits"].(int64)))},
		{MetricName: aws.String("ArtifactsWritten"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["artifacts_written"].(int64)))},
	}

	publishMetrics(ctx, data)
}
