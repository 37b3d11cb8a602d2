package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "")
	t.Setenv("TRACE_SAMPLE_RATIO", "")

	cfg := Load()

	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.OTLPEndpoint != "" {
		t.Fatalf("expected empty OTLP endpoint, got %s", cfg.OTLPEndpoint)
	}
	if cfg.OTLPInsecure {
		t.Fatalf("expected OTLP insecure to default off")
	}
	if cfg.TraceSampleRatio != 1 {
		t.Fatalf("expected sample ratio 1, got %v", cfg.TraceSampleRatio)
	}
}

func TestLoadTracingOverrides(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("TRACE_SAMPLE_RATIO", "0.1")

	cfg := Load()

	if cfg.OTLPEndpoint != "collector:4317" {
		t.Fatalf("unexpected OTLP endpoint %s", cfg.OTLPEndpoint)
	}
	if !cfg.OTLPInsecure {
		t.Fatalf("expected OTLP insecure on")
	}
	if cfg.TraceSampleRatio != 0.1 {
		t.Fatalf("unexpected sample ratio %v", cfg.TraceSampleRatio)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MIN", "not-a-number")
	t.Setenv("TRACE_SAMPLE_RATIO", "abc")

	cfg := Load()

	if cfg.RateLimitPerMinute != 120 {
		t.Fatalf("expected fallback rate limit 120, got %d", cfg.RateLimitPerMinute)
	}
	if cfg.TraceSampleRatio != 1 {
		t.Fatalf("expected fallback sample ratio 1, got %v", cfg.TraceSampleRatio)
	}
}
