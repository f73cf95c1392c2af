package secretd

import "testing"

func TestResolveOTLPTarget(t *testing.T) {
	cases := []struct {
		raw  string
		want otlpTarget
	}{
		{"collector", otlpTarget{protocol: "grpc", endpoint: "collector:4317", insecure: true}},
		{"collector:9999", otlpTarget{protocol: "grpc", endpoint: "collector:9999", insecure: true}},
		{"grpcs://otel.example", otlpTarget{protocol: "grpc", endpoint: "otel.example:4317"}},
		{"http://otel.example/v1/traces/", otlpTarget{protocol: "http", endpoint: "otel.example:4318", path: "/v1/traces", insecure: true}},
		{"HTTPS://otel.example:443", otlpTarget{protocol: "http", endpoint: "otel.example:443"}},
	}
	for _, tc := range cases {
		got, err := resolveOTLPTarget(tc.raw)
		if err != nil {
			t.Fatalf("%q: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("%q: expected %+v, got %+v", tc.raw, tc.want, got)
		}
	}
	for _, raw := range []string{"", "ftp://x", "http://"} {
		if _, err := resolveOTLPTarget(raw); err == nil {
			t.Fatalf("%q: expected error", raw)
		}
	}
}

func TestSetupTelemetryDisabled(t *testing.T) {
	bundle, err := setupTelemetry(t.Context(), Config{}, "id", nil)
	if err != nil || bundle != nil {
		t.Fatalf("expected nil bundle, got %v %v", bundle, err)
	}
	if err := bundle.Shutdown(t.Context()); err != nil {
		t.Fatalf("nil shutdown: %v", err)
	}
}
