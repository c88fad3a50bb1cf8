package retry

import (
	"fmt"
	"testing"
	"time"
)

// BenchmarkCircuitBreaker_Closed measures pass-through overhead.
func BenchmarkCircuitBreaker_Closed(b *testing.B) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cb.Execute(func() error { return nil }) //nolint:errcheck
	}
}

// BenchmarkCircuitBreaker_Open measures the fast-fail path.
func BenchmarkCircuitBreaker_Open(b *testing.B) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	cb.Execute(func() error { return fmt.Errorf("fail") }) //nolint:errcheck
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cb.Execute(func() error { return nil }) //nolint:errcheck
	}
}

// BenchmarkBreakers_For measures keyed lookup.
func BenchmarkBreakers_For(b *testing.B) {
	br := NewBreakers(nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = br.For("host.example.com:22")
	}
}
