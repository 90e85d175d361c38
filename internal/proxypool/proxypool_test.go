package proxypool

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNextRoundRobinCyclesThroughAll(t *testing.T) {
	p := New([]string{"http://a", "http://b", "http://c"}, StrategyRoundRobin, zap.NewNop())
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		addr, ok := p.Next()
		if !ok {
			t.Fatalf("expected a proxy")
		}
		seen[addr] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected all 3 proxies visited, got %v", seen)
	}
}

func TestRecordResultMarksUnhealthyAfterMaxFailures(t *testing.T) {
	p := New([]string{"http://a"}, StrategyRoundRobin, zap.NewNop())
	for i := 0; i < MaxFailures; i++ {
		p.RecordResult("http://a", false, 0)
	}
	if p.HealthyCount() != 0 {
		t.Fatalf("expected proxy to be unhealthy after %d failures", MaxFailures)
	}
}

func TestRecordResultSuccessResetsFailureStreak(t *testing.T) {
	p := New([]string{"http://a"}, StrategyRoundRobin, zap.NewNop())
	for i := 0; i < MaxFailures-1; i++ {
		p.RecordResult("http://a", false, 0)
	}
	p.RecordResult("http://a", true, 10*time.Millisecond)
	for i := 0; i < MaxFailures-1; i++ {
		p.RecordResult("http://a", false, 0)
	}
	if p.HealthyCount() != 1 {
		t.Fatalf("expected proxy to remain healthy after a success")
	}
}

func TestResetAllRestoresHealth(t *testing.T) {
	p := New([]string{"http://a"}, StrategyRoundRobin, zap.NewNop())
	for i := 0; i < MaxFailures; i++ {
		p.RecordResult("http://a", false, 0)
	}
	p.ResetAll()
	if p.HealthyCount() != 1 {
		t.Fatalf("expected ResetAll to restore health")
	}
}
