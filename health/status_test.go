package health

import (
	"errors"
	"testing"
)

func TestStatus_States(t *testing.T) {
	tests := []struct {
		name      string
		status    Status
		healthy   bool
		degraded  bool
		unhealthy bool
		serving   bool
	}{
		{name: "healthy", status: NewHealthy("c", "ok"), healthy: true, serving: true},
		{name: "degraded", status: NewDegraded("c", "slow"), degraded: true, serving: true},
		{name: "unhealthy", status: NewUnhealthy("c", "down"), unhealthy: true},
		{name: "empty", status: Status{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.IsHealthy(); got != tt.healthy {
				t.Errorf("IsHealthy() = %v, want %v", got, tt.healthy)
			}
			if got := tt.status.IsDegraded(); got != tt.degraded {
				t.Errorf("IsDegraded() = %v, want %v", got, tt.degraded)
			}
			if got := tt.status.IsUnhealthy(); got != tt.unhealthy {
				t.Errorf("IsUnhealthy() = %v, want %v", got, tt.unhealthy)
			}
			if got := tt.status.Serving(); got != tt.serving {
				t.Errorf("Serving() = %v, want %v", got, tt.serving)
			}
			if tt.status.Healthy != tt.healthy {
				t.Errorf("Healthy field = %v, want %v", tt.status.Healthy, tt.healthy)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{name: "no subs", want: StateHealthy},
		{name: "all healthy", subs: []Status{NewHealthy("a", ""), NewHealthy("b", "")}, want: StateHealthy},
		{name: "one degraded", subs: []Status{NewHealthy("a", ""), NewDegraded("b", "")}, want: StateDegraded},
		{name: "unhealthy wins", subs: []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, want: StateUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("system", tt.subs)
			if got.Status != tt.want {
				t.Errorf("Aggregate() status = %s, want %s", got.Status, tt.want)
			}
			if len(got.SubStatuses) != len(tt.subs) {
				t.Errorf("expected %d sub statuses, got %d", len(tt.subs), len(got.SubStatuses))
			}
		})
	}
}

func TestWithDetail_DoesNotShareMaps(t *testing.T) {
	base := NewHealthy("c", "ok").WithDetail("a", 1)
	derived := base.WithDetail("b", 2)

	if _, ok := base.Details["b"]; ok {
		t.Error("WithDetail mutated the original status")
	}
	if derived.Details["a"] != 1 || derived.Details["b"] != 2 {
		t.Errorf("unexpected details: %v", derived.Details)
	}
}

func TestFromError(t *testing.T) {
	if s := FromError("c", nil); !s.IsHealthy() {
		t.Errorf("nil error should be healthy, got %s", s.Status)
	}

	s := FromError("c", errors.New("dial ws://10.0.0.1:8080/vaults/x/events failed: token=abc123"))
	if !s.IsUnhealthy() {
		t.Errorf("expected unhealthy, got %s", s.Status)
	}
	want := "dial [URL] failed: [REDACTED]"
	if s.Message != want {
		t.Errorf("Message = %q, want %q", s.Message, want)
	}
}
