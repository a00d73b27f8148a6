package metrics

import (
	"testing"
	"time"
)

// TestHelpersSafeBeforeInit runs first: helpers must be no-ops until Init.
func TestHelpersSafeBeforeInit(t *testing.T) {
	ObserveRun("success", 3*time.Second)
	ObserveDelivery("delivered", 120*time.Millisecond)
	IncFireSkipped()
	SetActiveTimers(7)
	AddReaped(2)
	IncAlertFailure()
}

// TestInitIdempotent ensures Init can be called repeatedly without panicking
// on duplicate collector registration.
func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	if ingestionRunsTotal == nil {
		t.Fatal("expected run counter to be initialized")
	}
	if webhookDeliveriesTotal == nil {
		t.Fatal("expected delivery counter to be initialized")
	}

	ObserveRun("failed", time.Minute)
	ObserveDelivery("exhausted", time.Second)
	IncFireSkipped()
	SetActiveTimers(0)
	AddReaped(1)
	IncAlertFailure()
}
