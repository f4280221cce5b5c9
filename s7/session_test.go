package s7

import "testing"

func TestValidateTransitionForwardChain(t *testing.T) {
	chain := []ConnectionState{Closed, PendingOpenRfc1006, TransportOpened, PendingOpenPlc, Opened}
	for i := 1; i < len(chain); i++ {
		if err := validateTransition(chain[i-1], chain[i]); err != nil {
			t.Fatalf("validateTransition(%s, %s) = %v, want nil", chain[i-1], chain[i], err)
		}
	}
}

func TestValidateTransitionFallbackToClosed(t *testing.T) {
	for _, from := range []ConnectionState{PendingOpenRfc1006, TransportOpened, PendingOpenPlc, Opened} {
		if err := validateTransition(from, Closed); err != nil {
			t.Fatalf("validateTransition(%s, Closed) = %v, want nil", from, err)
		}
	}
}

func TestValidateTransitionRejectsSkip(t *testing.T) {
	if err := validateTransition(Closed, Opened); err == nil {
		t.Fatalf("validateTransition(Closed, Opened) succeeded, want error")
	}
	if err := validateTransition(Closed, TransportOpened); err == nil {
		t.Fatalf("validateTransition(Closed, TransportOpened) succeeded, want error")
	}
}

func TestValidateTransitionRejectsBackwardsNonClosed(t *testing.T) {
	if err := validateTransition(Opened, PendingOpenPlc); err == nil {
		t.Fatalf("validateTransition(Opened, PendingOpenPlc) succeeded, want error")
	}
}

func TestNewSessionContextDerivesLimits(t *testing.T) {
	sc := NewSessionContext(5000, 240, 8, 8)
	if sc.ReadItemMaxLength != 222 {
		t.Fatalf("ReadItemMaxLength = %d, want 222", sc.ReadItemMaxLength)
	}
	if sc.WriteItemMaxLength != 212 {
		t.Fatalf("WriteItemMaxLength = %d, want 212", sc.WriteItemMaxLength)
	}
}
