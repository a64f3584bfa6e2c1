package domain

import (
	"errors"
	"testing"
)

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, s := range []Status{StatusResolved, StatusClosed} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
		for _, to := range AllStatuses() {
			if CanTransition(s, to) {
				t.Fatalf("terminal %s must not allow %s", s, to)
			}
		}
	}
}

func TestValidateTransition(t *testing.T) {
	if err := ValidateTransition(StatusAwaitingTechnician, StatusAwaitingMechanic); err != nil {
		t.Fatalf("legal edge rejected: %v", err)
	}
	if err := ValidateTransition(StatusUnderRepair, StatusAwaitingMechanic); !errors.Is(err, ErrStateTransition) {
		t.Fatalf("expected state transition error, got %v", err)
	}
	if err := ValidateTransition(StatusUnderRepair, Status("voando")); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}

func TestNoForecastAllowsRework(t *testing.T) {
	for _, to := range []Status{StatusAwaitingTechnician, StatusAwaitingMechanic, StatusUnderRepair} {
		if !CanTransition(StatusNoForecast, to) {
			t.Fatalf("sem_previsao should allow return to %s", to)
		}
	}
}

func TestEveryStatusHasConfig(t *testing.T) {
	for _, s := range AllStatuses() {
		cfg, ok := s.Config()
		if !ok || cfg.Label == "" {
			t.Fatalf("missing config for %s", s)
		}
	}
}
