package domain

import "fmt"

// Status identifies one operational state of a breakdown record.
type Status string

const (
	StatusAwaitingTechnician Status = "aguardando_tecnico"
	StatusAwaitingMechanic   Status = "aguardando_mecanico"
	StatusUnderRepair        Status = "em_reparo"
	StatusNoForecast         Status = "sem_previsao"
	StatusTripResumed        Status = "reinicio_viagem"
	StatusResolved           Status = "resolvido"
	StatusClosed             Status = "finalizado"
)

// InitialStatus is assigned to every newly created breakdown record.
const InitialStatus = StatusAwaitingTechnician

// StatusConfig describes how a status is presented and which statuses may
// legally follow it. An empty AllowedTransitions set marks a terminal status.
type StatusConfig struct {
	Label              string   `json:"label"`
	Icon               string   `json:"icon"`
	Color              string   `json:"color"`
	AllowedTransitions []Status `json:"allowed_transitions"`
}

var statusRegistry = map[Status]StatusConfig{
	StatusAwaitingTechnician: {
		Label:              "Aguardando Técnico",
		Icon:               "clock",
		Color:              "#f59e0b",
		AllowedTransitions: []Status{StatusAwaitingMechanic, StatusUnderRepair, StatusNoForecast, StatusResolved},
	},
	StatusAwaitingMechanic: {
		Label:              "Aguardando Mecânico",
		Icon:               "wrench",
		Color:              "#f97316",
		AllowedTransitions: []Status{StatusUnderRepair, StatusTripResumed, StatusNoForecast, StatusResolved},
	},
	StatusUnderRepair: {
		Label:              "Em Reparo",
		Icon:               "tool",
		Color:              "#3b82f6",
		AllowedTransitions: []Status{StatusTripResumed, StatusNoForecast, StatusResolved},
	},
	StatusNoForecast: {
		Label:              "Sem Previsão",
		Icon:               "help-circle",
		Color:              "#ef4444",
		AllowedTransitions: []Status{StatusAwaitingTechnician, StatusAwaitingMechanic, StatusUnderRepair, StatusResolved},
	},
	StatusTripResumed: {
		Label:              "Reinício de Viagem",
		Icon:               "truck",
		Color:              "#22c55e",
		AllowedTransitions: []Status{StatusClosed},
	},
	StatusResolved: {
		Label:              "Resolvido",
		Icon:               "check-circle",
		Color:              "#16a34a",
		AllowedTransitions: nil,
	},
	StatusClosed: {
		Label:              "Finalizado",
		Icon:               "flag",
		Color:              "#64748b",
		AllowedTransitions: nil,
	},
}

// statusOrder keeps listings deterministic; maps do not.
var statusOrder = []Status{
	StatusAwaitingTechnician,
	StatusAwaitingMechanic,
	StatusUnderRepair,
	StatusNoForecast,
	StatusTripResumed,
	StatusResolved,
	StatusClosed,
}

func (s Status) Valid() bool {
	_, ok := statusRegistry[s]
	return ok
}

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool {
	cfg, ok := statusRegistry[s]
	return ok && len(cfg.AllowedTransitions) == 0
}

func (s Status) Config() (StatusConfig, bool) {
	cfg, ok := statusRegistry[s]
	return cfg, ok
}

func (s Status) Label() string {
	if cfg, ok := statusRegistry[s]; ok {
		return cfg.Label
	}
	return string(s)
}

func AllStatuses() []Status {
	out := make([]Status, len(statusOrder))
	copy(out, statusOrder)
	return out
}

func CanTransition(from, to Status) bool {
	cfg, ok := statusRegistry[from]
	if !ok {
		return false
	}
	for _, next := range cfg.AllowedTransitions {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition rejects edges not declared in the registry.
func ValidateTransition(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrStateTransition, from, to)
	}
	return nil
}
