package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
)

// Criticality decides what a failed action does to the rest of the run.
type Criticality int

const (
	// Required actions abort the run on failure.
	Required Criticality = iota
	// BestEffort actions are logged on failure and the run continues.
	BestEffort
)

func (c Criticality) String() string {
	switch c {
	case Required:
		return "required"
	case BestEffort:
		return "best-effort"
	default:
		return fmt.Sprintf("criticality(%d)", int(c))
	}
}

func (c Criticality) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Outcome of a single bootstrap action.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Action is one bootstrap operation. Hint is logged when a best-effort
// action fails and should name the likely cause.
type Action struct {
	Description string
	Hint        string
	Criticality Criticality
	Effect      func(ctx context.Context) error
}

type ActionResult struct {
	Description string      `json:"description" yaml:"description"`
	Criticality Criticality `json:"criticality" yaml:"criticality"`
	Outcome     Outcome     `json:"outcome" yaml:"outcome"`
	Error       string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// Execute runs actions in order. A failing Required action stops the loop;
// its error is returned unchanged and the remaining actions are reported as
// skipped. A failing BestEffort action is logged with its hint and the loop
// moves on.
func Execute(ctx context.Context, log *slog.Logger, actions []Action) ([]ActionResult, error) {
	results := make([]ActionResult, 0, len(actions))
	for i, a := range actions {
		log.Info("running action", "action", a.Description, "criticality", a.Criticality)

		err := a.Effect(ctx)
		if err == nil {
			log.Info("action succeeded", "action", a.Description)
			results = append(results, ActionResult{Description: a.Description, Criticality: a.Criticality, Outcome: OutcomeOK})
			continue
		}

		results = append(results, ActionResult{
			Description: a.Description,
			Criticality: a.Criticality,
			Outcome:     OutcomeFailed,
			Error:       err.Error(),
		})

		if a.Criticality == Required {
			log.Error("required action failed", "action", a.Description, "error", err)
			for _, rest := range actions[i+1:] {
				results = append(results, ActionResult{Description: rest.Description, Criticality: rest.Criticality, Outcome: OutcomeSkipped})
			}
			return results, err
		}

		hint := a.Hint
		if hint == "" {
			hint = "best-effort action failed"
		}
		log.Warn(hint, "action", a.Description, "error", err)
	}
	return results, nil
}
