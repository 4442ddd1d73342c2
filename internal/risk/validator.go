package risk

import (
	"fmt"

	"github.com/tradelabs/decision-engine/internal/signal"
)

// InstrumentValidator checks both symbol shape and universe membership. An
// empty universe means any well-formed symbol is tradable.
type InstrumentValidator struct {
	universe map[string]struct{}
}

func NewInstrumentValidator(universe []string) *InstrumentValidator {
	v := &InstrumentValidator{}
	if len(universe) > 0 {
		v.universe = make(map[string]struct{}, len(universe))
		for _, sym := range universe {
			v.universe[signal.NormalizeInstrument(sym)] = struct{}{}
		}
	}
	return v
}

func (v *InstrumentValidator) Validate(instrument string) error {
	if !signal.ValidInstrument(instrument) {
		return fmt.Errorf("%w: malformed symbol %q", signal.ErrInvalidSignal, instrument)
	}
	if v.universe != nil {
		if _, ok := v.universe[instrument]; !ok {
			return fmt.Errorf("%w: %s", ErrUniverse, instrument)
		}
	}
	return nil
}
