package agentloop

import (
	"fmt"
	"time"

	"github.com/kadirpekel/agentloop/errs"
)

func errInvalidTransition(from, to State) error {
	return errs.New(errs.KindStateCorruption, fmt.Sprintf("agentloop: illegal state transition %s -> %s", from, to))
}

func errIterationLimit(max int) error {
	return errs.New(errs.KindIterationLimitExceeded, fmt.Sprintf("agentloop: reached the %d-iteration bound", max))
}

func errDurationLimit(max time.Duration) error {
	return errs.New(errs.KindExecutionTimeout, fmt.Sprintf("agentloop: reached the %s execution bound", max))
}

func errToolCallLimit(max int) error {
	return errs.New(errs.KindIterationLimitExceeded, fmt.Sprintf("agentloop: reached the %d-tool-call bound", max))
}

func errCancelled() error {
	return errs.New(errs.KindCancelled, "agentloop: run cancelled")
}

func errMaxConsecutiveToolErrors(name string, max int) error {
	return errs.New(errs.KindMaxConsecutiveToolErrors,
		fmt.Sprintf("agentloop: tool %q failed %d times in a row", name, max))
}
