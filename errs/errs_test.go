package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentloop/errs"
)

func TestNewAndFamily(t *testing.T) {
	err := errs.New(errs.KindToolNotFound, "no such tool")
	require.Equal(t, errs.KindToolNotFound, err.Kind)
	require.Equal(t, errs.FamilyUserInput, err.Kind.Family())
	require.Equal(t, "tool_not_found: no such tool", err.Error())
}

func TestWrapPreservesCauseAndUnwraps(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := errs.Wrap(errs.KindProviderTransport, "provider call failed", cause)
	require.ErrorIs(t, err, cause)
	require.Equal(t, errs.FamilyProvider, err.Kind.Family())
}

func TestIsMatchesKind(t *testing.T) {
	err := errs.New(errs.KindApprovalPending, "awaiting review")
	require.True(t, errs.Is(err, errs.KindApprovalPending))
	require.False(t, errs.Is(err, errs.KindApprovalDenied))
}

func TestIsFalseForUnclassifiedError(t *testing.T) {
	require.False(t, errs.Is(errors.New("plain"), errs.KindToolTimeout))
}

func TestKindOfExtractsOrReturnsEmpty(t *testing.T) {
	require.Equal(t, errs.KindCancelled, errs.KindOf(errs.New(errs.KindCancelled, "stopped")))
	require.Equal(t, errs.Kind(""), errs.KindOf(errors.New("plain")))
}

func TestKindOfUnwrapsThroughFmtErrorf(t *testing.T) {
	classified := errs.New(errs.KindToolTimeout, "timed out")
	wrapped := fmt.Errorf("outer: %w", classified)
	require.Equal(t, errs.KindToolTimeout, errs.KindOf(wrapped))
}
