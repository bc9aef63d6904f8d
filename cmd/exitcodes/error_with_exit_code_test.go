package exitcodes

import (
	"testing"

	"github.com/crytic/multifork/chain/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// TestGetInnerErrorAndExitCode verifies explicit exit codes win and fork errors map onto their own codes.
func TestGetInnerErrorAndExitCode(t *testing.T) {
	err, code := GetInnerErrorAndExitCode(nil)
	assert.NoError(t, err)
	assert.Equal(t, ExitCodeSuccess, code)

	inner := errors.New("boom")
	err, code = GetInnerErrorAndExitCode(NewErrorWithExitCode(inner, ExitCodeHandledError))
	assert.Equal(t, inner, err)
	assert.Equal(t, ExitCodeHandledError, code)

	_, code = GetInnerErrorAndExitCode(inner)
	assert.Equal(t, ExitCodeGeneralError, code)

	configErr := types.NewForkError(types.ErrCodeConfig, errors.New("unknown alias"))
	_, code = GetInnerErrorAndExitCode(errors.Wrap(configErr, "resolving endpoint"))
	assert.Equal(t, ExitCodeConfigError, code)

	_, code = GetInnerErrorAndExitCode(types.NewForkError(types.ErrCodeRemoteRpc, nil))
	assert.Equal(t, ExitCodeRemoteError, code)
	_, code = GetInnerErrorAndExitCode(types.NewForkError(types.ErrCodeSerialization, nil))
	assert.Equal(t, ExitCodeRemoteError, code)
	_, code = GetInnerErrorAndExitCode(types.NewForkError(types.ErrCodeNoActiveFork, nil))
	assert.Equal(t, ExitCodeGeneralError, code)
}
