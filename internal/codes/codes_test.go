package codes

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, Success},
		{"plain error", errors.New("boom"), General},
		{"compile", Fail(StageCompile, errors.New("x")), 20},
		{"wrapped link", fmt.Errorf("build: %w", Fail(StageLink, errors.New("x"))), 21},
		{"unknown stage", Fail(Stage("other"), errors.New("x")), General},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestStageError(t *testing.T) {
	cause := errors.New("objdump missing")
	err := Fail(StageCheck, cause)

	assert.Equal(t, "check failed: objdump missing", err.Error())
	assert.ErrorIs(t, err, cause)

	var stageErr *StageError
	assert.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &stageErr)
	assert.Equal(t, StageCheck, stageErr.Stage)
}

func TestGetErrorMessage(t *testing.T) {
	assert.Equal(t, "Link errors", GetErrorMessage(21))
	assert.Equal(t, "Unknown error", GetErrorMessage(99))
	assert.True(t, IsSuccess(0))
	assert.False(t, IsSuccess(20))
}
