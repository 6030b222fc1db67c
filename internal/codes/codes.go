package codes

import (
	"errors"
	"fmt"
)

// Stage names the part of a build that failed
type Stage string

const (
	StageConfig    Stage = "config"
	StageToolchain Stage = "toolchain"
	StagePrepare   Stage = "prepare"
	StageCompile   Stage = "compile"
	StageLink      Stage = "link"
	StageCheck     Stage = "check"
	StageConvert   Stage = "convert"
	StageGenerate  Stage = "generate"
)

const (
	Success = 0
	General = 1
)

// ExitCodes maps process exit codes to their descriptions
var ExitCodes = map[int]string{
	Success: "Success",
	General: "General failure",
	10:      "Invalid configuration",
	11:      "Toolchain not found",
	12:      "Cannot prepare build directory",
	20:      "Compile errors",
	21:      "Link errors",
	22:      "Binary check failed",
	23:      "Cannot convert binary",
	24:      "Cannot generate npdm or version script",
}

var stageCodes = map[Stage]int{
	StageConfig:    10,
	StageToolchain: 11,
	StagePrepare:   12,
	StageCompile:   20,
	StageLink:      21,
	StageCheck:     22,
	StageConvert:   23,
	StageGenerate:  24,
}

// StageError is returned when a build stage fails.
type StageError struct {
	Stage Stage
	Err   error
}

// Fail wraps err as a failure of stage s.
func Fail(s Stage, err error) *StageError {
	return &StageError{Stage: s, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Code returns the exit code of the stage
func (e *StageError) Code() int {
	if code, ok := stageCodes[e.Stage]; ok {
		return code
	}

	return General
}

// ExitCode returns the process exit code for err
func ExitCode(err error) int {
	if err == nil {
		return Success
	}

	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Code()
	}

	return General
}

// IsSuccess returns true if the exit code indicates a successful build
func IsSuccess(code int) bool {
	return code == Success
}

// GetErrorMessage returns the error message for a given exit code, or a generic message if unknown
func GetErrorMessage(code int) string {
	if msg, ok := ExitCodes[code]; ok {
		return msg
	}

	return "Unknown error"
}
