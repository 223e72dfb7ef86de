package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating an NBuildError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *NBuildError {
	if err == nil {
		return nil
	}

	var ne *NBuildError
	if errors.As(err, &ne) {
		var ctx map[string]interface{}
		if ne.Context != nil {
			ctx = make(map[string]interface{}, len(ne.Context))
			for k, v := range ne.Context {
				ctx[k] = v
			}
		}
		return &NBuildError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       ne,
			Context:     ctx,
			Step:        ne.Step,
			FilePath:    ne.FilePath,
			Recoverable: ne.Recoverable,
		}
	}

	return &NBuildError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeBuild,
	}
}

// WrapBuild wraps an error as a build error for a pipeline step
func WrapBuild(err error, code, message, step string) *NBuildError {
	ne := Wrap(err, ErrorTypeBuild, code, message)
	if ne != nil {
		ne.Step = step
	}
	return ne
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *NBuildError {
	ne := Wrap(err, ErrorTypeIO, code, message)
	if ne != nil {
		ne.Recoverable = false
	}
	return ne
}

// WrapProcess wraps an error about a child process
func WrapProcess(err error, code, message string) *NBuildError {
	ne := Wrap(err, ErrorTypeProcess, code, message)
	if ne != nil {
		ne.Recoverable = false
	}
	return ne
}
