package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ErrorFrame is one entry of an ErrorStack: the Go type name of the error
// that produced it, plus its message.
type ErrorFrame struct {
	TypeName string
	Message string
}

// ErrorStack is the structured error envelope for a failed config push;
// the kernel sends each frame back as one ConfigPushResult.Errors entry.
// It flattens whatever error tree validation produced (go-multierror
// included) into an ordered, wire-friendly list.
type ErrorStack struct {
	Frames []ErrorFrame
}

func (e *ErrorStack) Error() string {
	parts := make([]string, len(e.Frames))
	for i, f := range e.Frames {
		parts[i] = f.TypeName + ": " + f.Message
	}
	return strings.Join(parts, "; ")
}

// NewErrorStack flattens err into an ErrorStack. A *multierror.Error
// contributes one frame per wrapped error; any other error contributes a
// single frame named after its concrete Go type.
func NewErrorStack(err error) *ErrorStack {
	if err == nil {
		return &ErrorStack{}
	}

	stack := &ErrorStack{}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, wrapped := range merr.Errors {
			stack.Frames = append(stack.Frames, frameFor(wrapped))
		}
		return stack
	}

	var flowErr *FlowValidationError
	if errors.As(err, &flowErr) {
		for _, p := range flowErr.Problems {
			stack.Frames = append(stack.Frames, ErrorFrame{TypeName: "FlowValidationError", Message: p})
		}
		return stack
	}

	stack.Frames = append(stack.Frames, frameFor(err))
	return stack
}

func frameFor(err error) ErrorFrame {
	return ErrorFrame{TypeName: fmt.Sprintf("%T", err), Message: err.Error()}
}
