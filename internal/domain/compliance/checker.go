package compliance

import (
	"context"
	"fmt"
)

// FailurePolicy decides the verdict recorded when a checker cannot reach one.
type FailurePolicy int

const (
	// FailOpen records a failed check as compliant.
	FailOpen FailurePolicy = iota
	// FailClosed records a failed check as non-compliant.
	FailClosed
)

func (p FailurePolicy) String() string {
	switch p {
	case FailOpen:
		return "fail_open"
	case FailClosed:
		return "fail_closed"
	default:
		return "unknown"
	}
}

// Checker queries one compliance source.
//
// CheckNumber returns a result when the source reached a verdict. On failure
// it returns an error, optionally together with a partial result whose
// details are kept. Converting failures into results is left to Settle.
type Checker interface {
	Name() string
	FailurePolicy() FailurePolicy
	CheckNumber(ctx context.Context, phone string, lead *LeadContext) (*Result, error)
}

// Settle turns a checker outcome into a decided result. A nil error returns
// the result as is. An error yields a result whose verdict follows policy,
// whose Error and Reasons carry the message and whose details keep anything
// the partial result had collected.
func Settle(source string, policy FailurePolicy, phone string, res *Result, err error) Result {
	if err == nil && res != nil {
		out := *res
		if out.Source == "" {
			out.Source = source
		}
		if out.PhoneNumber == "" {
			out.PhoneNumber = phone
		}
		if out.Reasons == nil {
			out.Reasons = []string{}
		}
		if out.Details == nil {
			out.Details = map[string]any{}
		}
		return out
	}
	if err == nil {
		err = fmt.Errorf("%s returned no result", source)
	}

	out := NewResult(source, phone, policy == FailOpen)
	if res != nil {
		for k, v := range res.Details {
			out.Details[k] = v
		}
		out.RawResponse = res.RawResponse
		if res.Reasons != nil && policy == FailClosed {
			out.Reasons = append(out.Reasons, res.Reasons...)
		}
	}
	out.Error = err.Error()
	if len(out.Reasons) == 0 {
		out.Reasons = append(out.Reasons, err.Error())
	}
	return *out
}
