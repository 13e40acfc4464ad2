package apierr

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestKindOf_HTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{500, KindServerError},
		{503, KindServerError},
		{429, KindRateLimited},
		{408, KindTimeout},
		{401, KindAuth},
		{403, KindAuth},
		{404, KindNotFound},
		{400, KindBadRequest},
		{422, KindBadRequest},
	}

	for _, tc := range cases {
		err := FromStatus("github", tc.status, "test")
		if got := KindOf(err); got != tc.want {
			t.Errorf("status %d: expected %s, got %s", tc.status, tc.want, got)
		}
	}
}

func TestKindOf_WrappedAPIError(t *testing.T) {
	err := fmt.Errorf("fetch issues: %w", FromStatus("github", 502, "bad gateway"))
	if got := KindOf(err); got != KindServerError {
		t.Errorf("expected server_error, got %s", got)
	}
}

func TestKindOf_ContextErrors(t *testing.T) {
	if got := KindOf(context.Canceled); got != KindCanceled {
		t.Errorf("expected canceled, got %s", got)
	}
	if got := KindOf(context.DeadlineExceeded); got != KindCanceled {
		t.Errorf("expected canceled, got %s", got)
	}
}

func TestKindOf_SyscallErrors(t *testing.T) {
	if got := KindOf(syscall.ECONNREFUSED); got != KindNetwork {
		t.Errorf("expected network, got %s", got)
	}
	if got := KindOf(syscall.ETIMEDOUT); got != KindTimeout {
		t.Errorf("expected timeout, got %s", got)
	}
}

func TestKindOf_Unknown(t *testing.T) {
	if got := KindOf(errors.New("something else")); got != KindUnknown {
		t.Errorf("expected unknown, got %s", got)
	}
	if got := KindOf(nil); got != KindUnknown {
		t.Errorf("expected unknown for nil, got %s", got)
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := Wrap("claude", inner)
	if !errors.Is(err, inner) {
		t.Error("expected wrapped error to match inner error")
	}
}

func TestAPIError_Error(t *testing.T) {
	err := FromStatus("github", 500, "internal error")
	want := "github api: HTTP 500: internal error"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
