package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"trafficlens/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "extraction", "capture", "ffmpeg failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"extraction", "capture", "ffmpeg failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutDetail(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker by default, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestFailureCategory(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrValidation, "analysis", "request", "no frames", nil), "validation"},
		{services.Wrap(services.ErrConfiguration, "sampler", "open", "unknown backend", nil), "configuration"},
		{services.Wrap(services.ErrExternalTool, "sampler", "capture", "decode", errors.New("exit 1")), "external_tool"},
		{fmt.Errorf("run: %w", context.Canceled), "canceled"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("other"), "transient"},
	}
	for _, tc := range cases {
		if got := services.FailureCategory(tc.err); got != tc.want {
			t.Fatalf("FailureCategory(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
