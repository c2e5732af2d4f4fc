package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		name  string
		class ErrorClass
		want  string
	}{
		{name: "transient", class: ErrorTransient, want: "transient"},
		{name: "invalid", class: ErrorInvalid, want: "invalid"},
		{name: "fatal", class: ErrorFatal, want: "fatal"},
		{name: "unknown", class: ErrorClass(99), want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.class.String())
		})
	}
}

func TestWrap(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, "Loader", "Load", "read manifest")
	require.Error(t, err)
	assert.Equal(t, "Loader.Load: read manifest failed: boom", err.Error())
	assert.True(t, stderrors.Is(err, base))

	assert.NoError(t, Wrap(nil, "Loader", "Load", "read manifest"))
}

func TestWrapClassified(t *testing.T) {
	base := stderrors.New("boom")

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{name: "transient", wrap: WrapTransient, class: ErrorTransient},
		{name: "invalid", wrap: WrapInvalid, class: ErrorInvalid},
		{name: "fatal", wrap: WrapFatal, class: ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wrap(base, "Gateway", "Start", "bind listener")
			require.Error(t, err)

			var ce *ClassifiedError
			require.True(t, stderrors.As(err, &ce))
			assert.Equal(t, tt.class, ce.Class)
			assert.Equal(t, "Gateway", ce.Component)
			assert.Equal(t, "Start", ce.Operation)
			assert.True(t, stderrors.Is(err, base))

			assert.NoError(t, tt.wrap(nil, "Gateway", "Start", "bind listener"))
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "manifest invalid", err: ErrManifestInvalid, want: true},
		{name: "spec invalid", err: ErrSpecInvalid, want: true},
		{name: "bind failed wrapped", err: fmt.Errorf("healthcheck: %w", ErrBindFailed), want: true},
		{name: "missing config", err: ErrMissingConfig, want: true},
		{name: "not found is not fatal", err: ErrNotFound, want: false},
		{name: "schema violation is not fatal", err: ErrSchemaViolation, want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "not found", err: ErrNotFound, want: true},
		{name: "schema violation", err: ErrSchemaViolation, want: true},
		{name: "session not found wrapped", err: fmt.Errorf("send: %w", ErrSessionNotFound), want: true},
		{name: "classified invalid", err: WrapInvalid(stderrors.New("bad"), "Router", "Dispatch", "parse"), want: true},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInvalid(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "connection lost", err: ErrConnectionLost, want: true},
		{name: "context deadline", err: context.DeadlineExceeded, want: true},
		{name: "timeout message pattern", err: stderrors.New("read timeout on socket"), want: true},
		{name: "classified fatal", err: WrapFatal(stderrors.New("bad"), "Host", "Run", "setup"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorFatal, Classify(ErrManifestInvalid))
	assert.Equal(t, ErrorInvalid, Classify(ErrNotFound))
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("mystery")))
	assert.Equal(t, ErrorTransient, Classify(nil))
}
