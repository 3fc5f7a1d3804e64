package errors_test

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/optplay/internal/errors"
	"github.com/copyleftdev/optplay/internal/logging"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *errors.Error
		want string
	}{
		{"message", errors.New("not found"), "not found"},
		{"formatted", errors.Errorf("run %d", 7), "run 7"},
		{"operation and component", errors.New("bad").WithOperation("load").WithComponent("config"),
			"bad: operation=load, component=config"},
		{"wrapped", errors.Wrap(stderrors.New("eof"), "read body"), "read body: eof"},
		{"wrapped formatted", errors.Wrapf(stderrors.New("eof"), "read %s", "body").WithComponent("server"),
			"read body, component=server: eof"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
			assert.NotEmpty(t, tt.err.StackTrace())
		})
	}
}

func TestWrapChain(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, "x"))
	assert.Nil(t, errors.Wrapf(nil, "x %d", 1))

	sentinel := errors.New("optimization not found")
	wrapped := errors.Wrapf(sentinel, "optimization %q", "abc")
	outer := fmt.Errorf("handler: %w", wrapped)

	assert.True(t, errors.Is(outer, sentinel))
	assert.Same(t, sentinel, errors.Unwrap(wrapped))
	assert.Empty(t, sentinel.Component, "wrapping must not mutate the cause")

	var target *errors.Error
	require.True(t, errors.As(outer, &target))
	assert.Same(t, wrapped, target)

	assert.True(t, errors.Is(errors.Wrap(context.Canceled, "run"), context.Canceled))
}

func TestFromPanic(t *testing.T) {
	cause := stderrors.New("index out of range")

	tests := []struct {
		name string
		rec  interface{}
		want string
	}{
		{"error", cause, "panic: index out of range"},
		{"string", "boom", "panic: boom"},
		{"other", 42, "panic: 42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *errors.Error
			func() {
				defer func() { err = errors.FromPanic(recover()) }()
				panic(tt.rec)
			}()
			assert.Equal(t, tt.want, err.Error())
			assert.NotEmpty(t, err.StackTrace())
		})
	}

	var err *errors.Error
	func() {
		defer func() { err = errors.FromPanic(recover()) }()
		panic(cause)
	}()
	assert.True(t, errors.Is(err, cause))
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.DebugLevel, &buf)

	handler := errors.RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/functions?x=1", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), "Recovered from panic")
	assert.Contains(t, buf.String(), "handler exploded")

	abort := errors.RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		abort.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		level   string
		message string
	}{
		{"ok", http.StatusOK, "", ""},
		{"client error", http.StatusBadRequest, "WARN", "Request rejected"},
		{"server error", http.StatusInternalServerError, "ERROR", "Request failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := logging.New(logging.DebugLevel, &buf)

			handler := errors.ErrorHandler(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.WriteHeader(http.StatusTeapot)
				_, _ = w.Write([]byte("body"))
			}))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/optimize", nil))
			assert.Equal(t, tt.status, rec.Code)

			if tt.level == "" {
				assert.Empty(t, buf.String())
				return
			}
			line := buf.String()
			assert.Equal(t, 1, strings.Count(line, "\n"))
			assert.Contains(t, line, `"level":"`+tt.level+`"`)
			assert.Contains(t, line, tt.message)
			assert.Contains(t, line, fmt.Sprintf(`"status":%d`, tt.status))
		})
	}
}
