package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "1.0", FormatSeconds(time.Second))
	assert.Equal(t, "0.25", FormatSeconds(250*time.Millisecond))
	assert.Equal(t, "0.0", FormatSeconds(0))
}

func TestTimeoutErrorUsesConfiguredSeconds(t *testing.T) {
	err := &TimeoutError{Timeout: 123456789 * time.Nanosecond, Seconds: 0.1234567891}
	assert.Equal(t, "Timed out after 0.1234567891 sec.", err.Error())
	assert.Equal(t, "Timed out after 1.0 sec.", (&TimeoutError{Timeout: time.Second}).Error())
}

func TestRecoverableVocabulary(t *testing.T) {
	cases := []struct {
		err         error
		recoverable bool
	}{
		{&TimeoutError{Timeout: time.Second}, true},
		{&ExternalProcessError{ReturnCode: 3, Soft: true}, true},
		{&ExternalProcessError{ReturnCode: 3}, false},
		{&CommandNotFoundError{Command: "x"}, false},
		{&FileContractError{Phase: "input", Path: "a"}, false},
		{&ConfigurationError{Reason: "Empty command list"}, false},
		{context.Canceled, false},
		{fmt.Errorf("batch: %w", &TimeoutError{}), true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.recoverable, IsRecoverable(tc.err), "%v", tc.err)
		assert.Equal(t, !tc.recoverable, IsFatal(tc.err), "%v", tc.err)
	}
	assert.False(t, IsFatal(nil))
}

func TestExternalProcessErrorMessage(t *testing.T) {
	err := &ExternalProcessError{
		Command:    []string{"python", "solver.py"},
		ReturnCode: 7,
		Output:     "Traceback\nValueError: bad\n",
	}
	assert.Equal(t, "external code 'python solver.py' failed: return_code = 7\nError Output:\nTraceback\nValueError: bad", err.Error())

	bare := &ExternalProcessError{Command: []string{"x"}, ReturnCode: 1}
	assert.Equal(t, "external code 'x' failed: return_code = 1", bare.Error())
}

func TestEmitDefaultsLevel(t *testing.T) {
	var got []Event
	logger := loggerFunc(func(e Event) error {
		got = append(got, e)
		return nil
	})
	assert.NoError(t, Emit(logger, Event{EventType: "x"}))
	assert.NoError(t, Emit(nil, Event{EventType: "y"}))
	assert.Equal(t, []Event{{Level: "info", EventType: "x"}}, got)
}

type loggerFunc func(Event) error

func (f loggerFunc) Emit(e Event) error { return f(e) }
