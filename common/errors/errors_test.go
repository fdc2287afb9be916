package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodedError(t *testing.T) {
	e := Errorc(UnknownAuthorityError, "voter is not in the roster")
	assert.Equal(t, UnknownAuthorityError, CodeOf(e))
	assert.True(t, UnknownAuthorityError.Equals(e))
	assert.False(t, InvalidSignatureError.Equals(e))
}

func TestWrapKeepsCode(t *testing.T) {
	e := InvalidMessageError.New("bad round")
	e2 := Wrap(e, "while decoding vote")
	assert.Equal(t, InvalidMessageError, CodeOf(e2))

	e3 := WithCode(e, StaleMessageError)
	assert.Equal(t, StaleMessageError, CodeOf(e3))
	assert.True(t, Is(e3, e))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, Success, CodeOf(nil))
	assert.Equal(t, UnknownError, CodeOf(fmt.Errorf("plain")))
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassNone},
		{"stale", StaleMessageError.Errorf("round %d", 1), ClassTransient},
		{"signature", ErrInvalidSignature, ClassTransient},
		{"equivocation", EquivocationError.New("double vote"), ClassEvidence},
		{"config", FatalConfigError.Wrap(fmt.Errorf("empty"), "roster"), ClassFatal},
		{"alarm", ErrSafetyAlarm, ClassAlarm},
		{"critical", CriticalFormatError.New("broken"), ClassFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassOf(tt.err))
		})
	}
}

func TestFormat(t *testing.T) {
	e := NotProposerError.Errorf("addr=%s", "hx01")
	assert.Equal(t, fmt.Sprintf("E%04d:addr=hx01", NotProposerError), fmt.Sprint(e))
	assert.Equal(t, fmt.Sprintf("E%04d:FatalConfig", FatalConfigError), fmt.Sprint(ErrFatalConfig))
}
