package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("disk gone")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: KindUnknown},
		{name: "plain", err: base, want: KindUnknown},
		{name: "storage", err: Storage("mark", base), want: KindStorage},
		{name: "wrapped", err: fmt.Errorf("ledger: %w", NotFound("get", "student %s", "x")), want: KindNotFound},
		{name: "validation", err: Validation("summary", "from after to"), want: KindValidation},
		{name: "external", err: External("publish", base), want: KindExternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := Storage("attendance.mark", base)

	assert.Equal(t, "attendance.mark: boom", err.Error())
	assert.ErrorIs(t, err, base)
	assert.True(t, Is(err, KindStorage))
	assert.False(t, Is(err, KindExternal))
}

func TestNilHelpers(t *testing.T) {
	assert.NoError(t, Storage("op", nil))
	assert.NoError(t, External("op", nil))
}

func TestFieldsOf(t *testing.T) {
	err := E(KindConflict, "register", errors.New("duplicate"), FieldError{Field: "roll_no", Error: "taken"})
	assert.Equal(t, []FieldError{{Field: "roll_no", Error: "taken"}}, FieldsOf(err))
	assert.Nil(t, FieldsOf(errors.New("x")))
	assert.Equal(t, "register: duplicate", err.Error())
	assert.Equal(t, "conflict", E(KindConflict, "", nil).Error())
}
