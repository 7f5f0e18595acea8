package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classattend/internal/apperr"
)

type sample struct {
	RollNo string `json:"roll_no" validate:"required,min=2,max=20,rollno"`
	Name   string `json:"name" validate:"required,personname"`
	Email  string `json:"email" validate:"omitempty,email"`
	Note   string `json:"note" validate:"omitempty,notblank"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name   string
		in     sample
		fields []string
	}{
		{"valid", sample{RollNo: "ENTC-01", Name: "Asha O'Neil"}, nil},
		{"bad roll", sample{RollNo: "R 1", Name: "Asha"}, []string{"roll_no"}},
		{"short roll", sample{RollNo: "R", Name: "Asha"}, []string{"roll_no"}},
		{"digits in name", sample{RollNo: "R1", Name: "Asha2"}, []string{"name"}},
		{"bad email", sample{RollNo: "R1", Name: "Asha", Email: "nope"}, []string{"email"}},
		{"blank note", sample{RollNo: "R1", Name: "Asha", Note: "   "}, []string{"note"}},
		{"missing everything", sample{}, []string{"roll_no", "name"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Struct("test", tc.in)
			if tc.fields == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			var got []string
			for _, f := range apperr.FieldsOf(err) {
				got = append(got, f.Field)
				assert.NotEmpty(t, f.Error)
			}
			assert.Equal(t, tc.fields, got)
		})
	}
}
