package validator

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type contact struct {
	Name  string    `validate:"required"`
	Phone string    `validate:"required,phone"`
	Ref   uuid.UUID `validate:"uuid_required"`
}

func TestValidateStruct(t *testing.T) {
	ok := contact{Name: "Wanjiku", Phone: "0712 345 678", Ref: uuid.New()}
	assert.Empty(t, ValidateStruct(ok))

	bad := contact{Phone: "12345"}
	errs := ValidateStruct(bad)
	tags := map[string]string{}
	for _, e := range errs {
		tags[e.FailedField] = e.Tag
	}
	assert.Equal(t, "required", tags["contact.Name"])
	assert.Equal(t, "phone", tags["contact.Phone"])
	assert.Equal(t, "uuid_required", tags["contact.Ref"])
	assert.Contains(t, Describe(errs), "contact.Phone failed phone")
}

func TestToMSISDN(t *testing.T) {
	cases := map[string]string{
		"0712345678":    "254712345678",
		"+254712345678": "254712345678",
		"254112345678":  "254112345678",
		"0712-345-678":  "254712345678",
	}
	for in, want := range cases {
		assert.Equal(t, want, ToMSISDN(in), in)
	}
}
