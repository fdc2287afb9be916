package server

import (
	"reflect"
	"regexp"

	"gopkg.in/go-playground/validator.v9"

	"github.com/icon-project/goagree/chain"
)

var addressRegex = regexp.MustCompile("^hx[0-9a-f]{40}$")

type Validator struct {
	validator *validator.Validate
}

func NewValidator() *Validator {
	v := &Validator{
		validator: validator.New(),
	}

	v.RegisterAlias("optional", "omitempty")

	v.RegisterValidation("t_addr", isAddress)
	v.RegisterValidation("t_tx", isTransaction)

	return v
}

func (v *Validator) Validate(i interface{}) error {
	return v.validator.Struct(i)
}

func (v *Validator) RegisterValidation(tag string, fn validator.Func) {
	_ = v.validator.RegisterValidation(tag, fn)
}

func (v *Validator) RegisterAlias(alias string, tags string) {
	v.validator.RegisterAlias(alias, tags)
}

func isAddress(fl validator.FieldLevel) bool {
	return addressRegex.MatchString(fl.Field().String())
}

func isTransaction(fl validator.FieldLevel) bool {
	f := fl.Field()
	if f.Kind() != reflect.Slice {
		return false
	}
	return f.Len() > 0 && f.Len() <= chain.MaxTxSize
}
