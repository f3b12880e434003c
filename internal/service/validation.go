package service

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"

	"linknote-server/internal/domain"
)

type recordInput struct {
	Key     string            `validate:"required,recordkey,notsystem"`
	Type    domain.RecordType `validate:"required,oneof=uri note"`
	Content string            `validate:"required"`
}

// NewValidator returns a validator with the record tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("recordkey", func(fl validator.FieldLevel) bool {
		return domain.IsValidKey(fl.Field().String())
	})
	v.RegisterValidation("notsystem", func(fl validator.FieldLevel) bool {
		return !domain.IsSystemKey(fl.Field().String())
	})
	v.RegisterValidation("redirecturl", func(fl validator.FieldLevel) bool {
		return isRedirectURL(fl.Field().String())
	})
	return v
}

func isRedirectURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// validateRecord returns human readable problems with one record, or nil.
func validateRecord(v *validator.Validate, key string, r *domain.Record) []string {
	var msgs []string

	in := recordInput{Key: key, Type: r.Type, Content: r.Content}
	if err := v.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []string{err.Error()}
		}
		for _, fe := range verrs {
			msgs = append(msgs, describe(key, fe))
		}
	}

	if r.Type == domain.RecordTypeURI && r.Content != "" {
		if err := v.Var(r.Content, "redirecturl"); err != nil {
			msgs = append(msgs, fmt.Sprintf("key %q: invalid redirect URL %q", key, r.Content))
		}
	}

	return msgs
}

func describe(key string, fe validator.FieldError) string {
	switch fe.Field() + "/" + fe.Tag() {
	case "Key/required":
		return "key must not be empty"
	case "Key/recordkey":
		return fmt.Sprintf("invalid key %q: use 1-%d letters, digits, '-' or '_'", key, domain.MaxKeyLength)
	case "Key/notsystem":
		return fmt.Sprintf("key %q is reserved", key)
	case "Type/required", "Type/oneof":
		return fmt.Sprintf("key %q: unknown type %q", key, fe.Value())
	case "Content/required":
		return fmt.Sprintf("key %q: content must not be empty", key)
	default:
		return fmt.Sprintf("key %q: %s failed on %s", key, fe.Field(), fe.Tag())
	}
}
