// Package validation guards provider calls: phone normalization, amount reconciliation and
// structural checks on checkout payloads.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"paycore/internal/apperr"
	"paycore/pkg/payment"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// RequireCheckoutFields checks the underwriting data BNPL providers need: consumer, billing
// and shipping addresses, an itemized cart and merchant callback URLs.
func RequireCheckoutFields(req payment.CheckoutRequest) error {
	return toAppErr(validate.Struct(req))
}

// RequireCallbackURLs is the minimum every hosted checkout needs.
func RequireCallbackURLs(urls payment.MerchantURLs) error {
	return toAppErr(validate.Struct(urls))
}

func toAppErr(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Wrap(apperr.Invalid, "invalid checkout payload", err)
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required", "min":
		return apperr.MissingField(field)
	default:
		return &apperr.Error{
			Kind:    apperr.IncompleteCheckoutData,
			Message: "invalid value for field: " + field,
			Field:   field,
		}
	}
}
