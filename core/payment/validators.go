package payment

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/sikshyahq/sikshya/core"
)

var (
	payMethodTag  = "paymethod"
	payMethodText = "invalid payment method"

	payRefTypeTag  = "payreftype"
	payRefTypeText = "invalid payment reference type"

	amountTag  = "amount"
	amountText = "amount must be a positive number"
)

// InitValidators registers this package's custom validators and translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(payMethodTag, payMethodValidation)
	core.RegisterCustomTranslation(validate, translator, payMethodTag, payMethodText)

	_ = validate.RegisterValidation(payRefTypeTag, payRefTypeValidation)
	core.RegisterCustomTranslation(validate, translator, payRefTypeTag, payRefTypeText)

	validate.RegisterStructValidation(claimStructValidation, Claim{})
	core.RegisterCustomTranslation(validate, translator, amountTag, amountText)
}

// Custom Validators

func payMethodValidation(fl validator.FieldLevel) bool {
	return contains(Methods, fl.Field().String())
}

func payRefTypeValidation(fl validator.FieldLevel) bool {
	return contains(RefTypes, fl.Field().String())
}

// claimStructValidation checks that the claimed amount is a positive number.
func claimStructValidation(sl validator.StructLevel) {
	claim, ok := sl.Current().Interface().(Claim)
	if !ok {
		return
	}
	if claim.Amount == "" {
		return // covered by the required tag
	}
	if _, ok := claim.AmountValue(); !ok {
		sl.ReportError(claim.Amount, "amount", "Amount", amountTag, "")
	}
}
