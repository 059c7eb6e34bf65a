package ledger

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/feeledger/core"
)

var (
	payMethodTag  = "paymethod"
	payMethodText = "must be one of Cash, Cheque or Online"

	requiredForMethodTag  = "required_for_method"
	requiredForMethodText = "this field is required for this payment method"
)

// InitValidators registers the ledger's custom validations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(payMethodTag, payMethodValidation)
	core.RegisterCustomTranslation(validate, translator, payMethodTag, payMethodText)

	validate.RegisterStructValidation(paymentStructValidation, NewPayment{}, UpdatePayment{})
	core.RegisterCustomTranslation(validate, translator, requiredForMethodTag, requiredForMethodText)
}

func payMethodValidation(fl validator.FieldLevel) bool {
	if m, ok := fl.Field().Interface().(Method); ok {
		return m.IsValid()
	}
	return false
}

// paymentStructValidation checks the method specific fields:
// - Online: deposit date and bank name
// - Cheque: bank name and cheque number
func paymentStructValidation(sl validator.StructLevel) {
	switch p := sl.Current().Interface().(type) {
	case NewPayment:
		validateMethodFields(sl, p.Method, !p.DepositDate.IsZero(), p.BankName, p.ChequeNo)
	case UpdatePayment:
		validateMethodFields(sl, p.Method, !p.DepositDate.IsZero(), p.BankName, p.ChequeNo)
	}
}

func validateMethodFields(sl validator.StructLevel, method Method, hasDepositDate bool, bankName, chequeNo string) {
	switch method {
	case MethodOnline:
		if !hasDepositDate {
			sl.ReportError(nil, "deposit_date", "DepositDate", requiredForMethodTag, "")
		}
		if bankName == "" {
			sl.ReportError(bankName, "bank_name", "BankName", requiredForMethodTag, "")
		}
	case MethodCheque:
		if bankName == "" {
			sl.ReportError(bankName, "bank_name", "BankName", requiredForMethodTag, "")
		}
		if chequeNo == "" {
			sl.ReportError(chequeNo, "cheque_no", "ChequeNo", requiredForMethodTag, "")
		}
	}
}
