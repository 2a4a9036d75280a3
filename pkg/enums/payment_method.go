package enums

import "fmt"

// PaymentMethod is the invoice payment method accepted by the backend.
type PaymentMethod string

const (
	PaymentMethodCash      PaymentMethod = "efectivo"
	PaymentMethodDebitCard PaymentMethod = "tarjeta_debito"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodDebitCard,
}

func (p PaymentMethod) String() string {
	return string(p)
}

func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
