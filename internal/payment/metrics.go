package payment

// Metrics receives one observation per initiation attempt and per callback.
type Metrics interface {
	PaymentInitiated(result string)
	CallbackReconciled(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) PaymentInitiated(string)   {}
func (nopMetrics) CallbackReconciled(string) {}
