package checkout

// Payment method types that settle out-of-band. The processor reports them as
// "processing" at confirmation time.
var asyncPaymentMethods = map[string]struct{}{
	"us_bank_account": {},
	"ach_debit":       {},
	"sepa_debit":      {},
	"bacs_debit":      {},
	"au_becs_debit":   {},
	"acss_debit":      {},
}

// IsAsyncPaymentMethod reports whether the payment method type settles asynchronously.
func IsAsyncPaymentMethod(methodType string) bool {
	_, ok := asyncPaymentMethods[methodType]
	return ok
}

// Processor intent statuses.
const (
	IntentSucceeded             = "succeeded"
	IntentProcessing            = "processing"
	IntentRequiresPaymentMethod = "requires_payment_method"
	IntentRequiresAction        = "requires_action"
	IntentRequiresConfirmation  = "requires_confirmation"
	IntentCanceled              = "canceled"
)

// ClassifyIntentStatus maps a processor status to an outcome. A "processing"
// status for an asynchronous method counts as accepted and is reported as
// pending; the caller decides when to surface it as succeeded.
func ClassifyIntentStatus(status, methodType string) Outcome {
	switch status {
	case IntentSucceeded:
		return OutcomeSucceeded
	case IntentProcessing:
		if IsAsyncPaymentMethod(methodType) {
			return OutcomePending
		}
		return OutcomeFailed
	default:
		return OutcomeFailed
	}
}
