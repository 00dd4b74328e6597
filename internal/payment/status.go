package payment

import (
	"github.com/frahmantamala/momo-collections/internal/core/datamodel/payment"
	gw "github.com/frahmantamala/momo-collections/internal/core/datamodel/paymentgateway"
)

var gatewayStatuses = map[string]string{
	gw.StatusPending:    payment.StatusPending,
	gw.StatusProcessing: payment.StatusProcessing,
	gw.StatusSuccessful: payment.StatusSuccessful,
	gw.StatusFailed:     payment.StatusFailed,
	gw.StatusCancelled:  payment.StatusCancelled,
	gw.StatusSandbox:    payment.StatusSandbox,
}

// MapGatewayStatus is the single translation point from vendor status
// strings. Unrecognised values map to PENDING and report known=false so
// callers can log them.
func MapGatewayStatus(vendorStatus string) (status string, known bool) {
	if s, ok := gatewayStatuses[vendorStatus]; ok {
		return s, true
	}
	return payment.StatusPending, false
}

func IsTerminal(status string) bool {
	switch status {
	case payment.StatusSuccessful, payment.StatusFailed, payment.StatusCancelled, payment.StatusSandbox:
		return true
	}
	return false
}

// transitionSources lists the statuses a payment may be in for a move to
// target to apply. Nothing moves back into PENDING.
func transitionSources(target string) []string {
	switch target {
	case payment.StatusProcessing:
		return []string{payment.StatusPending}
	case payment.StatusSuccessful, payment.StatusFailed, payment.StatusCancelled, payment.StatusSandbox:
		return []string{payment.StatusPending, payment.StatusProcessing}
	}
	return nil
}

func canCancel(status string) bool {
	return status == payment.StatusPending || status == payment.StatusProcessing
}
