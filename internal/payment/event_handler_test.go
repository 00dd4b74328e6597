package payment_test

import (
	"context"
	"log/slog"
	"os"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/frahmantamala/momo-collections/internal/core/datamodel/payment"
	"github.com/frahmantamala/momo-collections/internal/core/events"
	paymentPkg "github.com/frahmantamala/momo-collections/internal/payment"
)

type terminalObservation struct {
	status   string
	currency string
	amount   int64
}

type fakeRecorder struct {
	seen []terminalObservation
}

func (f *fakeRecorder) ObserveTerminal(status, currency string, amount int64) {
	f.seen = append(f.seen, terminalObservation{status, currency, amount})
}

var _ = ginkgo.Describe("EventHandler", func() {
	var (
		bus      *events.EventBus
		recorder *fakeRecorder
	)

	ginkgo.BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		bus = events.NewEventBus(logger)
		recorder = &fakeRecorder{}
		paymentPkg.NewEventHandler(logger).WithMetrics(recorder).RegisterEventHandlers(bus)
	})

	ginkgo.It("should record completed payments with their amount", func() {
		evt := events.NewPaymentCompletedEvent(1, "apt-1", "ref-1", "uuid-1", 25000, "UGX", "MP-1")

		gomega.Expect(bus.PublishSync(context.Background(), evt)).To(gomega.Succeed())

		gomega.Expect(recorder.seen).To(gomega.ConsistOf(terminalObservation{payment.StatusSuccessful, "UGX", 25000}))
	})

	ginkgo.It("should record failures by status", func() {
		evt := events.NewPaymentFailedEvent(2, "apt-1", "ref-2", "uuid-2", 25000, payment.StatusCancelled, "cancelled by user")

		gomega.Expect(bus.PublishSync(context.Background(), evt)).To(gomega.Succeed())

		gomega.Expect(recorder.seen).To(gomega.ConsistOf(terminalObservation{payment.StatusCancelled, "", 0}))
	})

	ginkgo.It("should reject events of the wrong shape", func() {
		handler := paymentPkg.NewEventHandler(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
		wrong := events.NewPaymentFailedEvent(2, "apt-1", "ref-2", "uuid-2", 1, payment.StatusFailed, "x")

		gomega.Expect(handler.HandlePaymentCompleted(context.Background(), wrong)).NotTo(gomega.Succeed())
	})
})
