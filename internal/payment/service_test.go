package payment_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/momo-collections/internal"
	appointmentDatamodel "github.com/frahmantamala/momo-collections/internal/core/datamodel/appointment"
	patientDatamodel "github.com/frahmantamala/momo-collections/internal/core/datamodel/patient"
	"github.com/frahmantamala/momo-collections/internal/core/datamodel/payment"
	gw "github.com/frahmantamala/momo-collections/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/momo-collections/internal/core/events"
	paymentPkg "github.com/frahmantamala/momo-collections/internal/payment"
	"github.com/frahmantamala/momo-collections/internal/paymentgateway"
	"github.com/frahmantamala/momo-collections/internal/reference"
)

func appErrorOf(err error) *internal.AppError {
	appErr, ok := internal.IsAppError(err)
	Expect(ok).To(BeTrue(), "expected an AppError, got %v", err)
	return appErr
}

var _ = Describe("PaymentService", func() {
	var (
		service      *paymentPkg.Service
		repo         *mockPaymentRepository
		gateway      *mockGateway
		appointments *mockAppointments
		payers       *mockPayers
		publisher    *mockPublisher
		nextRef      string
		ctx          context.Context
		input        paymentPkg.CreateCollectionInput
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMockPaymentRepository()
		gateway = &mockGateway{createResponse: gatewayResponse("uuid-1", gw.StatusPending, "")}
		appointments = newMockAppointments()
		appointments.appointments["apt-1"] = &appointmentDatamodel.Appointment{ID: "apt-1", PatientID: "pat-1"}
		appointments.appointments["apt-2"] = &appointmentDatamodel.Appointment{ID: "apt-2", PatientID: "pat-2"}
		payers = &mockPayers{payers: map[string]*patientDatamodel.Patient{
			"pat-1": {ID: "pat-1", FullName: "Amina", PhoneNumber: "0700123456"},
			"pat-2": {ID: "pat-2", FullName: "Okello", PhoneNumber: "12345"},
		}}
		publisher = &mockPublisher{}
		nextRef = "ref-0001"

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = paymentPkg.NewService(
			repo, gateway, appointments, payers,
			reference.GeneratorFunc(func() string { return nextRef }),
			publisher,
			paymentPkg.Settings{MinAmount: 500, MaxAmount: 10_000_000, Country: "UG", Currency: "UGX", CallbackURL: "https://api.example.com/api/v1/webhooks/collections"},
			logger,
		)

		input = paymentPkg.CreateCollectionInput{
			Amount:        25000,
			PhoneNumber:   "0770123456",
			AppointmentID: "apt-1",
			PayerID:       "pat-1",
			Description:   "Consultation",
		}
	})

	Describe("CreateCollection", func() {
		It("creates a PENDING MTN payment with a formatted phone", func() {
			// When
			p, err := service.CreateCollection(ctx, input)

			// Then
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusPending))
			Expect(p.PaymentMethod).To(Equal("MTN"))
			Expect(p.PhoneNumber).To(Equal("+256770123456"))
			Expect(p.CompletedAt).To(BeNil())
			Expect(*p.ExternalTransactionID).To(Equal("uuid-1"))
			Expect(p.Reference).To(Equal("ref-0001"))
			Expect(p.EstimatedSettlement).NotTo(BeNil())
			Expect(p.InitiatedAt).To(BeTemporally("==", time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)))
			Expect(string(p.RawGatewayResponse)).To(ContainSubstring("success"))

			Expect(gateway.lastRequest.PhoneNumber).To(Equal("+256770123456"))
			Expect(gateway.lastRequest.Country).To(Equal("UG"))
			Expect(gateway.lastRequest.CallbackURL).To(HaveSuffix("/webhooks/collections"))
			Expect(appointments.attached["apt-1"]).To(Equal([]int64{p.ID}))
		})

		DescribeTable("enforces inclusive amount bounds",
			func(amount int64, ok bool) {
				input.Amount = amount
				_, err := service.CreateCollection(ctx, input)
				if ok {
					Expect(err).NotTo(HaveOccurred())
					return
				}
				Expect(appErrorOf(err).Type).To(Equal(internal.ErrorTypeValidation))
				Expect(gateway.createCalls).To(Equal(0))
			},
			Entry("499", int64(499), false),
			Entry("500", int64(500), true),
			Entry("10,000,000", int64(10_000_000), true),
			Entry("10,000,001", int64(10_000_001), false),
		)

		It("rejects an unsupported carrier before resolving anything", func() {
			input.PhoneNumber = "0710123456"

			_, err := service.CreateCollection(ctx, input)

			Expect(appErrorOf(err).Code).To(Equal(internal.ErrCodeUnsupportedProvider))
			Expect(gateway.createCalls).To(Equal(0))
		})

		It("reports an unknown appointment", func() {
			input.AppointmentID = "apt-missing"

			_, err := service.CreateCollection(ctx, input)

			Expect(errors.Is(err, internal.ErrAppointmentNotFound)).To(BeTrue())
			Expect(gateway.createCalls).To(Equal(0))
		})

		It("reports an unknown payer", func() {
			input.PayerID = "pat-missing"

			_, err := service.CreateCollection(ctx, input)

			Expect(errors.Is(err, internal.ErrPayerNotFound)).To(BeTrue())
		})

		It("rejects an appointment that belongs to someone else", func() {
			input.AppointmentID = "apt-2"

			_, err := service.CreateCollection(ctx, input)

			Expect(appErrorOf(err).Code).To(Equal(internal.ErrCodeAppointmentPayerMismatch))
			Expect(gateway.createCalls).To(Equal(0))
		})

		It("falls back to the payer's phone", func() {
			input.PhoneNumber = ""

			p, err := service.CreateCollection(ctx, input)

			Expect(err).NotTo(HaveOccurred())
			Expect(p.PhoneNumber).To(Equal("+256700123456"))
			Expect(p.PaymentMethod).To(Equal("AIRTEL"))
		})

		It("rejects a payer whose stored phone is invalid", func() {
			input.AppointmentID = "apt-2"
			input.PayerID = "pat-2"
			input.PhoneNumber = ""

			_, err := service.CreateCollection(ctx, input)

			Expect(appErrorOf(err).Code).To(Equal(internal.ErrCodeInvalidPhone))
		})

		It("rejects a payer with no phone on file before calling the gateway", func() {
			// Given
			payers.payers["pat-3"] = &patientDatamodel.Patient{ID: "pat-3", FullName: "Nakato", PhoneNumber: ""}
			appointments.appointments["apt-3"] = &appointmentDatamodel.Appointment{ID: "apt-3", PatientID: "pat-3"}
			input.AppointmentID = "apt-3"
			input.PayerID = "pat-3"
			input.PhoneNumber = ""

			// When
			p, err := service.CreateCollection(ctx, input)

			// Then
			Expect(p).To(BeNil())
			appErr := appErrorOf(err)
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidPhone))
			Expect(gateway.createCalls).To(Equal(0))
			Expect(repo.payments).To(BeEmpty())
		})

		It("refuses a second collection once the appointment is paid", func() {
			// Given
			paid := "uuid-paid"
			repo.put(&payment.Payment{AppointmentID: "apt-1", PayerID: "pat-1", Amount: 25000, Reference: "ref-paid", ExternalTransactionID: &paid, Status: payment.StatusSuccessful})

			// When
			_, err := service.CreateCollection(ctx, input)

			// Then
			appErr := appErrorOf(err)
			Expect(appErr.Type).To(Equal(internal.ErrorTypeConflict))
			Expect(appErr.Code).To(Equal(internal.ErrCodeDuplicatePayment))
			Expect(gateway.createCalls).To(Equal(0))
		})

		It("rejects a reference collision without calling the gateway", func() {
			existing := "uuid-old"
			repo.put(&payment.Payment{AppointmentID: "apt-9", Reference: "ref-0001", ExternalTransactionID: &existing, Status: payment.StatusFailed})

			_, err := service.CreateCollection(ctx, input)

			Expect(appErrorOf(err).Code).To(Equal(internal.ErrCodeDuplicateReference))
			Expect(gateway.createCalls).To(Equal(0))
		})

		It("propagates the gateway's status code", func() {
			gateway.createError = &paymentgateway.Error{StatusCode: http.StatusUnprocessableEntity, Message: "phone_number: is invalid", Provider: "testpay"}

			_, err := service.CreateCollection(ctx, input)

			appErr := appErrorOf(err)
			Expect(appErr.Code).To(Equal(internal.ErrCodeGatewayError))
			Expect(appErr.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			Expect(appErr.Message).To(Equal("phone_number: is invalid"))
			Expect(repo.payments).To(BeEmpty())
		})

		It("maps an unreachable gateway to 503", func() {
			gateway.createError = &paymentgateway.Error{StatusCode: http.StatusServiceUnavailable, Message: "payment gateway is unreachable", Provider: "testpay"}

			_, err := service.CreateCollection(ctx, input)

			Expect(appErrorOf(err).StatusCode).To(Equal(http.StatusServiceUnavailable))
		})

		It("stores a sandbox collection as SANDBOX without completing it", func() {
			gateway.createResponse = gatewayResponse("uuid-sbx", gw.StatusSandbox, "")

			p, err := service.CreateCollection(ctx, input)

			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusSandbox))
			Expect(p.CompletedAt).To(BeNil())
			Expect(appointments.sent()).To(BeEmpty())
		})

		It("applies a terminal initiate status through reconciliation once", func() {
			gateway.createResponse = gatewayResponse("uuid-fast", gw.StatusSuccessful, "MP-77")

			p, err := service.CreateCollection(ctx, input)

			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusSuccessful))
			Expect(p.CompletedAt).NotTo(BeNil())
			Expect(*p.TransactionID).To(Equal("MP-77"))
			Expect(appointments.sent()).To(HaveLen(1))
			Expect(publisher.types()).To(Equal([]string{events.EventTypePaymentCompleted}))
		})

		It("treats an unrecognised initiate status as PENDING", func() {
			gateway.createResponse = gatewayResponse("uuid-odd", "queued_for_review", "")

			p, err := service.CreateCollection(ctx, input)

			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusPending))
		})
	})

	Describe("UpdateFromWebhook", func() {
		var existing *payment.Payment

		BeforeEach(func() {
			var err error
			existing, err = service.CreateCollection(ctx, input)
			Expect(err).NotTo(HaveOccurred())
		})

		update := func(status string) paymentPkg.WebhookUpdate {
			return paymentPkg.WebhookUpdate{
				ExternalTransactionID: "uuid-1",
				ReportedStatus:        status,
				ProviderReference:     "MP-1",
				RawPayload:            []byte(`{"event":"collection.completed"}`),
			}
		}

		It("completes the payment and notifies the appointment", func() {
			p, err := service.UpdateFromWebhook(ctx, update(gw.StatusSuccessful))

			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusSuccessful))
			Expect(p.CompletedAt).NotTo(BeNil())
			Expect(*p.TransactionID).To(Equal("MP-1"))
			Expect(p.WebhookAttempts).To(Equal(1))
			Expect(appointments.sent()).To(Equal([]notification{{kind: "complete", appointmentID: "apt-1", paymentID: existing.ID}}))
		})

		It("is idempotent under replay", func() {
			first, err := service.UpdateFromWebhook(ctx, update(gw.StatusSuccessful))
			Expect(err).NotTo(HaveOccurred())

			second, err := service.UpdateFromWebhook(ctx, update(gw.StatusSuccessful))
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Status).To(Equal(first.Status))
			Expect(second.CompletedAt).To(Equal(first.CompletedAt))
			Expect(second.TransactionID).To(Equal(first.TransactionID))
			Expect(second.WebhookAttempts).To(Equal(first.WebhookAttempts + 1))
			Expect(appointments.sent()).To(HaveLen(1))
			Expect(repo.transitions).To(Equal(1))
		})

		It("never leaves a terminal status", func() {
			failed, err := service.UpdateFromWebhook(ctx, update(gw.StatusFailed))
			Expect(err).NotTo(HaveOccurred())
			Expect(failed.Status).To(Equal(payment.StatusFailed))
			Expect(*failed.FailureReason).To(Equal("gateway reported failed"))

			for _, s := range []string{gw.StatusSuccessful, gw.StatusPending, gw.StatusProcessing, gw.StatusCancelled} {
				p, err := service.UpdateFromWebhook(ctx, update(s))
				Expect(err).NotTo(HaveOccurred())
				Expect(p.Status).To(Equal(payment.StatusFailed))
				Expect(p.CompletedAt).To(Equal(failed.CompletedAt))
				Expect(p.TransactionID).To(BeNil())
			}
			Expect(appointments.sent()).To(HaveLen(1))
			Expect(appointments.sent()[0].kind).To(Equal("failed"))
		})

		It("moves forward to PROCESSING but not back to PENDING", func() {
			p, err := service.UpdateFromWebhook(ctx, update(gw.StatusProcessing))
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusProcessing))

			p, err = service.UpdateFromWebhook(ctx, update(gw.StatusPending))
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusProcessing))
			Expect(p.WebhookAttempts).To(Equal(2))
		})

		It("fills a late provider reference on a terminal payment", func() {
			_, err := service.UpdateFromWebhook(ctx, paymentPkg.WebhookUpdate{ExternalTransactionID: "uuid-1", ReportedStatus: gw.StatusCancelled})
			Expect(err).NotTo(HaveOccurred())

			p, err := service.UpdateFromWebhook(ctx, update(gw.StatusCancelled))
			Expect(err).NotTo(HaveOccurred())
			Expect(*p.ProviderReference).To(Equal("MP-1"))
		})

		It("reports an unknown transaction as not found", func() {
			u := update(gw.StatusSuccessful)
			u.ExternalTransactionID = "uuid-unknown"

			_, err := service.UpdateFromWebhook(ctx, u)

			Expect(errors.Is(err, internal.ErrPaymentNotFound)).To(BeTrue())
		})

		It("still succeeds when the appointment notification fails", func() {
			appointments.notifyError = errors.New("appointment store down")

			p, err := service.UpdateFromWebhook(ctx, update(gw.StatusSuccessful))

			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusSuccessful))
		})
	})

	Describe("RefreshStatus", func() {
		var existing *payment.Payment

		BeforeEach(func() {
			var err error
			existing, err = service.CreateCollection(ctx, input)
			Expect(err).NotTo(HaveOccurred())
		})

		It("applies the polled status the same way as a webhook", func() {
			gateway.detailResponse = gatewayResponse("uuid-1", gw.StatusSuccessful, "MP-9")

			p, err := service.RefreshStatus(ctx, existing.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusSuccessful))
			Expect(p.WebhookAttempts).To(Equal(0))
			Expect(appointments.sent()).To(HaveLen(1))
		})

		It("returns a FAILED payment unchanged even if the gateway now says successful", func() {
			_, err := service.UpdateFromWebhook(ctx, paymentPkg.WebhookUpdate{ExternalTransactionID: "uuid-1", ReportedStatus: gw.StatusFailed})
			Expect(err).NotTo(HaveOccurred())
			gateway.detailResponse = gatewayResponse("uuid-1", gw.StatusSuccessful, "MP-9")

			p, err := service.RefreshStatus(ctx, existing.ID)

			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status).To(Equal(payment.StatusFailed))
			Expect(gateway.detailCalls).To(Equal(0))
		})

		It("surfaces gateway failures", func() {
			gateway.detailError = &paymentgateway.Error{StatusCode: http.StatusServiceUnavailable, Message: "payment gateway timed out", Provider: "testpay"}

			_, err := service.RefreshStatus(ctx, existing.ID)

			Expect(appErrorOf(err).StatusCode).To(Equal(http.StatusServiceUnavailable))
		})

		It("reports an unknown payment", func() {
			_, err := service.RefreshStatus(ctx, 9999)

			Expect(errors.Is(err, internal.ErrPaymentNotFound)).To(BeTrue())
		})

		It("rejects a payment without a gateway transaction", func() {
			orphan := repo.put(&payment.Payment{AppointmentID: "apt-1", Reference: "ref-orphan", Status: payment.StatusPending})

			_, err := service.RefreshStatus(ctx, orphan.ID)

			Expect(appErrorOf(err).Type).To(Equal(internal.ErrorTypeState))
		})
	})

	Describe("CancelPayment", func() {
		DescribeTable("only PENDING and PROCESSING can be cancelled",
			func(status string, ok bool) {
				ext := "uuid-" + status
				p := repo.put(&payment.Payment{AppointmentID: "apt-1", Reference: "ref-" + status, ExternalTransactionID: &ext, Status: status})

				got, err := service.CancelPayment(ctx, p.ID)

				if ok {
					Expect(err).NotTo(HaveOccurred())
					Expect(got.Status).To(Equal(payment.StatusCancelled))
					Expect(got.CompletedAt).NotTo(BeNil())
					Expect(*got.FailureReason).To(Equal("cancelled by user"))
					Expect(appointments.sent()).To(HaveLen(1))
					Expect(publisher.types()).To(Equal([]string{events.EventTypePaymentFailed}))
					return
				}
				Expect(appErrorOf(err).Type).To(Equal(internal.ErrorTypeState))
				after, _ := repo.GetByID(ctx, p.ID)
				Expect(after.Status).To(Equal(status))
				Expect(after.CompletedAt).To(BeNil())
			},
			Entry("PENDING", payment.StatusPending, true),
			Entry("PROCESSING", payment.StatusProcessing, true),
			Entry("SUCCESSFUL", payment.StatusSuccessful, false),
			Entry("FAILED", payment.StatusFailed, false),
			Entry("CANCELLED", payment.StatusCancelled, false),
			Entry("SANDBOX", payment.StatusSandbox, false),
		)
	})

	Describe("queries", func() {
		It("lists an appointment's payments and computes statistics", func() {
			first, err := service.CreateCollection(ctx, input)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.CancelPayment(ctx, first.ID)
			Expect(err).NotTo(HaveOccurred())

			nextRef = "ref-0002"
			gateway.createResponse = gatewayResponse("uuid-2", gw.StatusPending, "")
			second, err := service.CreateCollection(ctx, input)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.UpdateFromWebhook(ctx, paymentPkg.WebhookUpdate{ExternalTransactionID: "uuid-2", ReportedStatus: gw.StatusSuccessful})
			Expect(err).NotTo(HaveOccurred())

			ps, err := service.ListByAppointment(ctx, "apt-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ps).To(HaveLen(2))
			Expect(ps[0].ID).To(Equal(second.ID))

			byRef, err := service.GetByReference(ctx, "ref-0002")
			Expect(err).NotTo(HaveOccurred())
			Expect(byRef.ID).To(Equal(second.ID))

			stats, err := service.Statistics(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Total).To(Equal(int64(2)))
			Expect(stats.ByStatus[payment.StatusCancelled]).To(Equal(int64(1)))
			Expect(stats.ByStatus[payment.StatusProcessing]).To(Equal(int64(0)))
			Expect(stats.SuccessfulAmount).To(Equal(int64(25000)))
			Expect(stats.Currency).To(Equal("UGX"))
		})
	})

	Describe("SweepStale", func() {
		It("refreshes old non-terminal payments and counts the outcomes", func() {
			old := time.Now().Add(-2 * time.Hour)
			for i, ext := range []string{"uuid-a", "uuid-b", "uuid-c"} {
				e := ext
				repo.put(&payment.Payment{AppointmentID: "apt-1", Reference: "ref-s" + string(rune('a'+i)), ExternalTransactionID: &e, Status: payment.StatusPending, InitiatedAt: old})
			}
			gateway.detailResponse = gatewayResponse("uuid-a", gw.StatusSuccessful, "")

			result, err := service.SweepStale(ctx, time.Now().Add(-time.Hour), 10, 2)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Checked).To(Equal(3))
			Expect(result.Updated).To(Equal(3))
			Expect(result.Failed).To(Equal(0))
			Expect(gateway.detailCalls).To(Equal(3))
		})

		It("counts refresh failures without aborting", func() {
			e := "uuid-z"
			repo.put(&payment.Payment{AppointmentID: "apt-1", Reference: "ref-z", ExternalTransactionID: &e, Status: payment.StatusProcessing, InitiatedAt: time.Now().Add(-2 * time.Hour)})
			gateway.detailError = &paymentgateway.Error{StatusCode: http.StatusBadGateway, Message: "bad gateway", Provider: "testpay"}

			result, err := service.SweepStale(ctx, time.Now().Add(-time.Hour), 10, 4)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Checked).To(Equal(1))
			Expect(result.Failed).To(Equal(1))
		})
	})
})
