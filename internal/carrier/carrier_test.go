package carrier_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/momo-collections/internal/carrier"
)

var _ = Describe("Carrier", func() {
	Describe("Format", func() {
		DescribeTable("normalises to the international form",
			func(input, expected string) {
				Expect(carrier.Format(input)).To(Equal(expected))
			},
			Entry("local form", "0770123456", "+256770123456"),
			Entry("bare country code", "256770123456", "+256770123456"),
			Entry("already international", "+256770123456", "+256770123456"),
			Entry("double-zero prefix", "00256770123456", "+256770123456"),
			Entry("subscriber digits only", "770123456", "+256770123456"),
			Entry("with separators", "0770-123 456", "+256770123456"),
			Entry("with parentheses", "(0770) 123456", "+256770123456"),
			Entry("garbage is returned cleaned", "not a phone", "notaphone"),
			Entry("too short local form stays as-is", "077012345", "077012345"),
		)
	})

	Describe("Validate", func() {
		DescribeTable("structural check",
			func(input string, expected bool) {
				Expect(carrier.Validate(input)).To(Equal(expected))
			},
			Entry("local MTN", "0770123456", true),
			Entry("international Airtel", "+256700123456", true),
			Entry("too many digits", "07701234567", false),
			Entry("foreign country code", "+254712345678", false),
			Entry("letters", "07701234ab", false),
			Entry("empty", "", false),
		)
	})

	Describe("Detect", func() {
		Context("for every MTN prefix", func() {
			It("classifies local numbers as MTN", func() {
				for _, prefix := range carrier.Prefixes(carrier.MTN) {
					// Given
					phone := prefix + "1234567"

					// When
					result := carrier.Detect(phone)

					// Then
					Expect(result).To(Equal(carrier.MTN), fmt.Sprintf("prefix %s", prefix))
				}
			})
		})

		Context("for every Airtel prefix", func() {
			It("classifies local and international numbers as Airtel", func() {
				for _, prefix := range carrier.Prefixes(carrier.Airtel) {
					local := prefix + "7654321"
					Expect(carrier.Detect(local)).To(Equal(carrier.Airtel))
					Expect(carrier.Detect(carrier.Format(local))).To(Equal(carrier.Airtel))
				}
			})
		})

		DescribeTable("unknown numbers never panic",
			func(input string) {
				Expect(func() { carrier.Detect(input) }).NotTo(Panic())
				Expect(carrier.Detect(input)).To(Equal(carrier.Unknown))
			},
			Entry("unassigned prefix", "0710123456"),
			Entry("other unassigned prefix", "0790123456"),
			Entry("empty", ""),
			Entry("garbage", "hello"),
			Entry("foreign number", "+254712345678"),
			Entry("short", "077"),
		)

		It("keeps the prefix tables disjoint", func() {
			seen := map[string]carrier.Carrier{}
			for _, c := range []carrier.Carrier{carrier.MTN, carrier.Airtel} {
				for _, p := range carrier.Prefixes(c) {
					Expect(seen).NotTo(HaveKey(p))
					seen[p] = c
				}
			}
		})
	})

	Describe("LocalForm", func() {
		It("renders valid numbers with a leading zero", func() {
			Expect(carrier.LocalForm("+256770123456")).To(Equal("0770123456"))
		})

		It("leaves invalid numbers untouched", func() {
			Expect(carrier.LocalForm("abc")).To(Equal("abc"))
		})
	})

	It("reports only MTN and Airtel as supported", func() {
		Expect(carrier.MTN.Supported()).To(BeTrue())
		Expect(carrier.Airtel.Supported()).To(BeTrue())
		Expect(carrier.Unknown.Supported()).To(BeFalse())
	})
})
