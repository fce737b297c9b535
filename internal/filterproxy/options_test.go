package filterproxy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/filter-proxy/internal/filterproxy"
)

var _ = Describe("Options", func() {
	Describe("ParseInitMode", func() {
		DescribeTable("accepted values",
			func(value string, present bool, expected filterproxy.InitMode) {
				mode, err := filterproxy.ParseInitMode(value, present)
				Expect(err).NotTo(HaveOccurred())
				Expect(mode).To(Equal(expected))
			},
			Entry("absent", "", false, filterproxy.InitContext),
			Entry("context", "context", true, filterproxy.InitContext),
			Entry("request", "request", true, filterproxy.InitRequest),
			Entry("never", "never", true, filterproxy.InitNever),
		)

		DescribeTable("rejected values",
			func(value string) {
				_, err := filterproxy.ParseInitMode(value, true)

				var cfgErr *filterproxy.ConfigurationError
				Expect(errorsAs(err, &cfgErr)).To(BeTrue())
				Expect(cfgErr.Param).To(Equal(filterproxy.ParamInitType))
				Expect(cfgErr.Value).To(Equal(value))
				Expect(cfgErr.Accepted).To(ConsistOf("<absent>", "context", "request", "never"))
			},
			Entry("bogus", "bogus"),
			Entry("empty", ""),
			Entry("upper case", "CONTEXT"),
			Entry("padded", " request"),
		)

		It("should list the accepted values in the message", func() {
			_, err := filterproxy.ParseInitMode("bogus", true)
			Expect(err).To(MatchError(`filterproxy: invalid init-type "bogus", valid values are [<absent> context request never]`))
		})
	})

	Describe("ParseLookupOnlyOnce", func() {
		DescribeTable("parsing",
			func(value string, present bool, expected bool) {
				Expect(filterproxy.ParseLookupOnlyOnce(value, present)).To(Equal(expected))
			},
			Entry("absent", "", false, false),
			Entry("true", "true", true, true),
			Entry("false", "false", true, false),
			Entry("empty", "", true, false),
			Entry("yes", "yes", true, false),
			Entry("1", "1", true, false),
			Entry("upper case", "TRUE", true, false),
		)
	})

	Describe("ParseOptions", func() {
		It("should apply defaults to empty params", func() {
			opts, err := filterproxy.ParseOptions(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(opts).To(Equal(filterproxy.Options{InitMode: filterproxy.InitContext}))
		})

		It("should capture every parameter", func() {
			opts, err := filterproxy.ParseOptions(filterproxy.Params{
				filterproxy.ParamInitType:       "never",
				filterproxy.ParamLookupOnlyOnce: "true",
				filterproxy.ParamDelegateClass:  "Auth",
				filterproxy.ParamDelegateKey:    "auth",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(opts).To(Equal(filterproxy.Options{
				InitMode:        filterproxy.InitNever,
				LookupOnlyOnce:  true,
				DelegateType:    "Auth",
				DelegateKey:     "auth",
				HasDelegateType: true,
				HasDelegateKey:  true,
			}))
		})

		It("should keep a present but empty delegate-class as set", func() {
			opts, err := filterproxy.ParseOptions(filterproxy.Params{
				filterproxy.ParamDelegateClass: "",
				filterproxy.ParamDelegateKey:   "auth",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(opts.HasDelegateType).To(BeTrue())
			Expect(opts.DelegateType).To(BeEmpty())
			Expect(opts.HasDelegateKey).To(BeTrue())
		})

		It("should fail on an invalid init-type", func() {
			_, err := filterproxy.ParseOptions(filterproxy.Params{filterproxy.ParamInitType: "bogus"})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("InitMode.String", func() {
		It("should name each mode", func() {
			Expect(filterproxy.InitContext.String()).To(Equal("context"))
			Expect(filterproxy.InitRequest.String()).To(Equal("request"))
			Expect(filterproxy.InitNever.String()).To(Equal("never"))
			Expect(filterproxy.InitMode(9).String()).To(Equal("InitMode(9)"))
		})
	})

	Describe("Config.Param", func() {
		It("should distinguish absent from empty", func() {
			cfg := filterproxy.Config{Params: filterproxy.Params{"empty": ""}}

			v, ok := cfg.Param("empty")
			Expect(ok).To(BeTrue())
			Expect(v).To(BeEmpty())

			_, ok = cfg.Param("missing")
			Expect(ok).To(BeFalse())
		})
	})
})
