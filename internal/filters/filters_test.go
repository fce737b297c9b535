package filters_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/filter-proxy/internal/filterproxy"
	"github.com/angeloszaimis/filter-proxy/internal/filters"
)

var _ filterproxy.Filter = (*filters.RequestID)(nil)
var _ filterproxy.Filter = (*filters.Stamp)(nil)
var _ filterproxy.Filter = (*filters.Counter)(nil)

var _ = Describe("Filters", func() {
	var (
		w      *httptest.ResponseRecorder
		seenID string
		next   http.Handler
	)

	BeforeEach(func() {
		w = httptest.NewRecorder()
		seenID = ""
		next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenID, _ = filters.RequestIDFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		})
	})

	Describe("RequestID", func() {
		It("should assign a new ID when the request has none", func() {
			f := filters.NewRequestID()
			Expect(f.DoFilter(w, httptest.NewRequest(http.MethodGet, "/", nil), next)).To(Succeed())

			id := w.Header().Get(filters.DefaultRequestIDHeader)
			Expect(uuid.Validate(id)).To(Succeed())
			Expect(seenID).To(Equal(id))
			Expect(w.Code).To(Equal(http.StatusNoContent))
		})

		It("should keep the caller's ID", func() {
			f := filters.NewRequestID()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(filters.DefaultRequestIDHeader, "abc")

			Expect(f.DoFilter(w, req, next)).To(Succeed())

			Expect(w.Header().Get(filters.DefaultRequestIDHeader)).To(Equal("abc"))
			Expect(seenID).To(Equal("abc"))
		})

		It("should take its header name from Init", func() {
			f := filters.NewRequestID()
			Expect(f.Init(filterproxy.Config{Params: filterproxy.Params{
				filters.ParamRequestIDHeader: "x-correlation-id",
			}})).To(Succeed())

			Expect(f.Header()).To(Equal("X-Correlation-Id"))
			Expect(f.DoFilter(w, httptest.NewRequest(http.MethodGet, "/", nil), next)).To(Succeed())
			Expect(w.Header().Get("X-Correlation-Id")).NotTo(BeEmpty())
		})

		It("should report absence outside a filtered request", func() {
			_, ok := filters.RequestIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Stamp", func() {
		It("should add its label and serial", func() {
			s := filters.NewStamp("scope", 7)
			Expect(s.DoFilter(w, httptest.NewRequest(http.MethodGet, "/", nil), next)).To(Succeed())

			Expect(w.Header().Get(filters.StampHeader)).To(Equal("scope#7"))
			Expect(s.String()).To(Equal("scope#7"))
		})

		It("should count Init calls", func() {
			s := filters.NewStamp("scope", 1)
			Expect(s.Init(filterproxy.Config{})).To(Succeed())
			Expect(s.Init(filterproxy.Config{})).To(Succeed())
			Expect(s.Inits()).To(Equal(2))
		})
	})

	Describe("Counter", func() {
		It("should count every call", func() {
			c := filters.NewCounter()
			Expect(c.Init(filterproxy.Config{})).To(Succeed())
			Expect(c.DoFilter(w, httptest.NewRequest(http.MethodGet, "/", nil), next)).To(Succeed())
			Expect(c.DoFilter(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), next)).To(Succeed())
			c.Destroy()

			Expect(w.Header().Get(filters.CountHeader)).To(Equal("1"))
			Expect(c.Stats()).To(Equal(filters.CounterStats{Inits: 1, Requests: 2, Destroys: 1}))
		})
	})
})
