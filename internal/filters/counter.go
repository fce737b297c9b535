package filters

import (
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/angeloszaimis/filter-proxy/internal/filterproxy"
)

const CountHeader = "X-Request-Count"

// Counter counts the Init, DoFilter and Destroy calls it receives.
type Counter struct {
	inits    atomic.Int64
	requests atomic.Int64
	destroys atomic.Int64
}

type CounterStats struct {
	Inits    int64 `json:"inits"`
	Requests int64 `json:"requests"`
	Destroys int64 `json:"destroys"`
}

func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) Init(filterproxy.Config) error {
	c.inits.Add(1)
	return nil
}

func (c *Counter) DoFilter(w http.ResponseWriter, r *http.Request, next http.Handler) error {
	n := c.requests.Add(1)
	w.Header().Set(CountHeader, strconv.FormatInt(n, 10))
	next.ServeHTTP(w, r)
	return nil
}

func (c *Counter) Destroy() {
	c.destroys.Add(1)
}

func (c *Counter) Stats() CounterStats {
	return CounterStats{
		Inits:    c.inits.Load(),
		Requests: c.requests.Load(),
		Destroys: c.destroys.Load(),
	}
}
