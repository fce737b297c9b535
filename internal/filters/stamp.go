package filters

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/angeloszaimis/filter-proxy/internal/filterproxy"
)

const StampHeader = "X-Filtered-By"

// Stamp marks each response it sees with its label and serial. It is meant
// to be registered in the request scope, so the serial shows which instance
// a proxy forwarded to.
type Stamp struct {
	label  string
	serial int64
	inits  atomic.Int32
}

func NewStamp(label string, serial int64) *Stamp {
	return &Stamp{label: label, serial: serial}
}

func (s *Stamp) Init(filterproxy.Config) error {
	s.inits.Add(1)
	return nil
}

func (s *Stamp) DoFilter(w http.ResponseWriter, r *http.Request, next http.Handler) error {
	w.Header().Add(StampHeader, s.String())
	next.ServeHTTP(w, r)
	return nil
}

func (s *Stamp) Destroy() {}

// Inits returns how many times Init was called on this instance.
func (s *Stamp) Inits() int {
	return int(s.inits.Load())
}

func (s *Stamp) String() string {
	return fmt.Sprintf("%s#%d", s.label, s.serial)
}
