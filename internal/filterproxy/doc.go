// Package filterproxy implements a handler-chain element that forwards each
// request to a delegate Filter held in a scoped component registry.
//
// The proxy defers both the lookup of its delegate and the delegate's
// initialization. Three init parameters control this:
//
//   - init-type: "context" (default) calls Init once, right after the first
//     successful lookup; "request" calls Init on every request; "never"
//     never calls it.
//   - lookup-only-once: "true" looks the delegate up on the first request
//     only. Anything else, including absence, looks it up on every request.
//   - delegate-class / delegate-key: how the delegate is found. The class
//     name wins when both are set.
//
// Usage:
//
//	p, err := filterproxy.New(filterproxy.Config{
//	    Name:   "auth",
//	    Params: filterproxy.Params{"delegate-key": "auth", "lookup-only-once": "true"},
//	}, scopes, types)
//	if err != nil {
//	    return err
//	}
//	defer p.Destroy()
//	mux.Handle("/", p.Middleware(nil)(app))
//
// Note that a delegate found in a request or session scope is kept for the
// proxy's lifetime when lookup-only-once is set, together with everything
// it references.
package filterproxy
