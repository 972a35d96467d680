// Package precache pre-warms a generation's cache store at install time.
//
// The application root is always fetched first in the list; extra
// origin-relative paths can be configured. Fetches run on a bounded worker
// pool and every failure is logged and reported, never fatal:
//
//	p := precache.New(transport, manager, precache.DefaultConfig(), logger)
//	result := p.Run(ctx, []string{"/", "/offline.html"})
//	if len(result.Failures) > 0 {
//		// logged already; installation proceeds
//	}
//
// Only 2xx responses are stored.
package precache
