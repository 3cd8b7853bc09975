/*
Package resilience provides the circuit breakers that guard outbound
fetches.

A Breaker moves between three states:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                          Open

A Group keeps one breaker per key (the fetch client uses the request
host). Calls never retry; an open breaker fails fast with ErrCircuitOpen.

# Usage

	breakers := resilience.NewGroup("fetch", resilience.Settings{
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	body, err := resilience.Call(ctx, breakers.Get(host), func(ctx context.Context) ([]byte, error) {
		return download(ctx, url)
	})
*/
package resilience
