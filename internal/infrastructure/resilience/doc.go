/*
Package resilience implements a three-state circuit breaker.

A Breaker wraps calls to an unreliable dependency and fails fast once the
dependency has been failing consistently, instead of letting every caller
wait out a network timeout. The proxy checker uses one breaker per proxy
endpoint so a dead upstream proxy degrades to an immediate error.

# States

	Closed --[trip]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                         |
	                                      [failure]
	                                         v
	                                       Open

Closed passes requests through and counts outcomes. Open rejects requests
with ErrCircuitOpen. Half-Open admits up to MaxRequests probes; if they all
succeed the breaker closes, and a single failure reopens it.

# Usage

	breaker := resilience.New("proxy:1.2.3.4:8080", resilience.Settings{
		Timeout: 15 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	})

	result, err := breaker.Execute(func() (interface{}, error) {
		return probe()
	})
*/
package resilience
