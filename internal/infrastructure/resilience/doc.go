/*
Package resilience guards calls to external collaborators with a circuit
breaker.

The remote calibration computer is the main client: a calibration service
that keeps failing should fail fast instead of stalling the calibration step
while its stream waits for a result.

# Usage

	breaker := resilience.New("calibration", resilience.Policy{
		FailureThreshold: 3,
		Cooldown:         10 * time.Second,
		OnTransition: func(name string, from, to resilience.State) {
			logger.Warn("breaker transition", zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	method, err := resilience.Call(breaker, func() (string, error) {
		return client.Compute(ctx, req)
	})

# States

	Closed --[threshold reached]-> Open --[cooldown]-> HalfOpen --[probes succeed]-> Closed
	                                                       |
	                                                   [failure]
	                                                       v
	                                                      Open
*/
package resilience
