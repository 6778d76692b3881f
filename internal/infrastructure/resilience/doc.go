/*
Package resilience provides a circuit breaker for host resources that fail
persistently, such as the inotify watch budget.

After Threshold consecutive failures the breaker opens and rejects calls
with ErrOpen. Once Cooldown has elapsed a single probe call is admitted:
success closes the breaker, failure reopens it.

	breaker := resilience.New("watchers", resilience.Settings{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	})

	err := breaker.Do(func() error {
		return create()
	})
*/
package resilience
