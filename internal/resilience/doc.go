// Package resilience provides reliability and fault tolerance patterns for the application.
// It includes a circuit breaker wrapper that shields the platform API client
// from hammering a failing upstream.
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.PlatformAPIConfig())
//	result, err := cb.Execute(func() (interface{}, error) {
//	    return callPlatformAPI()
//	})
package resilience
