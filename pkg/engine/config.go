package engine

import "github.com/dirigent-dev/dirigent/pkg/api"

// Config holds configuration for the core engine.
type Config struct {
	// DefaultModel is used when the request omits the model field.
	// Empty string means a model is always required in the request.
	DefaultModel string

	// MaxInferIters caps inference iterations per response when the
	// request does not set max_infer_iters. Zero or negative means
	// the default of 10.
	MaxInferIters int

	// OutputChecks names safety checks run over the final output text
	// in addition to the request's guardrails. Optional.
	OutputChecks []string

	// StoreInBackground persists terminal responses through a worker
	// pool instead of on the request goroutine.
	StoreInBackground bool

	// StoreWorkers is the size of the background persistence pool.
	// Zero means 4. Only used when StoreInBackground is set.
	StoreWorkers int

	// Validation bounds request size checks. The zero value means
	// api.DefaultValidationConfig().
	Validation api.ValidationConfig
}

// maxInferIters returns the effective iteration budget for a request.
func (c Config) maxInferIters(req *api.CreateResponseRequest) int {
	if req.MaxInferIters != nil && *req.MaxInferIters > 0 {
		return *req.MaxInferIters
	}
	if c.MaxInferIters > 0 {
		return c.MaxInferIters
	}
	return 10
}

func (c Config) storeWorkers() int {
	if c.StoreWorkers > 0 {
		return c.StoreWorkers
	}
	return 4
}

func (c Config) validation() api.ValidationConfig {
	if c.Validation == (api.ValidationConfig{}) {
		return api.DefaultValidationConfig()
	}
	return c.Validation
}
