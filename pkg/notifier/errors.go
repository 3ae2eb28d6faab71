package notifier

import "fmt"

// DeliveryError describes a webhook call that was not acknowledged. It is
// logged, never returned to the pipeline.
type DeliveryError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("webhook delivery failed: %v", e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("webhook delivery failed: HTTP %d: %s", e.StatusCode, e.Reason)
	default:
		return fmt.Sprintf("webhook delivery failed: %s", e.Reason)
	}
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
