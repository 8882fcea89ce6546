package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mobilia/backoffice/internal/composite"
)

// APIError is a non-2xx response from the back office API. When the server reports an engine guard
// failure the typed composite error is reachable through errors.As.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
	Condition string

	cause error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backoffice api: %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("backoffice api: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.cause }

// NotFound reports a 404 response.
func (e *APIError) NotFound() bool { return e.Status == http.StatusNotFound }

// Temporary reports whether the same request may succeed when retried.
func (e *APIError) Temporary() bool {
	switch e.Status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

type errorEnvelope struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Condition string `json:"condition"`
	Indices   []int  `json:"indices"`
	ProductID string `json:"productId"`
	Side      string `json:"side"`
	Reason    string `json:"reason"`
}

func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	apiErr := &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	var env errorEnvelope
	if len(body) == 0 || json.Unmarshal(body, &env) != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}
	if env.Error != "" {
		apiErr.Code = env.Error
	}
	apiErr.Message = env.Message
	apiErr.RequestID = env.RequestID
	apiErr.Condition = env.Condition
	apiErr.cause = engineError(env)
	return apiErr
}

func engineError(env errorEnvelope) error {
	switch env.Condition {
	case "":
		return nil
	case string(composite.ConditionIdenticalBaseProducts):
		return &composite.IdenticalProductError{ProductID: env.ProductID}
	case "invalid_selection":
		side := composite.SideA
		if env.Side == composite.SideB.String() {
			side = composite.SideB
		}
		return &composite.InvalidSelectionError{Side: side, ProductID: env.ProductID, Reason: env.Reason}
	default:
		return &composite.ValidationError{
			Condition: composite.Condition(env.Condition),
			Message:   env.Message,
			Indices:   env.Indices,
		}
	}
}
