package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"creative-ai-studio/internal/domain"
)

// classifyHTTP turns a provider response status into a typed error.
// Rate limits, timeouts and 5xx are retryable so the orchestrator can
// fall back; auth and validation failures are not.
func classifyHTTP(provider string, status int, detail string) *domain.ProviderError {
	retryable := status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= 500
	return &domain.ProviderError{
		Provider:  provider,
		Status:    status,
		Retryable: retryable,
		Err:       fmt.Errorf("%s http %d: %s", provider, status, detail),
	}
}

// classifyTransport wraps network-level failures, which are always retryable.
func classifyTransport(provider string, err error) *domain.ProviderError {
	return &domain.ProviderError{
		Provider:  provider,
		Retryable: true,
		Err:       err,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
