package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/rs/zerolog"
)

// FallbackService implements smart AI provider routing with fallback
// - Extraction: cloud first (better quality), fallback to local Ollama
// - Classification: local Ollama first (short prompt, free), fallback to cloud
type FallbackService struct {
	cloud *llmOracle
	local *llmOracle
	log   zerolog.Logger
}

// NewFallbackService creates a new fallback service. Either provider may be nil.
func NewFallbackService(cloud, local completer, log zerolog.Logger) *FallbackService {
	f := &FallbackService{log: log}
	if cloud != nil {
		f.cloud = newLLMOracle(cloud)
	}
	if local != nil {
		f.local = newLLMOracle(local)
	}
	return f
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}
	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource exhausted",
		"resource_exhausted",
	}
	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// Extract tries the cloud provider first, falls back to Ollama
func (f *FallbackService) Extract(ctx context.Context, req ExtractRequest) ([]ExtractedEvent, error) {
	var cloudErr error
	if f.cloud != nil {
		f.log.Debug().Str("provider", f.cloud.llm.name()).Msg("trying cloud provider for extraction")
		result, err := f.cloud.Extract(ctx, req)
		if err == nil {
			return result, nil
		}
		cloudErr = err
		if isQuotaError(err) {
			f.log.Warn().Err(err).Msg("cloud quota exhausted, falling back to ollama for extraction")
		} else {
			f.log.Warn().Err(err).Msg("cloud extraction failed, falling back to ollama")
		}
	}

	if f.local != nil {
		result, err := f.local.Extract(ctx, req)
		if err == nil {
			f.log.Debug().Msg("ollama extraction successful")
			return result, nil
		}
		// Ollama unreachable: a cloud error that was not a quota error may have been transient
		if isConnectionError(err) && f.cloud != nil && cloudErr != nil && !isQuotaError(cloudErr) {
			f.log.Warn().Err(err).Msg("ollama connection failed, retrying cloud provider")
			return f.cloud.Extract(ctx, req)
		}
		return nil, err
	}

	if cloudErr != nil {
		return nil, cloudErr
	}
	return nil, fmt.Errorf("no AI provider available for extraction")
}

// Classify tries Ollama first, falls back to the cloud provider
func (f *FallbackService) Classify(ctx context.Context, req ClassifyRequest) (string, error) {
	if f.local != nil {
		result, err := f.local.Classify(ctx, req)
		if err == nil {
			return result, nil
		}
		if isConnectionError(err) {
			f.log.Debug().Err(err).Msg("ollama connection failed, falling back to cloud for classification")
		} else {
			f.log.Warn().Err(err).Msg("ollama classification failed, falling back to cloud")
		}
		if f.cloud == nil {
			return "", err
		}
	}

	if f.cloud != nil {
		result, err := f.cloud.Classify(ctx, req)
		if err == nil {
			return result, nil
		}
		if isQuotaError(err) && f.local != nil {
			f.log.Warn().Err(err).Msg("cloud quota exhausted, retrying ollama for classification")
			return f.local.Classify(ctx, req)
		}
		return "", err
	}

	return "", fmt.Errorf("no AI provider available for classification")
}
