package remote

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/smorand/google-slides-deckbuilder/internal/retry"
)

// Sentinel errors for provider calls.
var (
	// ErrAuthExpired means the provider rejected the credentials; the user must sign in again.
	ErrAuthExpired = errors.New("authentication expired, please sign in again")
	// ErrTransient covers quota, server and transport failures.
	ErrTransient = errors.New("transient provider error")
	// ErrFatalCopy is returned once the copy retry budget is exhausted.
	ErrFatalCopy = errors.New("google drive was unable to generate the new deck, please try again")
	// ErrNotFound means the file or presentation does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrAccessDenied means the user cannot read or write the file.
	ErrAccessDenied = errors.New("access denied")
	// ErrProvider is any other provider failure.
	ErrProvider = errors.New("provider error")
	// ErrInvalidArgument is returned for empty ids or names.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Classify tags err with the matching sentinel while keeping the raw provider
// error reachable through errors.As.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %w", ErrAuthExpired, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", ErrAuthExpired, err)
		case http.StatusForbidden:
			if isRateLimitReason(apiErr) {
				return fmt.Errorf("%w: %w", ErrTransient, err)
			}
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
	}

	if retry.IsTransient(err) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return fmt.Errorf("%w: %w", ErrProvider, err)
}

// isRateLimitReason reports Drive's 403 quota answers, which are transient.
func isRateLimitReason(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}

// isCopyRetryable decides which copy failures are worth another attempt.
// Expired credentials and missing sources are permanent.
func isCopyRetryable(err error) bool {
	classified := Classify(err)
	return errors.Is(classified, ErrTransient)
}
