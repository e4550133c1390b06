// Package classify maps raw failures from Gemini, Google OAuth and Google
// Drive into a closed set of categories with remediation hints.
//
// The providers expose no stable taxonomy for most of these conditions, so
// classification matches on message fragments. All matching rules live in
// the rules table below.
package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// Category is the closed set of failure kinds.
type Category int

const (
	UnknownError Category = iota
	ServiceBlocked
	AuthConfigError
	AuthDenied
	TransportError
)

var categoryTags = map[Category]string{
	UnknownError:    "unknown",
	ServiceBlocked:  "service_blocked",
	AuthConfigError: "auth_config",
	AuthDenied:      "auth_denied",
	TransportError:  "transport",
}

var categoryHints = map[Category]string{
	UnknownError:    "Failed to process journal. Please try again in a moment.",
	ServiceBlocked:  "The Generative Language API is disabled or blocked for this project. Enable it in the Google Cloud console or use a key from a project where it is allowed.",
	AuthConfigError: "Google sign-in is misconfigured. Check that the OAuth client ID is correct, the redirect URI http://localhost:6789/oauth2callback is authorized, your account is listed as a test user for unverified apps, and the API key is not restricted.",
	AuthDenied:      "Access was not granted. Nothing was imported.",
	TransportError:  "The request to Google failed. Check your connection and try again.",
}

// String returns the machine-readable tag.
func (c Category) String() string {
	if tag, ok := categoryTags[c]; ok {
		return tag
	}
	return categoryTags[UnknownError]
}

// Hint returns the user-facing remediation text.
func (c Category) Hint() string {
	if hint, ok := categoryHints[c]; ok {
		return hint
	}
	return categoryHints[UnknownError]
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Classification is the outcome of classifying one failure.
type Classification struct {
	Category Category `json:"category"`
	Message  string   `json:"message"`
	Hint     string   `json:"hint"`
}

// Surfaced reports whether the failure should be shown to the user.
// A user cancelling or refusing consent is not a failure.
func (c Classification) Surfaced() bool {
	return c.Category != AuthDenied
}

func (c Classification) String() string {
	return fmt.Sprintf("%s: %s", c.Category, c.Message)
}

// Error is a failure whose category is already known at the point it is raised.
type Error struct {
	Category Category
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a pre-classified error.
func Errorf(c Category, format string, args ...any) error {
	return &Error{Category: c, Message: fmt.Sprintf(format, args...)}
}

type rule struct {
	category Category
	markers  []string
}

// Rules are tried in order against the lower-cased message; first match wins.
// The consent-screen markers precede the bare "blocked" so that Google's
// "Access blocked: app has not completed verification" lands in AuthConfigError.
var rules = []rule{
	{AuthDenied, []string{
		"access_denied",
		"popup_closed",
		"user cancelled",
		"user canceled",
		"user denied",
	}},
	{AuthConfigError, []string{
		"access blocked",
		"verification process",
		"unverified",
		"test user",
		"policy",
		"compliance",
	}},
	{ServiceBlocked, []string{
		"api_key_service_blocked",
		"service_disabled",
		"accessnotconfigured",
		"has not been used in project",
		"api is disabled",
		"is disabled for",
		"blocked",
	}},
	{AuthConfigError, []string{
		"invalid_request",
		"redirect_uri_mismatch",
		"invalid_client",
		"unauthorized_client",
		"origin",
		"api key",
		"api_key",
		"client id",
		"error 400",
		"400 bad request",
	}},
	{TransportError, []string{
		"timeout",
		"timed out",
		"connection refused",
		"connection reset",
		"no such host",
		"unexpected status",
		"network",
		"eof",
	}},
}

// Classify maps err to a Classification. It never panics.
func Classify(err error) (c Classification) {
	defer func() {
		if r := recover(); r != nil {
			c = newClassification(UnknownError, fmt.Sprintf("%v", r))
		}
	}()

	if err == nil {
		return newClassification(UnknownError, "unknown error")
	}

	var pre *Error
	if errors.As(err, &pre) {
		return newClassification(pre.Category, err.Error())
	}

	msg := err.Error()

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return classifyOAuth(retrieveErr, msg)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return classifyGoogleAPI(gErr, msg)
	}

	if apiErr, ok := asGenAIError(err); ok {
		return classifyGenAI(apiErr, msg)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return newClassification(TransportError, msg)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return newClassification(TransportError, msg)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return newClassification(TransportError, msg)
	}

	if c, ok := matchMessage(msg); ok {
		return newClassification(c, msg)
	}
	return newClassification(UnknownError, msg)
}

// ClassifyMessage classifies a bare provider message.
func ClassifyMessage(msg string) Classification {
	if c, ok := matchMessage(msg); ok {
		return newClassification(c, msg)
	}
	return newClassification(UnknownError, msg)
}

func newClassification(c Category, msg string) Classification {
	return Classification{Category: c, Message: msg, Hint: c.Hint()}
}

func matchMessage(msg string) (Category, bool) {
	lower := strings.ToLower(msg)
	for _, r := range rules {
		for _, m := range r.markers {
			if strings.Contains(lower, m) {
				return r.category, true
			}
		}
	}
	return UnknownError, false
}

func classifyOAuth(e *oauth2.RetrieveError, msg string) Classification {
	switch e.ErrorCode {
	case "access_denied":
		return newClassification(AuthDenied, msg)
	case "invalid_request", "invalid_client", "unauthorized_client", "redirect_uri_mismatch",
		"invalid_grant", "admin_policy_enforced", "org_internal":
		return newClassification(AuthConfigError, msg)
	}
	if c, ok := matchMessage(msg); ok {
		return newClassification(c, msg)
	}
	return newClassification(AuthConfigError, msg)
}

func classifyGoogleAPI(e *googleapi.Error, msg string) Classification {
	for _, item := range e.Errors {
		switch item.Reason {
		case "accessNotConfigured", "SERVICE_DISABLED":
			return newClassification(ServiceBlocked, msg)
		}
	}
	if c, ok := matchMessage(e.Message); ok && c != TransportError {
		return newClassification(c, msg)
	}
	return newClassification(TransportError, msg)
}

func asGenAIError(err error) (genai.APIError, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return *p, true
	}
	return genai.APIError{}, false
}

func classifyGenAI(e genai.APIError, msg string) Classification {
	if c, ok := matchMessage(e.Message); ok && c != TransportError {
		return newClassification(c, msg)
	}
	for _, d := range e.Details {
		if reason, _ := d["reason"].(string); reason == "SERVICE_DISABLED" || reason == "API_KEY_SERVICE_BLOCKED" {
			return newClassification(ServiceBlocked, msg)
		}
	}
	if e.Code == 400 && strings.Contains(strings.ToLower(e.Message), "key") {
		return newClassification(AuthConfigError, msg)
	}
	return newClassification(TransportError, msg)
}
