package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// DriveTokenFile and CalendarTokenFile hold the cached tokens for each
	// scope set under the jotask config directory.
	DriveTokenFile    = "drive_token.json"
	CalendarTokenFile = "calendar_token.json"

	// LocalhostAuthPort is the port the local web server listens on to
	// capture the OAuth redirect. It must match an authorized redirect URI.
	LocalhostAuthPort = "6789"

	callbackPath = "/oauth2callback"
)

// RedirectURL is the loopback redirect URI registered for the OAuth client.
var RedirectURL = fmt.Sprintf("http://localhost:%s%s", LocalhostAuthPort, callbackPath)

// ClientConfig identifies the OAuth client. It is always passed explicitly.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
}

// TokenFlow obtains user access tokens with the installed-app loopback flow.
// Tokens are cached in TokenFile and refreshed when possible.
type TokenFlow struct {
	config    *oauth2.Config
	TokenFile string
	logger    *logrus.Logger
	// authorize runs the interactive consent step. Replaced in tests.
	authorize func(ctx context.Context) (*oauth2.Token, error)
}

func NewTokenFlow(client ClientConfig, scopes []string, tokenFile string, logger *logrus.Logger) *TokenFlow {
	f := &TokenFlow{
		config: &oauth2.Config{
			ClientID:     client.ClientID,
			ClientSecret: client.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  RedirectURL,
			Scopes:       scopes,
		},
		TokenFile: tokenFile,
		logger:    logger,
	}
	f.authorize = f.getTokenFromWeb
	return f
}

// RequestAccessToken returns a valid access token, asking the user for
// consent only when no usable cached token exists.
func (f *TokenFlow) RequestAccessToken(ctx context.Context) (*oauth2.Token, error) {
	if f.TokenFile != "" {
		if tok, err := tokenFromFile(f.TokenFile); err == nil {
			fresh, err := f.config.TokenSource(ctx, tok).Token()
			if err == nil {
				if fresh.AccessToken != tok.AccessToken || fresh.RefreshToken != tok.RefreshToken {
					f.logger.Debug("token was refreshed, saving new token")
					f.saveToken(fresh)
				}
				return fresh, nil
			}
			f.logger.WithError(err).Info("cached token could not be refreshed, requesting consent")
		}
	}

	f.logger.Info("no usable token found, initiating web authorization flow")
	tok, err := f.authorize(ctx)
	if err != nil {
		return nil, err
	}
	f.saveToken(tok)
	return tok, nil
}

// Client returns an HTTP client that refreshes the token automatically.
func (f *TokenFlow) Client(ctx context.Context) (*http.Client, error) {
	tok, err := f.RequestAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return f.config.Client(ctx, tok), nil
}

// RemoveToken deletes the cached token so the next request asks for consent.
func (f *TokenFlow) RemoveToken() error {
	if f.TokenFile == "" {
		return nil
	}
	if err := os.Remove(f.TokenFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete token file '%s': %w", f.TokenFile, err)
	}
	return nil
}

type callbackResult struct {
	code string
	err  error
}

// callbackHandler captures the authorization redirect. Google reports
// refusals through the error parameter, e.g. error=access_denied.
func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("error") != "":
			http.Error(w, "Authorization failed: "+q.Get("error"), http.StatusBadRequest)
			res.err = fmt.Errorf("oauth error: %s", q.Get("error"))
		case q.Get("state") != state:
			http.Error(w, "State mismatch", http.StatusBadRequest)
			res.err = errors.New("oauth error: invalid_request (state mismatch)")
		case q.Get("code") == "":
			http.Error(w, "Authorization code not found", http.StatusBadRequest)
			res.err = errors.New("oauth error: invalid_request (authorization code not found in redirect URL)")
		default:
			fmt.Fprintf(w, "Authentication successful! You can close this window.")
			res.code = q.Get("code")
		}
		select {
		case results <- res:
		default:
		}
	})
}

// getTokenFromWeb runs the authorization code flow with PKCE via a local web server.
func (f *TokenFlow) getTokenFromWeb(ctx context.Context) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%s", LocalhostAuthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	state, err := randomState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.Handle(callbackPath, callbackHandler(state, results))
	server := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case results <- callbackResult{err: fmt.Errorf("HTTP server error: %w", err)}:
			default:
			}
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := f.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.S256ChallengeOption(verifier),
	)
	fmt.Printf("Please open the following URL in your browser to authorize jotask:\n%s\n", authURL)
	f.logger.WithField("redirect", f.config.RedirectURL).Info("waiting for authorization code")

	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		exchangeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := f.config.Exchange(exchangeCtx, res.code, oauth2.VerifierOption(verifier))
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("authorization timed out. Please try again")
	}
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("could not generate oauth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// tokenFromFile reads an oauth2.Token from a JSON file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}

// saveToken caches the token. Failure to cache is logged, not fatal.
func (f *TokenFlow) saveToken(token *oauth2.Token) {
	if f.TokenFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(f.TokenFile), 0700); err != nil {
		f.logger.WithError(err).Warn("could not create token directory")
		return
	}
	file, err := os.OpenFile(f.TokenFile, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		f.logger.WithError(err).Warnf("unable to cache OAuth token to %s", f.TokenFile)
		return
	}
	defer file.Close()
	if err := json.NewEncoder(file).Encode(token); err != nil {
		f.logger.WithError(err).Warn("unable to encode OAuth token")
	}
}
