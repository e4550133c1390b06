// Package drive imports journal text from a file in the user's Google Drive.
//
// The OAuth consent step and the file picker sit behind two narrow
// interfaces so the import flow does not depend on how either is presented.
package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/harrisonrobin/jotask/pkg/classify"
	"github.com/harrisonrobin/jotask/pkg/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const GoogleDocMimeType = "application/vnd.google-apps.document"

// Scopes requested for import.
var Scopes = []string{drive.DriveReadonlyScope, drive.DriveFileScope}

// FileRef identifies the file chosen in the picker.
type FileRef struct {
	ID       string
	Name     string
	MimeType string
}

// TokenRequester obtains an access token, interactively if needed.
type TokenRequester interface {
	RequestAccessToken(ctx context.Context) (*oauth2.Token, error)
}

// Picker lets the user choose a file. A nil FileRef means the user cancelled.
type Picker interface {
	OpenPicker(ctx context.Context, token *oauth2.Token) (*FileRef, error)
}

// Config is the explicit configuration for an Importer.
type Config struct {
	ClientID string
	// ServiceOptions are appended to every Drive service; used to point at a test server.
	ServiceOptions []option.ClientOption
}

// Importer runs token → picker → fetch.
type Importer struct {
	cfg    Config
	tokens TokenRequester
	picker Picker
	logger *logrus.Logger
}

func NewImporter(cfg Config, tokens TokenRequester, picker Picker, logger *logrus.Logger) *Importer {
	return &Importer{cfg: cfg, tokens: tokens, picker: picker, logger: logger}
}

// ValidateClientID fails fast, before any network call, on a missing or
// malformed OAuth client ID.
func ValidateClientID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return classify.Errorf(classify.AuthConfigError,
			"Google Client ID is missing. Run `jotask config set-client-id` or set GOOGLE_CLIENT_ID")
	}
	if !strings.HasSuffix(id, config.ClientIDSuffix) {
		return classify.Errorf(classify.AuthConfigError,
			"Google Client ID %q is invalid: it must end with %s", id, config.ClientIDSuffix)
	}
	return nil
}

// Import returns the chosen file's text. ok is false when the user cancelled.
func (im *Importer) Import(ctx context.Context) (content string, ok bool, err error) {
	if err := ValidateClientID(im.cfg.ClientID); err != nil {
		return "", false, err
	}

	tok, err := im.tokens.RequestAccessToken(ctx)
	if err != nil {
		return "", false, err
	}

	ref, err := im.picker.OpenPicker(ctx, tok)
	if err != nil {
		return "", false, fmt.Errorf("picker failed: %w", err)
	}
	if ref == nil {
		im.logger.Info("file picker cancelled")
		return "", false, nil
	}

	im.logger.WithFields(logrus.Fields{
		"file":     ref.Name,
		"mimeType": ref.MimeType,
	}).Info("fetching file content")

	content, err = FetchContent(ctx, *ref, tok, im.cfg.ServiceOptions...)
	if err != nil {
		return "", false, err
	}
	return content, true, nil
}

// NewService creates a Drive service authorized with the bearer token.
func NewService(ctx context.Context, token *oauth2.Token, opts ...option.ClientOption) (*drive.Service, error) {
	base := []option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(token))}
	srv, err := drive.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}
	return srv, nil
}

// FetchContent exports Google Docs as plain text and downloads any other
// file's raw bytes. Non-2xx responses surface as *googleapi.Error.
func FetchContent(ctx context.Context, ref FileRef, token *oauth2.Token, opts ...option.ClientOption) (string, error) {
	srv, err := NewService(ctx, token, opts...)
	if err != nil {
		return "", err
	}

	var resp *http.Response
	if ref.MimeType == GoogleDocMimeType {
		resp, err = srv.Files.Export(ref.ID, "text/plain").Context(ctx).Download()
	} else {
		resp, err = srv.Files.Get(ref.ID).Context(ctx).Download()
	}
	if err != nil {
		return "", fmt.Errorf("drive error: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read drive content: %w", err)
	}
	return string(b), nil
}
