package drive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harrisonrobin/jotask/pkg/classify"
	"github.com/harrisonrobin/jotask/pkg/config"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const testClientID = "1234-abc.apps.googleusercontent.com"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeTokens struct {
	err   error
	calls int
}

func (f *fakeTokens) RequestAccessToken(context.Context) (*oauth2.Token, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{AccessToken: "tok", TokenType: "Bearer"}, nil
}

type fakePicker struct {
	ref   *FileRef
	err   error
	calls int
}

func (f *fakePicker) OpenPicker(context.Context, *oauth2.Token) (*FileRef, error) {
	f.calls++
	return f.ref, f.err
}

// driveServer serves the Drive v3 endpoints used by FetchContent and ListRecent.
func driveServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/files/doc-1/export", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("mimeType"); got != "text/plain" {
			t.Errorf("Expected text/plain export, got %q", got)
		}
		io.WriteString(w, "exported journal")
	})
	mux.HandleFunc("/files/txt-1", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("alt"); got != "media" {
			t.Errorf("Expected alt=media download, got %q", got)
		}
		io.WriteString(w, "raw journal bytes")
	})
	mux.HandleFunc("/files/secret", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":{"code":403,"message":"The user does not have sufficient permissions for this file."}}`)
	})
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]string{
				{"id": "doc-1", "name": "Journal", "mimeType": GoogleDocMimeType},
				{"id": "txt-1", "name": "notes.txt", "mimeType": "text/plain"},
			},
		})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func serverOptions(ts *httptest.Server) []option.ClientOption {
	return []option.ClientOption{
		option.WithEndpoint(ts.URL + "/"),
		option.WithHTTPClient(ts.Client()),
	}
}

func TestValidateClientID(t *testing.T) {
	for _, id := range []string{"", "   ", "1234-abc.example.com"} {
		err := ValidateClientID(id)
		if got := classify.Classify(err).Category; got != classify.AuthConfigError {
			t.Errorf("ValidateClientID(%q) classified as %s, want auth_config", id, got)
		}
	}
	for _, id := range []string{testClientID, " 99-zz" + config.ClientIDSuffix + " "} {
		if err := ValidateClientID(id); err != nil {
			t.Errorf("Expected %q to be valid, got %v", id, err)
		}
	}
}

func TestImportFailsFastWithoutNetwork(t *testing.T) {
	tokens := &fakeTokens{}
	picker := &fakePicker{}
	im := NewImporter(Config{ClientID: "not-a-google-id"}, tokens, picker, quietLogger())

	_, ok, err := im.Import(context.Background())
	if err == nil || ok {
		t.Fatalf("Expected a precondition failure, got ok=%v err=%v", ok, err)
	}
	if tokens.calls != 0 || picker.calls != 0 {
		t.Errorf("Expected no token or picker calls, got %d and %d", tokens.calls, picker.calls)
	}
}

func TestImportCancelled(t *testing.T) {
	im := NewImporter(Config{ClientID: testClientID}, &fakeTokens{}, &fakePicker{}, quietLogger())
	content, ok, err := im.Import(context.Background())
	if err != nil || ok || content != "" {
		t.Errorf("Expected cancel to resolve with no content, got %q ok=%v err=%v", content, ok, err)
	}
}

func TestImportTokenFailure(t *testing.T) {
	tokens := &fakeTokens{err: errors.New("oauth error: access_denied")}
	picker := &fakePicker{}
	im := NewImporter(Config{ClientID: testClientID}, tokens, picker, quietLogger())

	_, _, err := im.Import(context.Background())
	if got := classify.Classify(err).Category; got != classify.AuthDenied {
		t.Errorf("Expected auth_denied, got %s", got)
	}
	if picker.calls != 0 {
		t.Error("Picker should not open without a token")
	}
}

func TestImportFetchesGoogleDocAsText(t *testing.T) {
	ts := driveServer(t)
	cfg := Config{ClientID: testClientID, ServiceOptions: serverOptions(ts)}
	picker := &fakePicker{ref: &FileRef{ID: "doc-1", Name: "Journal", MimeType: GoogleDocMimeType}}
	im := NewImporter(cfg, &fakeTokens{}, picker, quietLogger())

	content, ok, err := im.Import(context.Background())
	if err != nil || !ok {
		t.Fatalf("Import failed: ok=%v err=%v", ok, err)
	}
	if content != "exported journal" {
		t.Errorf("Expected exported text, got %q", content)
	}
}

func TestFetchContentRawFile(t *testing.T) {
	ts := driveServer(t)
	tok := &oauth2.Token{AccessToken: "tok"}
	content, err := FetchContent(context.Background(), FileRef{ID: "txt-1", MimeType: "text/plain"}, tok, serverOptions(ts)...)
	if err != nil {
		t.Fatalf("FetchContent failed: %v", err)
	}
	if content != "raw journal bytes" {
		t.Errorf("Expected raw bytes, got %q", content)
	}
}

func TestFetchContentHTTPError(t *testing.T) {
	ts := driveServer(t)
	tok := &oauth2.Token{AccessToken: "tok"}
	_, err := FetchContent(context.Background(), FileRef{ID: "secret", MimeType: "text/plain"}, tok, serverOptions(ts)...)
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) || gErr.Code != http.StatusForbidden {
		t.Fatalf("Expected a 403 googleapi.Error, got %v", err)
	}
	if got := classify.Classify(err).Category; got != classify.TransportError {
		t.Errorf("Expected transport classification, got %s", got)
	}
}

func TestListRecent(t *testing.T) {
	ts := driveServer(t)
	srv, err := NewService(context.Background(), &oauth2.Token{AccessToken: "tok"}, serverOptions(ts)...)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	files, err := ListRecent(context.Background(), srv, 10)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(files) != 2 || files[0].ID != "doc-1" || files[1].MimeType != "text/plain" {
		t.Errorf("Unexpected files %+v", files)
	}
}
