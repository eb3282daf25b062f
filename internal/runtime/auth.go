package runtime

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/mbrt/gmailctl/cmd/gmailctl/localcred"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/joshsymonds/chronotriage/internal/config"
	"github.com/joshsymonds/chronotriage/internal/netretry"
	"github.com/joshsymonds/chronotriage/internal/rate"
)

// Scopes requested by the oauth mode. Labels are created and renamed, threads modified.
var oauthScopes = []string{gmailv1.GmailModifyScope, gmailv1.GmailLabelsScope}

// NewService authenticates according to cfg.Auth and returns the raw Gmail service.
func NewService(ctx context.Context, cfg config.Config) (*gmailv1.Service, error) {
	switch cfg.Auth.Mode {
	case config.AuthGmailctl, "":
		svc, err := (localcred.Provider{}).ServiceWithScopes(ctx, cfg.Auth.Dir, gmailv1.GmailModifyScope)
		if err != nil {
			return nil, fmt.Errorf("gmailctl credentials in %s: %w", cfg.Auth.Dir, err)
		}
		return svc, nil
	case config.AuthOAuth:
		return oauthService(ctx, cfg.Auth, os.Stdin, os.Stderr)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

// NewGmailClient wires the authenticated service into the rate-limited, retrying adapter.
// The returned stop func releases the limiter.
func NewGmailClient(ctx context.Context, cfg config.Config) (*GoogleClient, func(), error) {
	svc, err := NewService(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	limiter := rate.NewTokenBucket(cfg.RPS, 1)
	retry := netretry.New(netretry.Config{Attempts: cfg.Retry.Attempts, Delay: cfg.Retry.Delay}, nil)
	return NewGoogleAPIClient(svc, limiter, retry), limiter.Stop, nil
}

func oauthService(ctx context.Context, auth config.AuthConfig, in io.Reader, out io.Writer) (*gmailv1.Service, error) {
	credPath := auth.Credentials
	if credPath == "" {
		credPath = filepath.Join(auth.Dir, "credentials.json")
	}
	b, err := os.ReadFile(filepath.Clean(credPath))
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", credPath, err)
	}
	oc, err := google.ConfigFromJSON(b, oauthScopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}
	tokPath := auth.Token
	if tokPath == "" {
		tokPath = filepath.Join(auth.Dir, "token.json")
	}
	tok, err := readToken(tokPath)
	if errors.Is(err, os.ErrNotExist) {
		tok, err = tokenFromConsole(ctx, oc, in, out)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokPath, tok); err != nil {
			return nil, fmt.Errorf("save token: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("read token at %s: %w", tokPath, err)
	}
	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(oc.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

func tokenFromConsole(ctx context.Context, oc *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	url := oc.AuthCodeURL("chronotriage", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Open this URL, authorize access, then paste the code:\n%s\n> ", url)
	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read auth code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("empty auth code")
	}
	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange auth code: %w", err)
	}
	return tok, nil
}

func readToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
