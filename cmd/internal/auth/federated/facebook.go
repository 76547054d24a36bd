package federated

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"warden/cmd/security/token"
)

// FacebookName is the registry name of the Facebook provider.
const FacebookName = "facebook"

// DefaultGraphURL is the Graph API base used when none is configured.
const DefaultGraphURL = "https://graph.facebook.com"

const maxGraphBody = 1 << 20

var errGraphRejected = errors.New("facebook: token rejected")

// Facebook verifies user access tokens against the Graph API /me endpoint.
type Facebook struct {
	graphURL  string
	appSecret []byte
	base      *http.Client
}

// NewFacebook returns a provider querying graphURL. appSecret is optional;
// when set every request carries appsecret_proof.
func NewFacebook(graphURL, appSecret string, base *http.Client) *Facebook {
	graphURL = strings.TrimRight(strings.TrimSpace(graphURL), "/")
	if graphURL == "" {
		graphURL = DefaultGraphURL
	}
	if base == nil {
		base = http.DefaultClient
	}
	f := &Facebook{graphURL: graphURL, base: base}
	if appSecret != "" {
		f.appSecret = []byte(appSecret)
	}
	return f
}

func (f *Facebook) Name() string { return FacebookName }

type graphMe struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Verify implements Provider.
func (f *Facebook) Verify(ctx context.Context, accessToken string) (Profile, error) {
	const op = "federated.Facebook.Verify"

	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return Profile{}, fmt.Errorf("%s: empty token: %w", op, errGraphRejected)
	}

	q := url.Values{}
	q.Set("fields", "id,name,email")
	if len(f.appSecret) > 0 {
		q.Set("appsecret_proof", token.HashHMACSHA256Hex(accessToken, f.appSecret))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.graphURL+"/me?"+q.Encode(), nil)
	if err != nil {
		return Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, f.base),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
	)
	resp, err := client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxGraphBody))
		return Profile{}, fmt.Errorf("%s: graph status %d: %w", op, resp.StatusCode, errGraphRejected)
	}

	var me graphMe
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxGraphBody)).Decode(&me); err != nil {
		return Profile{}, fmt.Errorf("%s: decode: %w", op, err)
	}
	if strings.TrimSpace(me.ID) == "" {
		return Profile{}, fmt.Errorf("%s: missing id: %w", op, errGraphRejected)
	}

	return Profile{
		Subject: strings.TrimSpace(me.ID),
		Email:   strings.TrimSpace(me.Email),
		Name:    strings.TrimSpace(me.Name),
	}, nil
}
