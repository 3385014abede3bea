// Package google verifies Google sign-in access tokens against the userinfo API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

var (
	ErrAuthenticationFailed = errors.New("Google Authentication failed")
	ErrForeignDomain        = errors.New("Not arbisoft user.")
)

// Profile is the subset of userinfo the portal uses.
type Profile struct {
	ID           string
	Email        string
	HostedDomain string
	GivenName    string
	FamilyName   string
}

// Verifier resolves an access token to the Google account behind it.
type Verifier interface {
	UserInfo(ctx context.Context, accessToken string) (*Profile, error)
}

// Client 调用 Google userinfo 接口
type Client struct {
	endpoint string
}

// NewClient uses the public Google endpoint unless endpoint is set.
func NewClient(endpoint string) *Client {
	return &Client{endpoint: endpoint}
}

func (c *Client) UserInfo(ctx context.Context, accessToken string) (*Profile, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrAuthenticationFailed
	}
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})),
	}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := goauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	if info.Email == "" || info.Id == "" {
		return nil, fmt.Errorf("%w: userinfo without email or id", ErrAuthenticationFailed)
	}
	return &Profile{
		ID:           info.Id,
		Email:        info.Email,
		HostedDomain: info.Hd,
		GivenName:    info.GivenName,
		FamilyName:   info.FamilyName,
	}, nil
}

// CheckDomain enforces the hosted-domain restriction when onlyInternal is set.
func CheckDomain(p *Profile, onlyInternal bool, domain string) error {
	if onlyInternal && !strings.EqualFold(p.HostedDomain, domain) {
		return ErrForeignDomain
	}
	return nil
}

// Username is what a first Google sign-in stores as the username (64 chars max).
func Username(p *Profile) string {
	name := p.Email + "_" + p.ID
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
