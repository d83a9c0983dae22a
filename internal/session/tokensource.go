package session

import (
	"context"
	"time"

	"github.com/jrschumacher/folio/internal/jwtutil"
	"golang.org/x/oauth2"
)

type tokenSource struct {
	ctx    context.Context
	svc    *Service
	creds  Credentials
	buffer int64
}

// TokenSource adapts the accessor for oauth2 HTTP clients. Tokens are cached
// until shortly before their exp claim.
func (s *Service) TokenSource(ctx context.Context, creds Credentials, buffer int64) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &tokenSource{ctx: ctx, svc: s, creds: creds, buffer: buffer})
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	access, err := ts.svc.ValidAccessCredential(ts.ctx, ts.creds, ts.buffer)
	if err != nil {
		return nil, err
	}
	ts.creds.Access = access

	tok := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if claims, err := jwtutil.Decode(access); err == nil {
		if exp, ok := claims.Expiry(); ok {
			tok.Expiry = time.Unix(exp, 0)
		}
	}
	return tok, nil
}
