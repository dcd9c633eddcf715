package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/vocdoni/payments-backend/errors"
)

// authenticator is a middleware that rejects requests without a valid JWT
// token. The client identifier from the token is added to the HTTP header
// as `X-Client-Id`, so that it can be used by the next handlers.
func (a *API) authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			errors.ErrUnauthorized.Write(w)
			return
		}
		if token == nil || jwt.Validate(token, jwt.WithRequiredClaim("clientId")) != nil {
			errors.ErrUnauthorized.Withf("clientId claim not found in JWT token").Write(w)
			return
		}
		clientID, ok := claims["clientId"].(string)
		if !ok {
			errors.ErrUnauthorized.Withf("invalid clientId claim in JWT token").Write(w)
			return
		}
		r.Header.Set("X-Client-Id", clientID)
		next.ServeHTTP(w, r)
	})
}

// buildLoginResponse creates a JWT token for the given client identifier.
// The token is signed with the API secret, following the JWT specification.
// The token is valid for the period specified on jwtExpiration constant.
func (a *API) buildLoginResponse(clientID string) (*LoginResponse, error) {
	j := jwt.New()
	if err := j.Set("clientId", clientID); err != nil {
		return nil, err
	}
	if err := j.Set(jwt.ExpirationKey, time.Now().Add(jwtExpiration).UnixNano()); err != nil {
		return nil, err
	}
	lr := LoginResponse{}
	lr.Expirity = time.Now().Add(jwtExpiration)
	jmap, err := j.AsMap(context.Background())
	if err != nil {
		return nil, err
	}
	_, lr.Token, _ = a.auth.Encode(jmap)
	return &lr, nil
}

// authLoginHandler authenticates an API client against the shared secret
// and returns a JWT token.
func (a *API) authLoginHandler(w http.ResponseWriter, r *http.Request) {
	loginInfo := &LoginRequest{}
	if err := json.NewDecoder(r.Body).Decode(loginInfo); err != nil {
		errors.ErrMalformedBody.Write(w)
		return
	}
	if loginInfo.ClientID == "" {
		errors.ErrMalformedBody.Withf("clientID is required").Write(w)
		return
	}
	if subtle.ConstantTimeCompare([]byte(loginInfo.Secret), []byte(a.secret)) != 1 {
		errors.ErrUnauthorized.Write(w)
		return
	}
	res, err := a.buildLoginResponse(loginInfo.ClientID)
	if err != nil {
		errors.ErrGenericInternalServerError.Write(w)
		return
	}
	httpWriteJSON(w, res)
}

// refreshTokenHandler returns a fresh JWT token for an authenticated client.
func (a *API) refreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	clientID := r.Header.Get("X-Client-Id")
	if clientID == "" {
		errors.ErrUnauthorized.Write(w)
		return
	}
	res, err := a.buildLoginResponse(clientID)
	if err != nil {
		errors.ErrGenericInternalServerError.Write(w)
		return
	}
	httpWriteJSON(w, res)
}
