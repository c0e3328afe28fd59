// Package issuer requests single-use credentials for a locked pack.
package issuer

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ppiankov/tokendesk/internal/catalog"
	"github.com/ppiankov/tokendesk/internal/model"
)

// TokenPath is the credential minting endpoint.
const TokenPath = "/api/admin/token"

type tokenRequest struct {
	FormKey     string `json:"form_key"`
	FormVersion string `json:"form_version"`
}

type tokenResponse struct {
	Token *string `json:"token"`
}

// Issuer mints credentials. Exactly one request is made per Issue call.
type Issuer struct {
	client catalog.Doer
}

// New creates an Issuer over the given transport.
func New(client catalog.Doer) *Issuer {
	return &Issuer{client: client}
}

// Issue requests a token for the locked pack. Failures are terminal for
// this attempt and are returned verbatim; nothing is retried.
func (i *Issuer) Issue(ctx context.Context, locked *model.LockedPack, secret string) (string, error) {
	const op = "issue token"

	if strings.TrimSpace(secret) == "" {
		return "", model.Errorf(model.KindValidation, op, "admin secret must not be empty")
	}
	if locked == nil {
		return "", model.Errorf(model.KindPrecondition, op, "no pack is locked")
	}
	if err := locked.Validate(); err != nil {
		return "", err
	}

	raw, err := i.client.Do(ctx, http.MethodPost, TokenPath, secret, tokenRequest{
		FormKey:     locked.FormKey,
		FormVersion: locked.FormVersion,
	})
	if err != nil {
		return "", err
	}

	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &model.Error{
			Kind: model.KindFormat,
			Op:   op,
			Msg:  "token response is not JSON",
			Body: string(raw),
		}
	}
	if resp.Token == nil || *resp.Token == "" {
		return "", model.Errorf(model.KindProtocol, op, "response is missing the token field")
	}
	return *resp.Token, nil
}
