package cli

import (
	"context"

	"github.com/dmitrijs2005/shopkeeper/internal/client/storage"
)

// Settings keys for persisted session data.
const (
	SettingAuthToken = "auth_token"
	SettingUserName  = "user_name"
)

// storeTokenSource keeps the bearer token in the local store's settings
// table so a login survives restarts. It satisfies gateway.TokenSource.
type storeTokenSource struct {
	store *storage.Store
}

func (t *storeTokenSource) Token(ctx context.Context) (string, error) {
	var token string
	ok, err := t.store.GetSetting(ctx, SettingAuthToken, &token)
	if err != nil || !ok {
		return "", err
	}
	return token, nil
}

func (t *storeTokenSource) Save(ctx context.Context, token string) error {
	return t.store.SetSetting(ctx, SettingAuthToken, token)
}
