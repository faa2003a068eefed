package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/liusync/internal/cryptox"
)

// ErrCorruptSealed reports a sealed row that cannot be split into nonce and
// ciphertext.
var ErrCorruptSealed = errors.New("corrupt sealed value")

// A sealed row is one byte of nonce length, the nonce, then the ciphertext,
// so a value and its nonce are always written together.

// SaveSealed stores v encrypted under deviceKey.
func SaveSealed(ctx context.Context, repo Repository, key string, v any, deviceKey []byte) error {
	ct, nonce, err := cryptox.SealLocal(v, deviceKey)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	row := make([]byte, 0, 1+len(nonce)+len(ct))
	row = append(row, byte(len(nonce)))
	row = append(row, nonce...)
	row = append(row, ct...)
	return repo.Set(ctx, key, row)
}

// LoadSealed reads a value written by SaveSealed into v. It reports false
// when nothing is stored under key.
func LoadSealed(ctx context.Context, repo Repository, key string, deviceKey []byte, v any) (bool, error) {
	row, err := repo.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if len(row) == 0 {
		return false, nil
	}
	if len(row) < 1+int(row[0]) {
		return false, fmt.Errorf("open %s: %w", key, ErrCorruptSealed)
	}
	n := int(row[0])
	if err := cryptox.OpenLocal(row[1+n:], row[1:1+n], deviceKey, v); err != nil {
		return false, fmt.Errorf("open %s: %w", key, err)
	}
	return true, nil
}
