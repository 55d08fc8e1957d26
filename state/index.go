package state

import (
	"errors"
	"fmt"

	"github.com/vocdoni/mpn-executor/config"
)

// ErrIndexOutOfRange is returned when an index does not fit the tree.
var ErrIndexOutOfRange = errors.New("index out of range")

// Index addresses one slot: a token position inside an account.
type Index struct {
	Account uint64
	Token   uint64
}

func (i Index) String() string {
	return fmt.Sprintf("%d/%d", i.Account, i.Token)
}

// Flatten returns the position of the slot among the tree leaves. The token
// index occupies the low 2*Log4Tokens bits.
func (i Index) Flatten(sizes config.Sizes) (uint64, error) {
	if i.Account >= sizes.Accounts() || i.Token >= sizes.Tokens() {
		return 0, fmt.Errorf("%w: %s", ErrIndexOutOfRange, i)
	}
	return i.Account<<(2*uint64(sizes.Log4Tokens)) | i.Token, nil
}
