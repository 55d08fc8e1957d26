package types

import "fmt"

// Kind identifies one of the three batch kinds processed in a round. Rounds
// always process them in declaration order.
type Kind uint8

const (
	KindDeposit Kind = iota
	KindWithdraw
	KindUpdate
)

// Kinds lists every batch kind in processing order.
var Kinds = []Kind{KindDeposit, KindWithdraw, KindUpdate}

func (k Kind) String() string {
	switch k {
	case KindDeposit:
		return "deposit"
	case KindWithdraw:
		return "withdraw"
	case KindUpdate:
		return "update"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// TokenID identifies a token held in a slot of the payment network.
type TokenID uint64

// NativeToken is the host chain native token, used to pay fees by default.
const NativeToken TokenID = 1
