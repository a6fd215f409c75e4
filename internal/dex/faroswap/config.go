// =============================
// File: internal/dex/faroswap/config.go
// =============================
package faroswap

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds the FaroSwap contract addresses and call limits.
type Config struct {
	Router          common.Address
	WrappedNative   common.Address // WPHRS
	TargetToken     common.Address
	PositionManager common.Address
	FeeTier         uint32
	Deadline        time.Duration

	WrapGas      uint64
	SwapGas      uint64
	LiquidityGas uint64
}
