package assets

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20StringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

// Some older tokens (MKR, SAI) return bytes32 for symbol and name.
const erc20Bytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	parseOnce  sync.Once
	erc20Str   abi.ABI
	erc20B32   abi.ABI
	parseError error
)

func erc20ABIs() (abi.ABI, abi.ABI, error) {
	parseOnce.Do(func() {
		erc20Str, parseError = abi.JSON(strings.NewReader(erc20StringJSON))
		if parseError != nil {
			return
		}
		erc20B32, parseError = abi.JSON(strings.NewReader(erc20Bytes32JSON))
	})
	return erc20Str, erc20B32, parseError
}
