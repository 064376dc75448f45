// Package contract binds the on-chain BlindBarter program: call packing,
// result decoding, event parsing, and the read-only dry-run used to vet
// encrypted submissions before gas is spent. The call contract is fixed;
// this package never alters it.
package contract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// blindBarterABI mirrors contracts/index.sol. externalEuint64 is bytes32 on
// the wire; the input proof is dynamic bytes.
const blindBarterABI = `[
  {"type":"function","name":"version","stateMutability":"pure","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"createBarter","stateMutability":"nonpayable","inputs":[{"name":"counterparty","type":"address"},{"name":"tolBps","type":"uint16"}],"outputs":[{"name":"id","type":"uint256"}]},
  {"type":"function","name":"submitValuation","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"},{"name":"valExt","type":"bytes32"},{"name":"proof","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"computeFairness","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"fairCt","type":"bytes32"}]},
  {"type":"function","name":"submitAndCompute","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"},{"name":"valExt","type":"bytes32"},{"name":"proof","type":"bytes"}],"outputs":[{"name":"fairCt","type":"bytes32"}]},
  {"type":"function","name":"cancel","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getBarterInfo","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"partyA","type":"address"},{"name":"partyB","type":"address"},{"name":"tolBps","type":"uint16"},{"name":"hasA","type":"bool"},{"name":"hasB","type":"bool"},{"name":"hasResult","type":"bool"},{"name":"canceled","type":"bool"}]},
  {"type":"function","name":"getResultHandle","stateMutability":"view","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"barterCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"MAX_TOL_BPS","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint16"}]},
  {"type":"function","name":"ONE_BPS","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint64"}]},
  {"type":"event","name":"BarterCreated","inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"partyA","type":"address","indexed":true},{"name":"partyB","type":"address","indexed":true},{"name":"tolBps","type":"uint16","indexed":false}],"anonymous":false},
  {"type":"event","name":"ValuationSubmitted","inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"party","type":"address","indexed":true}],"anonymous":false},
  {"type":"event","name":"FairnessComputed","inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"resultHandle","type":"bytes32","indexed":false}],"anonymous":false},
  {"type":"event","name":"BarterCanceled","inputs":[{"name":"id","type":"uint256","indexed":true}],"anonymous":false}
]`

// parsedABI is parsed once at package init; the ABI literal is a constant,
// so a parse failure is a programming error.
var parsedABI = func() abi.ABI {
	a, err := abi.JSON(strings.NewReader(blindBarterABI))
	if err != nil {
		panic("contract: invalid embedded ABI: " + err.Error())
	}
	return a
}()

// ABI returns the parsed BlindBarter ABI.
func ABI() abi.ABI {
	return parsedABI
}
