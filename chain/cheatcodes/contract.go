package cheatcodes

import (
	"encoding/binary"
	"encoding/json"
	"strings"

	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/medusa-geth/core/vm"
)

// CheatCodeContractAddress is the address test contracts call fork cheatcodes at.
var CheatCodeContractAddress = common.HexToAddress("0x7109709ECfa91a80626fF3989D68f67F5b1DD12D")

// cheatCodeMethodHandler handles a call to a contract method with its unpacked input values.
// Returns unpacked output values, or an error if one occurs.
type cheatCodeMethodHandler func(args []any) ([]any, error)

// cheatCodeMethod defines the method information for a given cheatcode.
type cheatCodeMethod struct {
	// method is the ABI method definition used to pack and unpack both input and output arguments.
	method abi.Method

	// handler represents the method handler to call with the unpacked input arguments
	handler cheatCodeMethodHandler
}

/*
CheatCodeContract decodes ABI calldata sent to CheatCodeContractAddress and dispatches it to a ForkCheatcodes
implementation. Overloads of a cheatcode are distinct methods with their own selector.
*/
type CheatCodeContract struct {
	// address defines the address the cheat code contract should be installed at.
	address common.Address

	// cheatcodes is the implementation calls are dispatched to.
	cheatcodes ForkCheatcodes

	// methodInfo describes a table of methodId (function selectors) to cheat code methods. This acts as a switch table
	// for different methods in the contract.
	methodInfo map[uint32]*cheatCodeMethod
}

// newCheatCodeContract returns an empty CheatCodeContract dispatching to cheatcodes.
func newCheatCodeContract(cheatcodes ForkCheatcodes, address common.Address) *CheatCodeContract {
	return &CheatCodeContract{
		address:    address,
		cheatcodes: cheatcodes,
		methodInfo: make(map[uint32]*cheatCodeMethod),
	}
}

// addMethod adds a new method to the contract.
func (c *CheatCodeContract) addMethod(name string, inputs abi.Arguments, outputs abi.Arguments, handler cheatCodeMethodHandler) {
	if name == "" {
		panic("could not add method to cheatcode contract, empty method name provided")
	}
	if handler == nil {
		panic("could not add method to cheatcode contract, nil method handler provided")
	}

	method := abi.NewMethod(name, name, abi.Function, "external", false, false, inputs, outputs)
	methodId := binary.LittleEndian.Uint32(method.ID)
	c.methodInfo[methodId] = &cheatCodeMethod{
		method:  method,
		handler: handler,
	}
}

// Address returns the address the contract is installed at.
func (c *CheatCodeContract) Address() common.Address {
	return c.address
}

// Method returns the ABI definition of the method with the given signature, e.g. "createFork(string,uint256)".
func (c *CheatCodeContract) Method(signature string) (abi.Method, bool) {
	for _, info := range c.methodInfo {
		if info.method.Sig == signature {
			return info.method, true
		}
	}
	return abi.Method{}, false
}

// RequiredGas determines the amount of gas necessary to execute the contract with the given input data.
func (c *CheatCodeContract) RequiredGas(input []byte) uint64 {
	return 0
}

// Run executes the cheatcode selected by input. Calls to unknown selectors revert, failures of the cheatcode itself
// are returned as is.
func (c *CheatCodeContract) Run(input []byte) ([]byte, error) {
	// Calling any method should require at least a signature
	if len(input) < 4 {
		return []byte{}, vm.ErrExecutionReverted
	}

	methodId := binary.LittleEndian.Uint32(input[:4])
	methodInfo, methodInfoExists := c.methodInfo[methodId]
	if !methodInfoExists {
		return []byte{}, vm.ErrExecutionReverted
	}

	inputValues, err := methodInfo.method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, err
	}

	outputValues, err := methodInfo.handler(inputValues)
	if err != nil {
		return nil, err
	}
	return methodInfo.method.Outputs.Pack(outputValues...)
}

// rpcResultToBytes converts a JSON-RPC result into the bytes returned to a test contract: hex strings are decoded,
// anything else is returned as its JSON text.
func rpcResultToBytes(result []byte) []byte {
	var text string
	if err := json.Unmarshal(result, &text); err == nil && strings.HasPrefix(text, "0x") {
		if decoded, err := hexutil.Decode(text); err == nil {
			return decoded
		}
	}
	return result
}
