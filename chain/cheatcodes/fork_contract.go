package cheatcodes

import (
	"math/big"

	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/multifork/utils"
)

// NewForkCheatCodeContract obtains a CheatCodeContract which exposes the fork cheatcodes of the given implementation.
// Returns the contract, or an error if one occurs.
func NewForkCheatCodeContract(cheatcodes ForkCheatcodes) (*CheatCodeContract, error) {
	contract := newCheatCodeContract(cheatcodes, CheatCodeContractAddress)

	// Define the ABI argument types
	typeAddress, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, err
	}
	typeAddressSlice, err := abi.NewType("address[]", "", nil)
	if err != nil {
		return nil, err
	}
	typeBytes, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	typeBytes32, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		return nil, err
	}
	typeBytes32Slice, err := abi.NewType("bytes32[]", "", nil)
	if err != nil {
		return nil, err
	}
	typeUint256, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, err
	}
	typeString, err := abi.NewType("string", "", nil)
	if err != nil {
		return nil, err
	}
	typeStringPairSlice, err := abi.NewType("string[2][]", "", nil)
	if err != nil {
		return nil, err
	}
	typeBool, err := abi.NewType("bool", "", nil)
	if err != nil {
		return nil, err
	}
	typeRpcSlice, err := abi.NewType("tuple[]", "Rpc[]", []abi.ArgumentMarshaling{
		{Name: "key", Type: "string"},
		{Name: "url", Type: "string"},
	})
	if err != nil {
		return nil, err
	}
	typeEthGetLogsSlice, err := abi.NewType("tuple[]", "EthGetLogs[]", []abi.ArgumentMarshaling{
		{Name: "emitter", Type: "address"},
		{Name: "topics", Type: "bytes32[]"},
		{Name: "data", Type: "bytes"},
		{Name: "blockNumber", Type: "uint256"},
		{Name: "transactionHash", Type: "bytes32"},
		{Name: "transactionIndex", Type: "uint256"},
		{Name: "blockHash", Type: "bytes32"},
		{Name: "logIndex", Type: "uint256"},
		{Name: "removed", Type: "bool"},
	})
	if err != nil {
		return nil, err
	}
	forkIdOutput := abi.Arguments{{Type: typeUint256}}

	// createFork: creates a fork at the chain tip, a block, or right before a transaction
	contract.addMethod("createFork", abi.Arguments{{Type: typeString}}, forkIdOutput,
		func(inputs []any) ([]any, error) {
			return single(cheatcodes.CreateFork(inputs[0].(string), nil))
		},
	)
	contract.addMethod("createFork", abi.Arguments{{Type: typeString}, {Type: typeUint256}}, forkIdOutput,
		func(inputs []any) ([]any, error) {
			return single(cheatcodes.CreateFork(inputs[0].(string), inputs[1].(*big.Int)))
		},
	)
	contract.addMethod("createFork", abi.Arguments{{Type: typeString}, {Type: typeBytes32}}, forkIdOutput,
		func(inputs []any) ([]any, error) {
			return single(cheatcodes.CreateForkAtTransaction(inputs[0].(string), inputs[1].([32]byte)))
		},
	)

	// createSelectFork: same as createFork, also selecting the new fork
	contract.addMethod("createSelectFork", abi.Arguments{{Type: typeString}}, forkIdOutput,
		func(inputs []any) ([]any, error) {
			return single(cheatcodes.CreateSelectFork(inputs[0].(string), nil))
		},
	)
	contract.addMethod("createSelectFork", abi.Arguments{{Type: typeString}, {Type: typeUint256}}, forkIdOutput,
		func(inputs []any) ([]any, error) {
			return single(cheatcodes.CreateSelectFork(inputs[0].(string), inputs[1].(*big.Int)))
		},
	)
	contract.addMethod("createSelectFork", abi.Arguments{{Type: typeString}, {Type: typeBytes32}}, forkIdOutput,
		func(inputs []any) ([]any, error) {
			return single(cheatcodes.CreateSelectForkAtTransaction(inputs[0].(string), inputs[1].([32]byte)))
		},
	)

	contract.addMethod("selectFork", abi.Arguments{{Type: typeUint256}}, abi.Arguments{},
		func(inputs []any) ([]any, error) {
			return nil, cheatcodes.SelectFork(inputs[0].(*big.Int))
		},
	)
	contract.addMethod("activeFork", abi.Arguments{}, forkIdOutput,
		func(inputs []any) ([]any, error) {
			return single(cheatcodes.ActiveFork())
		},
	)

	// rollFork: re-anchors the active fork or a given one
	contract.addMethod("rollFork", abi.Arguments{{Type: typeUint256}}, abi.Arguments{},
		func(inputs []any) ([]any, error) {
			return nil, cheatcodes.RollFork(nil, inputs[0].(*big.Int))
		},
	)
	contract.addMethod("rollFork", abi.Arguments{{Type: typeBytes32}}, abi.Arguments{},
		func(inputs []any) ([]any, error) {
			return nil, cheatcodes.RollForkToTransaction(nil, inputs[0].([32]byte))
		},
	)
	contract.addMethod("rollFork", abi.Arguments{{Type: typeUint256}, {Type: typeUint256}}, abi.Arguments{},
		func(inputs []any) ([]any, error) {
			return nil, cheatcodes.RollFork(inputs[0].(*big.Int), inputs[1].(*big.Int))
		},
	)
	contract.addMethod("rollFork", abi.Arguments{{Type: typeUint256}, {Type: typeBytes32}}, abi.Arguments{},
		func(inputs []any) ([]any, error) {
			return nil, cheatcodes.RollForkToTransaction(inputs[0].(*big.Int), inputs[1].([32]byte))
		},
	)

	// makePersistent: takes one to three addresses, or an array
	for count := 1; count <= 3; count++ {
		inputs := make(abi.Arguments, count)
		for i := range inputs {
			inputs[i] = abi.Argument{Type: typeAddress}
		}
		contract.addMethod("makePersistent", inputs, abi.Arguments{},
			func(inputs []any) ([]any, error) {
				cheatcodes.MakePersistent(toAddresses(inputs)...)
				return nil, nil
			},
		)
	}
	contract.addMethod("makePersistent", abi.Arguments{{Type: typeAddressSlice}}, abi.Arguments{},
		func(inputs []any) ([]any, error) {
			cheatcodes.MakePersistent(inputs[0].([]common.Address)...)
			return nil, nil
		},
	)
	contract.addMethod("revokePersistent", abi.Arguments{{Type: typeAddress}}, abi.Arguments{},
		func(inputs []any) ([]any, error) {
			cheatcodes.RevokePersistent(inputs[0].(common.Address))
			return nil, nil
		},
	)
	contract.addMethod("revokePersistent", abi.Arguments{{Type: typeAddressSlice}}, abi.Arguments{},
		func(inputs []any) ([]any, error) {
			cheatcodes.RevokePersistent(inputs[0].([]common.Address)...)
			return nil, nil
		},
	)
	contract.addMethod("isPersistent", abi.Arguments{{Type: typeAddress}}, abi.Arguments{{Type: typeBool}},
		func(inputs []any) ([]any, error) {
			return []any{cheatcodes.IsPersistent(inputs[0].(common.Address))}, nil
		},
	)

	contract.addMethod("allowCheatcodes", abi.Arguments{{Type: typeAddress}}, abi.Arguments{},
		func(inputs []any) ([]any, error) {
			cheatcodes.AllowCheatcodes(inputs[0].(common.Address))
			return nil, nil
		},
	)

	// RPC endpoints from the forking config
	contract.addMethod("rpcUrl", abi.Arguments{{Type: typeString}}, abi.Arguments{{Type: typeString}},
		func(inputs []any) ([]any, error) {
			return single(cheatcodes.RpcUrl(inputs[0].(string)))
		},
	)
	contract.addMethod("rpcUrls", abi.Arguments{}, abi.Arguments{{Type: typeStringPairSlice}},
		func(inputs []any) ([]any, error) {
			return single(cheatcodes.RpcUrls())
		},
	)
	contract.addMethod("rpcUrlStructs", abi.Arguments{}, abi.Arguments{{Type: typeRpcSlice}},
		func(inputs []any) ([]any, error) {
			return single(cheatcodes.RpcUrlStructs())
		},
	)

	// transact: executes a historical transaction on the active fork or a given one
	contract.addMethod("transact", abi.Arguments{{Type: typeBytes32}}, abi.Arguments{},
		func(inputs []any) ([]any, error) {
			return nil, cheatcodes.Transact(nil, inputs[0].([32]byte))
		},
	)
	contract.addMethod("transact", abi.Arguments{{Type: typeUint256}, {Type: typeBytes32}}, abi.Arguments{},
		func(inputs []any) ([]any, error) {
			return nil, cheatcodes.Transact(inputs[0].(*big.Int), inputs[1].([32]byte))
		},
	)

	contract.addMethod("eth_getLogs",
		abi.Arguments{{Type: typeUint256}, {Type: typeUint256}, {Type: typeAddress}, {Type: typeBytes32Slice}},
		abi.Arguments{{Type: typeEthGetLogsSlice}},
		func(inputs []any) ([]any, error) {
			topics := utils.SliceSelect(inputs[3].([][32]byte), func(topic [32]byte) common.Hash { return topic })
			return single(cheatcodes.EthGetLogs(inputs[0].(*big.Int), inputs[1].(*big.Int), inputs[2].(common.Address), topics))
		},
	)
	contract.addMethod("rpc", abi.Arguments{{Type: typeString}, {Type: typeString}}, abi.Arguments{{Type: typeBytes}},
		func(inputs []any) ([]any, error) {
			result, err := cheatcodes.Rpc(inputs[0].(string), inputs[1].(string))
			if err != nil {
				return nil, err
			}
			return []any{rpcResultToBytes(result)}, nil
		},
	)

	return contract, nil
}

// single wraps the result of a cheatcode returning one value into handler outputs.
func single[T any](value T, err error) ([]any, error) {
	if err != nil {
		return nil, err
	}
	return []any{value}, nil
}

func toAddresses(inputs []any) []common.Address {
	addrs := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		addrs = append(addrs, input.(common.Address))
	}
	return addrs
}
