package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"cpamm/internal/config"
)

func addressFlag(cmd *cobra.Command, name string) (common.Address, error) {
	raw, _ := cmd.Flags().GetString(name)
	return config.ParseAddress(name, raw)
}

func amountFlag(cmd *cobra.Command, name string) (uint64, error) {
	raw, _ := cmd.Flags().GetString(name)
	return config.ParseAmount(name, raw)
}

// amountFlags parses several amount flags in order.
func amountFlags(cmd *cobra.Command, names ...string) ([]uint64, error) {
	out := make([]uint64, len(names))
	for i, name := range names {
		v, err := amountFlag(cmd, name)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func directionFlag(cmd *cobra.Command) (bool, error) {
	raw, _ := cmd.Flags().GetString("direction")
	switch raw {
	case "x-to-y", "":
		return true, nil
	case "y-to-x":
		return false, nil
	default:
		return false, fmt.Errorf("direction must be x-to-y or y-to-x, got %q", raw)
	}
}
