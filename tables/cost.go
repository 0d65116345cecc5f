package tables

import (
	"github.com/beatoz/fxopgen/types"
)

// CostModel prices a table of 2^wIn words of wOut bits.
type CostModel interface {
	TableCost(wIn, wOut int) int64
}

// RawBitCost counts stored bits.
type RawBitCost struct{}

func (RawBitCost) TableCost(wIn, wOut int) int64 {
	if wOut <= 0 {
		return 0
	}
	return int64(wOut) << wIn
}

// LUTCost counts LUTs of LUTInputs inputs, one per output bit and per
// 2^LUTInputs words.
type LUTCost struct {
	LUTInputs int
}

func (c LUTCost) TableCost(wIn, wOut int) int64 {
	if wOut <= 0 {
		return 0
	}
	return int64(wOut) << max(0, wIn-c.LUTInputs)
}

// TargetCost counts storage bits: LUT storage for small tables and whole
// memory blocks above the logic threshold.
type TargetCost struct {
	Params types.TargetParams
}

func (c TargetCost) TableCost(wIn, wOut int) int64 {
	if wOut <= 0 {
		return 0
	}
	bits := int64(wOut) << wIn
	block := int64(c.Params.MemoryBlockBits)
	if bits <= int64(c.Params.PreferLogicTableThreshold) || block <= 0 {
		return int64(wOut) << max(wIn, c.Params.LUTInputSize)
	}
	return (bits + block - 1) / block * block
}
