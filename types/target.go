package types

import (
	"github.com/beatoz/fxopgen/types/xerrors"
)

// TargetParams is the subset of the hardware target the generator consumes.
type TargetParams struct {
	LUTInputSize              int  `mapstructure:"lut_input_size" json:"lutInputSize"`
	MemoryBlockBits           int  `mapstructure:"memory_block_bits" json:"memoryBlockBits"`
	HasFaithfulMultiplyAdd    bool `mapstructure:"has_faithful_multiply_add" json:"hasFaithfulMultiplyAdd"`
	PreferLogicTableThreshold int  `mapstructure:"prefer_logic_table_threshold" json:"preferLogicTableThreshold"`
}

func DefaultTargetParams() TargetParams {
	return TargetParams{
		LUTInputSize:              6,
		MemoryBlockBits:           36 * 1024,
		HasFaithfulMultiplyAdd:    false,
		PreferLogicTableThreshold: 4096,
	}
}

func (t TargetParams) Validate() xerrors.XError {
	if t.LUTInputSize < 1 {
		return xerrors.ErrInvalidParams.Wrapf("lut_input_size(%d) must be positive", t.LUTInputSize)
	}
	if t.MemoryBlockBits < 1 {
		return xerrors.ErrInvalidParams.Wrapf("memory_block_bits(%d) must be positive", t.MemoryBlockBits)
	}
	if t.PreferLogicTableThreshold < 0 {
		return xerrors.ErrInvalidParams.Wrapf("prefer_logic_table_threshold(%d) is negative", t.PreferLogicTableThreshold)
	}
	return nil
}
