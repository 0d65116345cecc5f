package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/beatoz/fxopgen/libs/jsonx"
	"github.com/beatoz/fxopgen/tables"
	"github.com/beatoz/fxopgen/types"
	"github.com/beatoz/fxopgen/types/xerrors"
)

var (
	compressWIn    int
	compressWOut   int
	compressValues string
	compressJSON   bool
)

// NewCompressCmd returns the command that compresses a table of integers.
func NewCompressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compress",
		Short: "Apply differential compression to a table of unsigned integers",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if compressValues != "-" {
				f, err := os.Open(compressValues)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			values, xerr := ReadValues(in)
			if xerr != nil {
				return xerr
			}
			return CompressWith(values, compressWIn, compressWOut, rootConfig.Target, compressJSON, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&compressWIn, "win", compressWIn, "table input width, 2^win values")
	cmd.Flags().IntVar(&compressWOut, "wout", compressWOut, "table word width")
	cmd.Flags().StringVar(&compressValues, "values", "-", "file of values separated by spaces, commas or newlines, - for stdin")
	cmd.Flags().BoolVar(&compressJSON, "json", compressJSON, "print the compression as JSON")
	_ = cmd.MarkFlagRequired("win")
	_ = cmd.MarkFlagRequired("wout")
	return cmd
}

// ReadValues parses decimal or 0x-prefixed hexadecimal integers.
func ReadValues(r io.Reader) ([]*uint256.Int, xerrors.XError) {
	var values []*uint256.Int
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		for _, tok := range strings.Split(sc.Text(), ",") {
			if tok == "" {
				continue
			}
			var (
				v   *uint256.Int
				err error
			)
			if strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X") {
				v, err = uint256.FromHex("0x" + tok[2:])
			} else {
				v, err = uint256.FromDecimal(tok)
			}
			if err != nil {
				return nil, xerrors.ErrInvalidParams.Wrapf("value #%d %q: %v", len(values), tok, err)
			}
			values = append(values, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, xerrors.ErrCommon.Wrap(err)
	}
	return values, nil
}

// CompressWith compresses values and checks the reconstruction.
func CompressWith(values []*uint256.Int, wIn, wOut int, target types.TargetParams, asJSON bool, out io.Writer) error {
	tbl, xerr := tables.NewTable(values, wIn, wOut)
	if xerr != nil {
		return xerr
	}
	dc := tbl.Compress(tables.TargetCost{Params: target})
	for i, v := range dc.GetInitialTable() {
		if !v.Eq(values[i]) {
			return fmt.Errorf("reconstruction mismatch at %d: %s != %s", i, v.Dec(), values[i].Dec())
		}
	}

	if asJSON {
		bz, err := jsonx.MarshalIndent(dc, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(bz))
		return err
	}
	_, err := fmt.Fprintln(out, dc.Report())
	return err
}
