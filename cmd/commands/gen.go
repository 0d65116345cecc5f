package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tendermint/tendermint/libs/log"
	tmos "github.com/tendermint/tendermint/libs/os"

	cfg "github.com/beatoz/fxopgen/cmd/config"
	"github.com/beatoz/fxopgen/operator"
	"github.com/beatoz/fxopgen/polycache"
)

var (
	genReq    = operator.NewRequest("", false, 0, 0)
	genMethod = operator.Auto.String()
	genJSON   string
)

// NewGenCmd returns the command that generates one operator.
func NewGenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a fixed-point operator for a function",
		Example: `  fxopgen gen --f "sin(pi/4*x)" --lsb_in -16 --lsb_out -16
  fxopgen gen --f "exp(x)" --signed_in --lsb_in -12 --lsb_out -12 --method piecewise --degree 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, xerr := operator.ParseStrategy(genMethod)
			if xerr != nil {
				return xerr
			}
			genReq.Method = m

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			stop := trapSignal(logger, cancel)
			defer stop()

			return GenerateWith(ctx, rootConfig, genReq, cmd.OutOrStdout(), genJSON)
		},
	}
	AddGenFlags(cmd)
	return cmd
}

func AddGenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&genReq.Function, "f", genReq.Function, "function of x, e.g. \"sin(pi/4*x)\"")
	cmd.Flags().BoolVar(&genReq.SignedIn, "signed_in", genReq.SignedIn, "input domain is [-1,1) instead of [0,1)")
	cmd.Flags().IntVar(&genReq.LSBIn, "lsb_in", genReq.LSBIn, "weight of the input LSB, negative")
	cmd.Flags().IntVar(&genReq.LSBOut, "lsb_out", genReq.LSBOut, "weight of the output LSB")
	cmd.Flags().StringVar(&genMethod, "method", genMethod, "auto | table | simplepoly | piecewise | varying | multipartite")
	cmd.Flags().IntVar(&genReq.Degree, "degree", genReq.Degree, "polynomial degree, -1 to search it")
	cmd.Flags().IntVar(&genReq.Alpha, "alpha", genReq.Alpha, "split depth of a uniform piecewise polynomial, -1 to search it")
	cmd.Flags().IntVar(&genReq.NbTO, "nbto", genReq.NbTO, "number of multipartite offset tables, 0 to search it")
	cmd.Flags().BoolVar(&genReq.ScaleOutput, "scale_output", genReq.ScaleOutput, "scale the output by (1-2^lsb_out) so that it never reaches 2^(msb_out+1)")
	cmd.Flags().BoolVar(&genReq.Validate, "validate", genReq.Validate, "check every input codeword against the faithful brackets")
	cmd.Flags().StringVar(&genJSON, "json", genJSON, "write the result as JSON to this file")
	_ = cmd.MarkFlagRequired("f")
	_ = cmd.MarkFlagRequired("lsb_in")
	_ = cmd.MarkFlagRequired("lsb_out")
}

// GenerateWith runs one request with the cache and search settings of config,
// prints the report to out and optionally exports the result.
func GenerateWith(ctx context.Context, config *cfg.Config, req operator.Request, out io.Writer, jsonFile string) error {
	cache, xerr := polycache.Open(config.CacheBackend, config.CacheDirPath(), logger)
	if xerr != nil {
		return xerr
	}
	defer func() {
		st := cache.Stats()
		logger.Debug("cache", "hits", st.Hits, "misses", st.Misses, "puts", st.Puts)
		if err := cache.Close(); err != nil {
			logger.Error("closing cache", "err", err)
		}
	}()

	g := operator.NewGenerator(config.GeneratorParams(), cache, logger)
	res, xerr := g.Generate(ctx, req)
	if xerr != nil {
		return xerr
	}
	if _, err := fmt.Fprint(out, operator.Report(res)); err != nil {
		return err
	}
	if res.Validation != nil && !res.Validation.OK() {
		return fmt.Errorf("%s is not faithful: %s", res.Method, res.Validation.String())
	}

	if jsonFile != "" {
		bz, xerr := operator.MarshalResult(res)
		if xerr != nil {
			return xerr
		}
		if err := tmos.WriteFile(jsonFile, bz, 0o644); err != nil {
			return err
		}
		logger.Info("Exported", "path", jsonFile)
	}
	return nil
}

// trapSignal cancels a running search on SIGINT or SIGTERM. The returned
// func unregisters the handler and waits for it to exit.
func trapSignal(logger log.Logger, cb func()) func() {
	var signals = []os.Signal{
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
	}

	c := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(c, signals...)
	go func() {
		defer close(done)
		for sig := range c {
			logger.Info("signal trapped", "msg", log.NewLazySprintf("captured %v, cancelling...", sig.String()))
			if cb != nil {
				cb()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(c)
			close(c)
			<-done
		})
	}
}
