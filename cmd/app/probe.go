package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/protocol"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/stream"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/config"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/logger"
)

var errProbeTimeout = errors.New("no market update before timeout")

func probeCmd() *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Connect to the market stream and print frames until the first market update",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				cfg, err := config.LoadWithEnv(configPath)
				if err != nil {
					return fmt.Errorf("config load failed: %w", err)
				}
				url = cfg.Stream.URL
			}
			return probe(cmd.Context(), cmd.OutOrStdout(), url, timeout)
		},
	}
	cmd.Flags().StringVarP(&url, "url", "u", "", "stream URL (defaults to stream.url from config)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 15*time.Second, "how long to wait for a market update")
	return cmd
}

// probe prints one line per decoded frame and returns after the first
// MARKET_UPDATE.
func probe(ctx context.Context, out io.Writer, url string, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out = &lockedWriter{w: out}

	got := make(chan models.MarketUpdate, 1)
	handler := stream.FrameHandlerFunc(func(raw []byte) {
		msg, err := protocol.Decode(raw)
		if err != nil {
			fmt.Fprintf(out, "malformed frame: %v\n", err)
			return
		}
		switch m := msg.(type) {
		case models.MarketUpdate:
			fmt.Fprintf(out, "%s status=%s source=%s tickers=%d\n", m.Type(), m.Status, m.Source, len(m.Tickers))
			select {
			case got <- m:
			default:
			}
		case models.PortfolioUpdate:
			fmt.Fprintf(out, "%s positions=%d cash=%s\n", m.Type(), len(m.Portfolio.Positions), m.Portfolio.Cash)
		case models.CriticalError:
			fmt.Fprintf(out, "%s %s\n", m.Type(), m.Message)
		default:
			fmt.Fprintln(out, msg.Type())
		}
	})

	client := stream.New(stream.Config{URL: url}, handler, stream.WithLogger(logger.Nop()))
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), time.Second)
		defer scancel()
		_ = client.Shutdown(sctx)
	}()

	fmt.Fprintf(out, "connecting to %s\n", url)
	if err := client.Open(ctx); err != nil {
		if errors.Is(err, stream.ErrMalformedEndpoint) {
			return err
		}
		fmt.Fprintf(out, "connect failed, retrying: %v\n", err)
	}

	select {
	case m := <-got:
		for _, t := range m.Tickers {
			fmt.Fprintf(out, "  %-6s %s (%+.2f%%) vol %s\n", t.Symbol, t.Price, t.Change, t.Volume)
		}
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errProbeTimeout
		}
		return ctx.Err()
	}
}

// lockedWriter serializes writes from the dispatch goroutine and the caller.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
