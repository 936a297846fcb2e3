package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/devrev/edgecdn/internal/client"
	"github.com/devrev/edgecdn/internal/liveness"
	"github.com/devrev/edgecdn/internal/util/checksum"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

var (
	ErrNotEnoughArgs  = errors.New("not enough args")
	ErrLengthMismatch = errors.New("stored length differs from local size")
	ErrChecksum       = errors.New("stored checksum differs from local file")
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	dim   = color.New(color.FgHiBlack).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

func newPool(ctx *cli.Context) *client.Pool {
	return client.NewPool(client.PoolConfig{ChunkSize: ctx.Int("chunk-size")}, zap.NewNop())
}

func withTimeout(ctx *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Context, ctx.Duration("timeout"))
}

// cdnctl upload --origin host:port FILE...
func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "upload files to the origin, which replicates them to its backups",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "origin", Aliases: []string{"o"}, Value: "localhost:8001", EnvVars: []string{"CDN_ORIGIN"}},
			&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Usage: "store a single FILE under this key instead of its base name"},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() == 0 {
				return ErrNotEnoughArgs
			}
			if ctx.IsSet("key") && ctx.NArg() > 1 {
				return fmt.Errorf("--key needs exactly one FILE")
			}

			pool := newPool(ctx)
			defer pool.Close()
			c, err := pool.Client(ctx.String("origin"))
			if err != nil {
				return err
			}

			for _, path := range ctx.Args().Slice() {
				key := filepath.ToSlash(filepath.Base(path))
				if ctx.IsSet("key") {
					key = ctx.String("key")
				}
				if err := uploadOne(ctx, c, path, key); err != nil {
					fmt.Fprintf(ctx.App.Writer, "%s %s: %v\n", red("FAIL"), key, err)
					return err
				}
			}
			return nil
		},
	}
}

func uploadOne(ctx *cli.Context, c *client.FileClient, path, key string) error {
	sum, size, err := checksum.File(path)
	if err != nil {
		return err
	}

	rctx, cancel := withTimeout(ctx)
	defer cancel()
	reply, err := c.UploadFile(rctx, path, key)
	if err != nil {
		return err
	}
	if reply.GetLength() != size {
		return fmt.Errorf("%w: stored %d, local %d", ErrLengthMismatch, reply.GetLength(), size)
	}
	if reply.GetChecksum() != 0 && reply.GetChecksum() != sum {
		return fmt.Errorf("%w: stored %08x, local %08x", ErrChecksum, reply.GetChecksum(), sum)
	}
	fmt.Fprintf(ctx.App.Writer, "%s %s %s\n", green("OK"), key, dim(fmt.Sprintf("(%d bytes, crc32 %08x)", reply.GetLength(), reply.GetChecksum())))
	return nil
}

// cdnctl download --node host:port [--out DIR] KEY
func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "download a file from an origin or replica",
		ArgsUsage: "KEY",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "node", Aliases: []string{"n"}, Value: "localhost:8001"},
			&cli.StringFlag{Name: "out", Usage: "directory to write into; - for stdout", Value: "."},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return ErrNotEnoughArgs
			}
			key := ctx.Args().First()

			pool := newPool(ctx)
			defer pool.Close()
			c, err := pool.Client(ctx.String("node"))
			if err != nil {
				return err
			}

			rctx, cancel := withTimeout(ctx)
			defer cancel()
			r, found, err := c.Fetch(rctx, key)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%s not found on %s", key, c.Address())
			}

			if ctx.String("out") == "-" {
				_, err := io.Copy(ctx.App.Writer, r)
				return err
			}

			dst := filepath.Join(ctx.String("out"), filepath.FromSlash(key))
			if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				return err
			}
			f, err := os.Create(dst)
			if err != nil {
				return err
			}
			n, err := io.Copy(f, r)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(dst)
				return err
			}
			fmt.Fprintf(ctx.App.Writer, "%s %s -> %s %s\n", green("OK"), key, dst, dim(fmt.Sprintf("(%d bytes)", n)))
			return nil
		},
	}
}

// cdnctl heartbeat ADDR...
// host:port addresses are file servers; URLs are proxies or the balancer.
func heartbeatCommand() *cli.Command {
	return &cli.Command{
		Name:      "heartbeat",
		Usage:     "check whether nodes answer heartbeats",
		ArgsUsage: "ADDR...",
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() == 0 {
				return ErrNotEnoughArgs
			}

			pool := newPool(ctx)
			defer pool.Close()
			grpcProber := liveness.NewGRPCProber(pool)
			httpProber := liveness.NewHTTPProber(&http.Client{Timeout: ctx.Duration("timeout")})

			dead := 0
			for _, addr := range ctx.Args().Slice() {
				rctx, cancel := withTimeout(ctx)
				var err error
				if isURL(addr) {
					err = httpProber.Probe(rctx, addr)
				} else {
					err = grpcProber.Probe(rctx, addr)
				}
				cancel()

				if err != nil {
					dead++
					fmt.Fprintf(ctx.App.Writer, "%s %s %s\n", red("DEAD"), addr, dim(err.Error()))
					continue
				}
				fmt.Fprintf(ctx.App.Writer, "%s %s\n", green("ALIVE"), addr)
			}
			if dead > 0 {
				return cli.Exit("", 2)
			}
			return nil
		},
	}
}

// cdnctl route --balancer URL [--area N] [PATH]
func routeCommand() *cli.Command {
	return &cli.Command{
		Name:      "route",
		Usage:     "print where the load balancer would send a request",
		ArgsUsage: "[PATH]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "balancer", Aliases: []string{"b"}, Value: "http://localhost:8000/"},
			&cli.IntFlag{Name: "area", Aliases: []string{"a"}, Value: -1, Usage: "area id; omit for any area"},
		},
		Action: func(ctx *cli.Context) error {
			target, err := resolveRoute(ctx.Context, &http.Client{Timeout: ctx.Duration("timeout")},
				ctx.String("balancer"), ctx.Args().First(), ctx.Int("area"))
			if err != nil {
				return err
			}
			fmt.Fprintln(ctx.App.Writer, bold(target))
			return nil
		},
	}
}

// resolveRoute asks the balancer for path without following the redirect.
// A negative area leaves the choice to the balancer.
func resolveRoute(ctx context.Context, hc *http.Client, balancer, path string, area int) (string, error) {
	u, err := url.Parse(balancer)
	if err != nil {
		return "", fmt.Errorf("invalid balancer URL: %w", err)
	}
	u = u.JoinPath(path)
	if area >= 0 {
		q := u.Query()
		q.Set("area", strconv.Itoa(area))
		u.RawQuery = q.Encode()
	}

	noFollow := *hc
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := noFollow.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("balancer answered %s: %s", resp.Status, body)
	}
	return resp.Header.Get("Location"), nil
}

func isURL(addr string) bool {
	u, err := url.Parse(addr)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}
