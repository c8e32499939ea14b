package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	realizergrpc "github.com/bibbank/realizer/internal/presentation/grpc"
	"github.com/bibbank/realizer/pkg/tlsutil"
)

// connFlags are the global flags shared by every RPC command.
type connFlags struct {
	addr      string
	token     string
	caFile    string
	plaintext bool
	timeout   time.Duration
}

var conn connFlags

func (c *connFlags) register(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", envOr("REALIZER_ADDR", "localhost:9090"), "realizer gRPC address")
	f.StringVar(&c.token, "token", os.Getenv("REALIZER_TOKEN"), "bearer token")
	f.StringVar(&c.caFile, "ca", "", "CA certificate used to verify the server")
	f.BoolVar(&c.plaintext, "plaintext", false, "connect without TLS")
	f.DurationVar(&c.timeout, "timeout", 5*time.Minute, "deadline of one call")
}

func (c *connFlags) dial() (*grpclib.ClientConn, error) {
	creds := insecure.NewCredentials()
	if !c.plaintext {
		tc, err := tlsutil.ClientCredentials(c.caFile, false)
		if err != nil {
			return nil, err
		}
		creds = tc
	}
	return grpclib.NewClient(c.addr,
		grpclib.WithTransportCredentials(creds),
		grpclib.WithDefaultCallOptions(grpclib.CallContentSubtype(realizergrpc.CodecName)),
	)
}

// invoke calls method with req and prints the decoded response as JSON.
func (c *connFlags) invoke(ctx context.Context, out io.Writer, method string, req, resp any) subcommands.ExitStatus {
	cc, err := c.dial()
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		return subcommands.ExitFailure
	}
	defer func() { _ = cc.Close() }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}

	if err := cc.Invoke(ctx, realizergrpc.FullMethod(method), req, resp); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", method, err)
		return subcommands.ExitFailure
	}
	return printJSON(out, resp)
}

func printJSON(out io.Writer, v any) subcommands.ExitStatus {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
