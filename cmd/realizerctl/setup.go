package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/bibbank/realizer/pkg/auth"
	"github.com/bibbank/realizer/pkg/tlsutil"
)

type devCertsCmd struct {
	hosts  string
	outDir string
}

func (*devCertsCmd) Name() string     { return "dev-certs" }
func (*devCertsCmd) Synopsis() string { return "write a throwaway CA and server certificate" }
func (*devCertsCmd) Usage() string {
	return `realizerctl dev-certs [-hosts localhost,127.0.0.1] [-out ./certs]

  Point TLS_CERT_FILE and TLS_KEY_FILE at the server files and pass -ca to
  the other commands.
`
}

func (c *devCertsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.hosts, "hosts", "localhost,127.0.0.1", "comma-separated server host names and IPs")
	f.StringVar(&c.outDir, "out", "certs", "output directory")
}

func (c *devCertsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	hosts := strings.Split(c.hosts, ",")
	if err := tlsutil.WriteDevCertificates(hosts, c.outDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("wrote %s, %s and %s to %s\n", tlsutil.CAFile, tlsutil.ServerFile, tlsutil.ServerKeyFile, c.outDir)
	return subcommands.ExitSuccess
}

type tokenCmd struct {
	subject string
	roles   string
	books   string
	issuer  string
	ttl     time.Duration
}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "issue a bearer token signed with JWT_SECRET" }
func (*tokenCmd) Usage() string {
	return `realizerctl token [-sub ops] [-roles operator] [-books id,id] [-ttl 1h]

  For development setups that validate tokens with a shared secret.
`
}

func (c *tokenCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.subject, "sub", "realizerctl", "token subject")
	f.StringVar(&c.roles, "roles", auth.RoleOperator, "comma-separated roles")
	f.StringVar(&c.books, "books", "", "comma-separated stock book IDs (default all)")
	f.StringVar(&c.issuer, "issuer", envOr("JWT_ISSUER", "bib-gateway"), "token issuer")
	f.DurationVar(&c.ttl, "ttl", time.Hour, "token lifetime")
}

func (c *tokenCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	token, err := c.issue(os.Getenv("JWT_SECRET"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println(token)
	return subcommands.ExitSuccess
}

func (c *tokenCmd) issue(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("JWT_SECRET is not set")
	}
	svc, err := auth.NewJWTService(auth.JWTConfig{Secret: secret, Issuer: c.issuer, Expiration: c.ttl})
	if err != nil {
		return "", err
	}
	return svc.GenerateToken(c.subject, splitList(c.roles), splitList(c.books))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
