package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/famedly/matrix-oracle/internal/dnsx"
	"github.com/famedly/matrix-oracle/pkg/client"
	"github.com/famedly/matrix-oracle/pkg/server"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile      string
	nameserver   string
	timeout      time.Duration
	insecureHTTP bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "matrix-oracle",
	Short: "Matrix server and client discovery CLI",
	Long: `matrix-oracle resolves Matrix server names and account domains.

The server command follows the federation discovery steps (well-known
delegation and SRV lookup); the client command follows the client
well-known flow and validates the advertised homeserver.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.matrix-oracle")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if nameserver == "" {
			nameserver = viper.GetString("nameserver")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.matrix-oracle/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nameserver, "nameserver", "", "DNS server for SRV and address lookups (host[:port]); uses the system resolver when empty")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Timeout for HTTP and DNS queries")
	rootCmd.PersistentFlags().BoolVar(&insecureHTTP, "insecure-http", false, "Query well-known endpoints over http instead of https (development only)")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(addrCmd)
	rootCmd.AddCommand(versionCmd)
}

func newServerResolver(logger *zap.Logger) *server.Resolver {
	opts := []server.Option{
		server.WithHTTPClient(&http.Client{Timeout: timeout}),
		server.WithLogger(logger),
	}
	if nameserver != "" {
		opts = append(opts, server.WithDNS(&dnsx.Resolver{NameServer: nameserver, Timeout: timeout}))
	}
	if insecureHTTP {
		opts = append(opts, server.WithScheme("http"))
	}
	return server.New(opts...)
}

// ── server ───────────────────────────────────────────────────────────────────

// serverRow holds the outcome of a single server-name resolution attempt.
type serverRow struct {
	name   string
	server server.Server
	err    error
}

var serverFormat string

var serverCmd = &cobra.Command{
	Use:   "server <name> [name] ...",
	Short: "Resolve one or more server names to federation endpoints",
	Long: `Resolve server names via well-known delegation and SRV lookup.

Multiple names are resolved concurrently and displayed as a table:

  matrix-oracle server matrix.org example.com`,
	Args: cobra.MinimumNArgs(1),
	RunE: runServer,
}

func init() {
	serverCmd.Flags().StringVar(&serverFormat, "format", "text", "Output format: text or json")
}

func runServer(cmd *cobra.Command, args []string) error {
	r := newServerResolver(zap.NewNop())
	ctx := context.Background()

	// Resolve all names concurrently.
	resultsCh := make(chan serverRow, len(args))
	for _, name := range args {
		name := name
		go func() {
			s, err := r.Resolve(ctx, name)
			resultsCh <- serverRow{name: name, server: s, err: err}
		}()
	}

	// Collect in input order.
	byName := make(map[string]serverRow, len(args))
	for range args {
		row := <-resultsCh
		byName[row.name] = row
	}
	ordered := make([]serverRow, len(args))
	for i, name := range args {
		ordered[i] = byName[name]
	}

	switch serverFormat {
	case "json":
		return printServerJSON(ordered)
	default:
		return printServerText(ordered)
	}
}

func printServerJSON(results []serverRow) error {
	type jsonRow struct {
		Name       string `json:"name"`
		Kind       string `json:"kind,omitempty"`
		HostHeader string `json:"host_header,omitempty"`
		Address    string `json:"address,omitempty"`
		Error      string `json:"error,omitempty"`
	}
	rows := make([]jsonRow, len(results))
	for i, row := range results {
		if row.err != nil {
			rows[i] = jsonRow{Name: row.name, Error: row.err.Error()}
		} else {
			rows[i] = jsonRow{
				Name:       row.name,
				Kind:       row.server.Kind.String(),
				HostHeader: row.server.HostHeader(),
				Address:    row.server.Address(),
			}
		}
	}
	// Single result: unwrap from array for convenience.
	var v any = rows
	if len(rows) == 1 {
		v = rows[0]
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printServerText(results []serverRow) error {
	if len(results) == 1 {
		row := results[0]
		if row.err != nil {
			return fmt.Errorf("resolve %q: %w", row.name, row.err)
		}
		fmt.Printf("Name:        %s\n", row.name)
		fmt.Printf("Kind:        %s\n", row.server.Kind)
		fmt.Printf("Host header: %s\n", row.server.HostHeader())
		fmt.Printf("Address:     %s\n", row.server.Address())
		return nil
	}

	// Multiple results: tabulated.
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tHOST HEADER\tADDRESS\tERROR")
	for _, row := range results {
		if row.err != nil {
			fmt.Fprintf(w, "%s\t\t\t\t%s\n", row.name, row.err.Error())
		} else {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
				row.name, row.server.Kind, row.server.HostHeader(), row.server.Address())
		}
	}
	return w.Flush()
}

// ── client ───────────────────────────────────────────────────────────────────

var clientFormat string

var clientCmd = &cobra.Command{
	Use:   "client <domain>",
	Short: "Resolve an account domain to its homeserver base URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain := args[0]

		opts := []client.Option{
			client.WithHTTPClient(&http.Client{Timeout: timeout}),
		}
		if insecureHTTP {
			opts = append(opts, client.WithScheme("http"))
		}
		r := client.New(opts...)

		base, err := r.Resolve(context.Background(), domain)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", domain, err)
		}

		if clientFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]string{
				"domain":   domain,
				"base_url": base.String(),
			})
		}
		fmt.Printf("Domain:   %s\n", domain)
		fmt.Printf("Base URL: %s\n", base)
		return nil
	},
}

func init() {
	clientCmd.Flags().StringVar(&clientFormat, "format", "text", "Output format: text or json")
}

// ── addr ─────────────────────────────────────────────────────────────────────

var addrCmd = &cobra.Command{
	Use:   "addr <name>",
	Short: "Resolve a server name down to a concrete ip:port",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		r := newServerResolver(zap.NewNop())
		ctx := context.Background()

		s, err := r.Resolve(ctx, name)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", name, err)
		}
		addr, err := r.Addr(ctx, s)
		if err != nil {
			return fmt.Errorf("address lookup for %q: %w", name, err)
		}
		fmt.Println(addr)
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the matrix-oracle CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("matrix-oracle %s\n", version)
	},
}
