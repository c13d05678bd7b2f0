package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/kiva-corp/localrun/internal/config"
	"github.com/kiva-corp/localrun/internal/protocol"
	"github.com/kiva-corp/localrun/internal/session"
	"github.com/kiva-corp/localrun/internal/tui"
	"github.com/kiva-corp/localrun/internal/version"
)

var (
	portFlag       int
	hostFlag       string
	subdomainFlag  string
	localHostFlag  string
	localHTTPSFlag bool
	localCertFlag  string
	localKeyFlag   string
	localCAFlag    string
	allowInvalid   bool
	timeoutMsFlag  int
	maxRetriesFlag int
	openFlag       bool
	printReqsFlag  bool
)

var rootCmd = &cobra.Command{
	Use:     "localrun",
	Short:   "Expose a local server through a reverse tunnel",
	Version: version.String(),
	Args:    cobra.NoArgs,
	RunE:    run,
}

func init() {
	bindIntFlag(rootCmd, &portFlag, "port", "p", 0, "LR_PORT", "Local port to forward (required)")
	bindStringFlag(rootCmd, &hostFlag, "host", "h", protocol.DefaultBrokerBaseURL, "LR_HOST", "Broker base URL")
	bindStringFlag(rootCmd, &subdomainFlag, "subdomain", "s", "", "LR_SUBDOMAIN", "Custom subdomain (10 alphanumeric chars)")
	bindStringFlag(rootCmd, &localHostFlag, "local-host", "l", protocol.DefaultOriginHost, "LR_LOCAL_HOST", "Local origin host")
	bindBoolFlag(rootCmd, &localHTTPSFlag, "local-https", "", false, "LR_LOCAL_HTTPS", "Local origin speaks HTTPS")
	bindStringFlag(rootCmd, &localCertFlag, "local-cert", "", "", "LR_LOCAL_CERT", "Client certificate path")
	bindStringFlag(rootCmd, &localKeyFlag, "local-key", "", "", "LR_LOCAL_KEY", "Client key path")
	bindStringFlag(rootCmd, &localCAFlag, "local-ca", "", "", "LR_LOCAL_CA", "Custom CA bundle path")
	bindBoolFlag(rootCmd, &allowInvalid, "allow-invalid-cert", "", false, "LR_ALLOW_INVALID_CERT", "Skip TLS verification against the local origin")
	bindIntFlag(rootCmd, &timeoutMsFlag, "timeout", "", int(protocol.DefaultRequestTimeout/time.Millisecond), "LR_TIMEOUT", "Request timeout in milliseconds")
	bindIntFlag(rootCmd, &maxRetriesFlag, "max-retries", "", protocol.DefaultMaxRetries, "LR_MAX_RETRIES", "Maximum retry attempts per request")
	bindBoolFlag(rootCmd, &openFlag, "open", "o", false, "LR_OPEN", "Open the public URL in a browser once connected")
	bindBoolFlag(rootCmd, &printReqsFlag, "print-requests", "", false, "LR_PRINT_REQUESTS", "Print each proxied request to stderr")
}

// bindStringFlag registers a string flag and, if env is set and the flag wasn't passed
// explicitly, seeds the default from it, giving every flag an LR_-prefixed env equivalent.
func bindStringFlag(cmd *cobra.Command, p *string, name, shorthand, def, env, usage string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		def = v
	}
	if shorthand != "" {
		cmd.Flags().StringVarP(p, name, shorthand, def, usage)
	} else {
		cmd.Flags().StringVar(p, name, def, usage)
	}
}

func bindIntFlag(cmd *cobra.Command, p *int, name, shorthand string, def int, env, usage string) {
	if v, ok := os.LookupEnv(env); ok {
		if n, err := strconv.Atoi(v); err == nil {
			def = n
		}
	}
	if shorthand != "" {
		cmd.Flags().IntVarP(p, name, shorthand, def, usage)
	} else {
		cmd.Flags().IntVar(p, name, def, usage)
	}
}

func bindBoolFlag(cmd *cobra.Command, p *bool, name, shorthand string, def bool, env, usage string) {
	if v, ok := os.LookupEnv(env); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			def = b
		}
	}
	if shorthand != "" {
		cmd.Flags().BoolVarP(p, name, shorthand, def, usage)
	} else {
		cmd.Flags().BoolVar(p, name, def, usage)
	}
}

func Execute() error {
	return rootCmd.Execute()
}

func run(_ *cobra.Command, _ []string) error {
	if portFlag <= 0 {
		return fmt.Errorf("--port is required and must be a positive integer")
	}

	cfg, err := config.New(config.TunnelConfig{
		OriginPort:       portFlag,
		OriginHost:       localHostFlag,
		BrokerBaseURL:    strings.TrimSpace(hostFlag),
		Subdomain:        strings.TrimSpace(subdomainFlag),
		UseTLS:           localHTTPSFlag,
		CertPath:         localCertFlag,
		KeyPath:          localKeyFlag,
		CAPath:           localCAFlag,
		AllowInvalidCert: allowInvalid,
		RequestTimeout:   time.Duration(timeoutMsFlag) * time.Millisecond,
		MaxRetries:       maxRetriesFlag,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sess, err := session.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	model := tui.NewModel(sess, portFlag)
	if printReqsFlag {
		model = model.WithPrintRequests()
	}
	if openFlag {
		model = model.WithAutoOpen()
	}

	p := tea.NewProgram(model)

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		sess.GracefulClose(context.Background())
		return fmt.Errorf("tui error: %w", err)
	}

	sess.GracefulClose(context.Background())
	return nil
}
