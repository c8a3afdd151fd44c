package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cli-auth/internal/app"
	"cli-auth/internal/config"
	"cli-auth/internal/logger"
)

// loginFlags holds the flags of the login command.
type loginFlags struct {
	configPath  string
	channel     string
	skipInstall bool
}

func newLoginCmd() *cobra.Command {
	var f loginFlags

	cmd := &cobra.Command{
		Use:   "login [email]",
		Short: "Verify your email, save the registry token and run the installer",
		Long: `Starts a login session for the given email and waits until you click the
verification link. The registry token is then written to your .npmrc and the
installer package for the selected channel is downloaded and run.

When no email is given and stdin is a terminal, you are prompted for it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, &f)
			if err != nil {
				return err
			}

			interactive := term.IsTerminal(int(os.Stdin.Fd()))
			email, err := resolveEmail(args, cmd.InOrStdin(), cmd.OutOrStdout(), interactive)
			if err != nil {
				return err
			}

			ctx, stop := watchInterrupt(cmd.Context())
			defer stop()

			runner := &app.Runner{Config: cfg, Log: logger.Default()}
			exit(runner.Run(ctx, email))
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Path to configuration file (default "+config.DefaultPath()+")")
	cmd.Flags().StringVar(&f.channel, "channel", config.DefaultChannel, `Release channel: "stable" or "preflight"`)
	cmd.Flags().BoolVar(&f.skipInstall, "skip-install", false, "Only log in; do not download or run the installer")
	return cmd
}

// resolveConfig loads the config file and environment, then applies the flags the user set.
func resolveConfig(cmd *cobra.Command, f *loginFlags) (config.Config, error) {
	cfg, err := config.LoadConfig(f.configPath, os.Getenv)
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("channel") {
		cfg.Channel = f.channel
	}
	if f.skipInstall {
		cfg.SkipInstall = true
	}
	return cfg, nil
}

// resolveEmail takes the email from args, or prompts for it on an interactive terminal.
func resolveEmail(args []string, in io.Reader, out io.Writer, interactive bool) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if !interactive {
		return "", errors.New("no email given: run `cli-auth login you@example.com`")
	}

	fmt.Fprint(out, "Email: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read email: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// watchInterrupt treats SIGINT and SIGTERM as a user cancellation: it prints a
// notice and exits successfully. The returned stop func releases the handler.
func watchInterrupt(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigs:
			cancel()
			logger.Warn("\n[WARN] Login cancelled. Run the command again whenever you are ready.\n")
			exit(app.ExitOK)
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}
