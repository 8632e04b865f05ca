// Command bookctl is a terminal client for the booking API.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"booking/internal/client"
	"booking/internal/models"
)

type options struct {
	server  string
	apiKey  string
	userID  int64
	login   string
	verbose bool
}

func (o *options) client() *client.Client {
	return client.New(o.server, o.apiKey)
}

func (o *options) account() models.UserRef {
	return models.UserRef{ID: o.userID, Login: o.login}
}

func (o *options) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "bookctl",
		Short:         "Browse library resources and manage reservations",
		SilenceUsage:  true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr("BOOKING_URL", "http://localhost:8080"), "booking API base URL")
	flags.StringVar(&opts.apiKey, "api-key", os.Getenv("BOOKING_API_KEY"), "API key sent as bearer token")
	flags.Int64Var(&opts.userID, "user-id", 0, "user id for new reservations (0 lets the server use the key's user)")
	flags.StringVar(&opts.login, "login", "", "user login for new reservations")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log requests")

	root.AddCommand(
		newResourcesCmd(opts),
		newReservationsCmd(opts),
		newReserveCmd(opts),
		newAvailabilityCmd(opts),
		newCalendarCmd(opts),
		newTimesCmd(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printErr(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}
