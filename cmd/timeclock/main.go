package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pbaille/timeclock/internal/backend"
	"github.com/pbaille/timeclock/internal/config"
	"github.com/pbaille/timeclock/internal/dedup"
	"github.com/pbaille/timeclock/internal/domain"
	"github.com/pbaille/timeclock/internal/history"
	"github.com/pbaille/timeclock/internal/logging"
	"github.com/pbaille/timeclock/internal/negotiate"
	"github.com/pbaille/timeclock/internal/payload"
	"github.com/pbaille/timeclock/internal/pipeline"
	"github.com/pbaille/timeclock/internal/scangate"
	"github.com/pbaille/timeclock/internal/session"
	"github.com/pbaille/timeclock/internal/store"
)

var (
	env       config.Env
	dbPath    string
	apiURL    string
	dedupMode string
)

func main() {
	var err error
	env, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:          "timeclock",
		Short:        "QR code time attendance client",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", env.DBPath, "database path")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", env.APIURL, "timesheet API base URL")
	rootCmd.PersistentFlags().StringVar(&dedupMode, "dedup", env.Dedup, "duplicate check: local or remote")

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(decodeCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getStore() (*store.Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return store.New(dbPath)
}

func getLogger() (*logging.Logger, error) {
	if env.LogFile == "" {
		return logging.New(os.Stderr), nil
	}
	return logging.Open(env.LogFile)
}

func getClient() *backend.Client {
	return backend.New(apiURL, env.Timeout)
}

func getSession(s *store.Store) (domain.Session, error) {
	sess, err := session.Load(s, time.Now())
	if errors.Is(err, domain.ErrNoSession) || errors.Is(err, session.ErrExpired) {
		return sess, fmt.Errorf("%w (run `timeclock login`)", err)
	}
	return sess, err
}

// buildPipeline wires gate, decoder, guard and negotiator from configuration
func buildPipeline(s *store.Store, client *backend.Client, sess domain.Session, log *logging.Logger, source scangate.Pauser) (*pipeline.Pipeline, error) {
	attempts, err := negotiate.ParseAttempts(env.Attempts)
	if err != nil {
		return nil, err
	}

	var opts []scangate.Option
	if source != nil {
		opts = append(opts, scangate.WithSource(source))
	}
	gate := scangate.New(env.RepeatWindow, env.Cooldown, opts...)

	strategy, err := dedup.ParseStrategy(dedupMode)
	if err != nil {
		return nil, err
	}
	var guard dedup.Guard
	switch strategy {
	case dedup.StrategyLocal:
		guard = dedup.NewLocal(s, env.Location)
	case dedup.StrategyRemote:
		guard = dedup.NewRemote(client, env.Location, log)
	}

	dec := payload.New(env.QRMaxAge, env.Location)
	neg := negotiate.New(client, attempts, env.Timeout, log)
	return pipeline.New(gate, dec, guard, neg, sess, log), nil
}

func loginCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login [email]",
		Short: "Log in and store the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := strings.TrimSpace(args[0])

			if password == "" {
				fmt.Print("Password: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			sess, err := getClient().Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := session.Save(s, *sess); err != nil {
				return err
			}

			fmt.Printf("Logged in as %s (id %d, %s)\n", sess.User.DisplayName, sess.User.ID, sess.User.Role)
			if exp, ok := session.Expiry(sess.Token); ok {
				fmt.Printf("Token valid until %s\n", exp.In(env.Location).Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := session.Clear(s); err != nil {
				return err
			}
			fmt.Println("Logged out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			sess, err := getSession(s)
			if err != nil {
				return err
			}

			fmt.Printf("%s <%s>\n", sess.User.DisplayName, sess.User.Email)
			fmt.Printf("  id:   %d\n", sess.User.ID)
			fmt.Printf("  role: %s\n", sess.User.Role)
			fmt.Printf("  since %s\n", sess.SavedAt.In(env.Location).Format("2006-01-02 15:04"))
			if exp, ok := session.Expiry(sess.Token); ok {
				fmt.Printf("  token expires %s\n", exp.In(env.Location).Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [payload]",
		Short: "Decode a QR payload without submitting it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dec := payload.New(env.QRMaxAge, env.Location)
			in, err := dec.Decode(strings.Join(args, " "))
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(in, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			fmt.Printf("fingerprint: %s\n", in.Fingerprint())
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	var asCSV bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List attendance records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			sess, err := getSession(s)
			if err != nil {
				return err
			}

			list, err := getClient().History(cmd.Context(), sess.User.ID, sess.Token)
			if err != nil {
				return err
			}
			history.Sort(list)

			if asCSV {
				return history.WriteCSV(os.Stdout, history.Limit(list, limit), env.Location)
			}

			sum := history.Summarize(list, time.Now(), env.Location)
			fmt.Printf("Total: %d  Today: %d  This week: %d\n\n", sum.Total, sum.Today, sum.ThisWeek)

			if len(list) == 0 {
				fmt.Println("No records")
				return nil
			}
			for _, t := range history.Limit(list, limit) {
				method := t.Method()
				if method == "" {
					method = "-"
				}
				fmt.Printf("%-16s  %-12s  site %-4d planning %-6d %-8s %s\n",
					t.CreatedAt.In(env.Location).Format("2006-01-02 15:04"),
					domain.ServiceLabel(t.TimesheetTypeID),
					t.SiteID,
					t.PlanningID,
					method,
					t.UniqueCode,
				)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of records (0 for all)")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "write CSV to stdout")
	return cmd
}

func ledgerCmd() *cobra.Command {
	var day string
	var prune bool

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show codes used today, or prune older days",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			today := dedup.Day(time.Now(), env.Location)
			if prune {
				n, err := s.PruneLedger(today)
				if err != nil {
					return err
				}
				fmt.Printf("Pruned %d entries before %s\n", n, today)
				return nil
			}

			sess, err := getSession(s)
			if err != nil {
				return err
			}
			if day == "" {
				day = today
			}

			entries, err := s.LedgerEntries(sess.User.ID, day)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Printf("No codes used on %s\n", day)
				return nil
			}

			for _, e := range entries {
				fmt.Printf("%s  %-10s  %s\n", e.SeenAt.In(env.Location).Format("15:04:05"), e.Fingerprint, truncate(e.Payload, 60))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&day, "day", "", "day to show (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&prune, "prune", false, "delete entries of earlier days")
	return cmd
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
