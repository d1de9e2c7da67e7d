package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"freeslot/internal/google"
	"freeslot/internal/icloud"
	"freeslot/internal/ics"
	"freeslot/internal/meeting"
	"freeslot/internal/planner"
	"freeslot/internal/server"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "freeslot",
		Usage: "Find the times in a day when a meeting fits everyone's calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info", EnvVars: []string{"LOG_LEVEL"}, Usage: "debug, info, warn or error"},
		},
		Commands: []*cli.Command{
			authCommand(),
			calendarsCommand(),
			findCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func googleFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "google-client-id", EnvVars: []string{"GOOGLE_CLIENT_ID"}},
		&cli.StringFlag{Name: "google-client-secret", EnvVars: []string{"GOOGLE_CLIENT_SECRET"}},
	}
}

// sourceFlags are shared by the commands that plan meetings.
func sourceFlags() []cli.Flag {
	return append(googleFlags(),
		&cli.StringSliceFlag{Name: "events", Usage: "Read busy time from a .ics or .json file (repeatable)."},
		&cli.BoolFlag{Name: "google", Usage: "Read events from every authenticated Google account."},
		&cli.StringFlag{Name: "google-calendar-ids", EnvVars: []string{"GOOGLE_CALENDAR_IDS"}, Usage: "Comma separated calendar IDs to read."},
		&cli.BoolFlag{Name: "freebusy", Usage: "Ask Google for the free/busy blocks of every attendee."},
		&cli.BoolFlag{Name: "icloud", Usage: "Read events from the iCloud calendar."},
		&cli.StringFlag{Name: "icloud-username", EnvVars: []string{"ICLOUD_USERNAME"}},
		&cli.StringFlag{Name: "icloud-password", EnvVars: []string{"ICLOUD_APP_SPECIFIC_PASSWORD"}},
		&cli.StringFlag{Name: "icloud-calendar", EnvVars: []string{"ICLOUD_CALENDAR_NAME"}},
		&cli.StringFlag{Name: "timezone", Value: "UTC", EnvVars: []string{"PRIMARY_TIMEZONE"}, Usage: "Time zone the day is planned in."},
	)
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account to get an API token.",
		Flags: googleFlags(),
		Action: func(c *cli.Context) error {
			logger := setupLogger(c.String("log-level"))
			logger.Info("Starting Google authentication flow.")

			config, err := google.GetOAuthConfigForAuthFlow(c.String("google-client-id"), c.String("google-client-secret"))
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, config, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			fmt.Print("Enter a name for this account (e.g., 'personal', 'work'): ")
			accountName, _ := reader.ReadString('\n')
			accountName = strings.TrimSpace(accountName)
			tokenFile := "token-" + accountName + ".json"

			if err := google.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

func calendarsCommand() *cli.Command {
	return &cli.Command{
		Name:  "calendars",
		Usage: "List the calendars of every authenticated Google account.",
		Flags: googleFlags(),
		Action: func(c *cli.Context) error {
			logger := setupLogger(c.String("log-level"))

			clients, err := googleClients(c, logger)
			if err != nil {
				return err
			}
			for _, gc := range clients {
				ids, err := gc.DiscoverGoogleCalendars(c.Context)
				if err != nil {
					return fmt.Errorf("%s: %w", gc.Name(), err)
				}
				for _, id := range ids {
					fmt.Printf("%s\t%s\n", gc.Name(), id)
				}
			}
			return nil
		},
	}
}

func findCommand() *cli.Command {
	return &cli.Command{
		Name:  "find",
		Usage: "Print the windows on a day in which the meeting can take place.",
		Flags: append(sourceFlags(),
			&cli.StringFlag{Name: "date", Usage: "Day to plan, YYYY-MM-DD (default today)."},
			&cli.StringSliceFlag{Name: "attendee", Aliases: []string{"a"}, Usage: "Mandatory attendee email (repeatable)."},
			&cli.StringSliceFlag{Name: "optional", Aliases: []string{"o"}, Usage: "Optional attendee email (repeatable)."},
			&cli.DurationFlag{Name: "duration", Value: 30 * time.Minute, Usage: "Meeting length."},
			&cli.BoolFlag{Name: "json", Usage: "Print the windows as JSON."},
			&cli.StringFlag{Name: "book", Usage: "Book the first window in iCloud under this title."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Print the booking as iCalendar without creating it."},
		),
		Action: func(c *cli.Context) error {
			logger := setupLogger(c.String("log-level"))

			loc, err := loadLocation(c.String("timezone"))
			if err != nil {
				return err
			}

			date := time.Now().In(loc)
			if s := c.String("date"); s != "" {
				date, err = time.ParseInLocation(time.DateOnly, s, loc)
				if err != nil {
					return fmt.Errorf("invalid date '%s': %w", s, err)
				}
			}

			sources, booker, err := buildSources(c, logger)
			if err != nil {
				return err
			}
			if len(sources) == 0 {
				return errors.New("no event sources configured, pass --events, --google, --freebusy or --icloud")
			}
			if c.Bool("dry-run") {
				logger.Info("Performing a dry run. No changes will be made.")
			}

			p := planner.NewPlanner(logger, sources, booker, c.Bool("dry-run"), loc)
			req := planner.Request{
				Date:              date,
				Attendees:         c.StringSlice("attendee"),
				OptionalAttendees: c.StringSlice("optional"),
				Duration:          c.Duration("duration"),
			}

			plan, err := p.FindTimes(c.Context, req, nil)
			if err != nil {
				return fmt.Errorf("failed to find meeting times: %w", err)
			}
			if err := printPlan(plan, c.Bool("json")); err != nil {
				return err
			}

			if title := c.String("book"); title != "" {
				event, err := p.Book(c.Context, plan, title, req)
				if err != nil {
					return err
				}
				if c.Bool("dry-run") {
					// Show the object that would have been uploaded.
					return ics.Encode(os.Stdout, event)
				}
				fmt.Printf("booked %q at %s\n", event.Title, event.StartTime.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the meeting finder over HTTP.",
		Flags: append(sourceFlags(),
			&cli.StringFlag{Name: "addr", Value: "localhost:8080", EnvVars: []string{"FREESLOT_ADDR"}},
		),
		Action: func(c *cli.Context) error {
			logger := setupLogger(c.String("log-level"))

			loc, err := loadLocation(c.String("timezone"))
			if err != nil {
				return err
			}
			sources, _, err := buildSources(c, logger)
			if err != nil {
				return err
			}
			logger.Info("Initialized event sources.", "count", len(sources))

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			gin.SetMode(gin.ReleaseMode)
			p := planner.NewPlanner(logger, sources, nil, false, loc)
			router := server.NewRouter(logger, server.NewHandlers(logger, p))
			return server.Run(ctx, logger, c.String("addr"), router)
		},
	}
}

// buildSources creates the event sources selected by the flags. The iCloud
// client doubles as the booker when it is enabled.
func buildSources(c *cli.Context, logger *slog.Logger) ([]planner.EventSource, planner.Booker, error) {
	var (
		sources []planner.EventSource
		booker  planner.Booker
	)

	for _, path := range c.StringSlice("events") {
		sources = append(sources, planner.NewFileSource(path))
	}

	if c.Bool("google") || c.Bool("freebusy") {
		clients, err := googleClients(c, logger)
		if err != nil {
			return nil, nil, err
		}
		for _, gc := range clients {
			if c.Bool("google") {
				sources = append(sources, gc)
			}
			if c.Bool("freebusy") {
				sources = append(sources, gc.FreeBusy())
			}
		}
		logger.Info("Initialized Google clients for all accounts.", "count", len(clients))
	}

	if c.Bool("icloud") {
		iClient, err := icloud.NewClient(c.Context, logger, icloud.Endpoint,
			c.String("icloud-username"), c.String("icloud-password"), c.String("icloud-calendar"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create icloud client: %w", err)
		}
		sources = append(sources, iClient)
		booker = iClient
	}

	return sources, booker, nil
}

// googleClients loads a client for every account that has a saved token.
func googleClients(c *cli.Context, logger *slog.Logger) ([]*google.CalendarClient, error) {
	accounts, err := google.GetTokenAccounts(".")
	if err != nil {
		return nil, fmt.Errorf("could not find any google accounts, did you run auth command? %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no google accounts found. Run the 'auth' command first")
	}

	var calendarIDs []string
	if ids := c.String("google-calendar-ids"); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				calendarIDs = append(calendarIDs, id)
			}
		}
	}

	clients := make([]*google.CalendarClient, 0, len(accounts))
	for _, acc := range accounts {
		gClient, err := google.NewClient(c.Context, logger, c.String("google-client-id"), c.String("google-client-secret"), acc, calendarIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to create google client for account %s: %w", acc, err)
		}
		clients = append(clients, gClient)
	}
	return clients, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", name, err)
	}
	return loc, nil
}

type windowJSON struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

func printPlan(plan *planner.Plan, asJSON bool) error {
	if asJSON {
		windows := make([]windowJSON, 0, len(plan.Windows))
		for _, w := range plan.Windows {
			windows = append(windows, windowJSON{Start: w.Start, End: w.End, Label: label(w.Range)})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(windows)
	}

	if len(plan.Windows) == 0 {
		fmt.Printf("%s: no window fits\n", plan.Day.Format(time.DateOnly))
		return nil
	}
	fmt.Printf("%s (%d events considered)\n", plan.Day.Format(time.DateOnly), plan.Events)
	for _, w := range plan.Windows {
		fmt.Println(label(w.Range))
	}
	return nil
}

func label(r meeting.TimeRange) string {
	return meeting.Clock(r.Start()) + "-" + meeting.Clock(r.End())
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
