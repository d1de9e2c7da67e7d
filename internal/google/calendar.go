package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"freeslot/internal/ics"
	"freeslot/internal/models"
)

const (
	credentialsFile = "credentials.json"
)

// CalendarClient provides a client for interacting with the Google Calendar API.
type CalendarClient struct {
	service     *calendar.Service
	logger      *slog.Logger
	account     string
	calendarIDs []string
}

// NewClient creates a new Google Calendar client.
// It handles loading credentials and setting up an authenticated HTTP client.
// It supports multiple accounts by looking for token files like token-user1.json, token-user2.json, etc.
// The accountName is used to find the correct token file.
func NewClient(ctx context.Context, logger *slog.Logger, clientID, clientSecret, accountName string, calendarIDs []string) (*CalendarClient, error) {
	config, err := getOAuthConfig(clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	tokenFile := fmt.Sprintf("token-%s.json", accountName)
	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load token for account %s: %w. Please run the 'auth' command first", accountName, err)
	}

	client := config.Client(ctx, token)
	service, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return NewClientWithService(logger, service, accountName, calendarIDs), nil
}

// NewClientWithService wraps an existing calendar service, e.g. one pointed at a test server.
func NewClientWithService(logger *slog.Logger, service *calendar.Service, accountName string, calendarIDs []string) *CalendarClient {
	if len(calendarIDs) == 0 {
		calendarIDs = []string{"primary"}
	}
	return &CalendarClient{service: service, logger: logger, account: accountName, calendarIDs: calendarIDs}
}

// Name identifies the account this client reads.
func (c *CalendarClient) Name() string {
	return "google-" + c.account
}

// EventsBetween fetches the events of every configured calendar overlapping [start, end).
// A calendar that cannot be read is logged and skipped.
func (c *CalendarClient) EventsBetween(ctx context.Context, start, end time.Time, _ []string) ([]*models.Event, error) {
	var all []*models.Event
	var lastErr error
	for _, calID := range c.calendarIDs {
		events, err := c.listEvents(ctx, calID, start, end)
		if err != nil {
			c.logger.Error("Could not fetch events for a google calendar", "calendarID", calID, "error", err)
			lastErr = err
			continue
		}
		all = append(all, events...)
	}
	if len(all) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return all, nil
}

func (c *CalendarClient) listEvents(ctx context.Context, calendarID string, start, end time.Time) ([]*models.Event, error) {
	c.logger.Debug("Fetching events", "calendarID", calendarID, "start", start, "end", end)

	var items []*calendar.Event
	err := c.service.Events.List(calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		OrderBy("startTime").
		Pages(ctx, func(page *calendar.Events) error {
			items = append(items, page.Items...)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", err)
	}

	c.logger.Info("Successfully fetched events from Google Calendar", "count", len(items), "calendarID", calendarID)
	return toInternalEvents(items, calendarID), nil
}

// toInternalEvents converts Google Calendar events to the internal Event model.
// The calendar owner is treated as an attendee of every event on the calendar.
func toInternalEvents(googleEvents []*calendar.Event, calendarID string) []*models.Event {
	var internalEvents []*models.Event
	owner := ""
	if strings.Contains(calendarID, "@") {
		owner = ics.Address(calendarID)
	}

	for _, item := range googleEvents {
		// Skip events without a start time (e.g., all-day events without a specific time)
		if item.Start == nil || item.Start.DateTime == "" || item.End == nil {
			continue
		}
		// Transparent events are shown as "free" in Google Calendar.
		if item.Transparency == "transparent" {
			continue
		}

		startTime, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			continue
		}
		endTime, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			continue
		}

		seen := make(map[string]bool)
		var attendees []string
		add := func(email string) {
			email = ics.Address(email)
			if email != "" && !seen[email] {
				seen[email] = true
				attendees = append(attendees, email)
			}
		}
		declinedBySelf := false
		for _, a := range item.Attendees {
			if a.ResponseStatus == "declined" {
				declinedBySelf = declinedBySelf || a.Self
				continue
			}
			add(a.Email)
		}
		if declinedBySelf {
			continue
		}
		add(owner)

		organizer := ""
		if item.Organizer != nil {
			organizer = ics.Address(item.Organizer.Email)
		}

		internalEvents = append(internalEvents, &models.Event{
			ID:          item.Id,
			Title:       item.Summary,
			Description: item.Description,
			StartTime:   startTime,
			EndTime:     endTime,
			Location:    item.Location,
			Organizer:   organizer,
			Attendees:   attendees,
			UID:         item.ICalUID, // Use the iCalendar UID for syncing
			Source:      fmt.Sprintf("google-%s", calendarID),
		})
	}
	return internalEvents
}

// GetOAuthConfigForAuthFlow is used by the auth command to get the config for the web flow.
func GetOAuthConfigForAuthFlow(clientID, clientSecret string) (*oauth2.Config, error) {
	return getOAuthConfig(clientID, clientSecret)
}

// getOAuthConfig reads credentials and returns an OAuth2 config.
// It prioritizes environment variables over a local credentials.json file.
func getOAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{calendar.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if _, ok := err.(*fs.PathError); ok {
			return nil, fmt.Errorf("credentials.json not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place credentials.json in the root directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob" // For desktop app flow
	return config, nil
}

// TokenFromWeb is called by the auth flow to retrieve a token.
func TokenFromWeb(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(ctx, authCode)
}

// SaveToken saves a token to a file path.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// tokenFromFile retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// GetTokenAccounts lists the accounts that have a saved token in dir.
func GetTokenAccounts(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var accounts []string
	for _, file := range files {
		if strings.HasPrefix(file.Name(), "token-") && strings.HasSuffix(file.Name(), ".json") {
			accountName := strings.TrimSuffix(strings.TrimPrefix(file.Name(), "token-"), ".json")
			accounts = append(accounts, accountName)
		}
	}
	return accounts, nil
}
