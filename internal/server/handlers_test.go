package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"freeslot/internal/meeting"
	"freeslot/internal/models"
	"freeslot/internal/planner"
)

// MockFinder is a mock of the Finder interface
type MockFinder struct {
	mock.Mock
}

func (m *MockFinder) FindTimes(ctx context.Context, req planner.Request, extra []*models.Event) (*planner.Plan, error) {
	args := m.Called(ctx, req, extra)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*planner.Plan), args.Error(1)
}

func (m *MockFinder) Location() *time.Location {
	return time.UTC
}

func init() {
	gin.SetMode(gin.TestMode)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandlers_PostQuery(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	window := meeting.FromStartEnd(meeting.MinutesOf(9, 30), meeting.EndOfDay, true)

	tests := []struct {
		name           string
		body           any
		mockReturn     *planner.Plan
		mockErr        error
		callsFinder    bool
		expectedStatus int
	}{
		{
			name: "success",
			body: QueryRequest{Date: "2026-10-19", Attendees: []string{"alice@example.com"}, DurationMinutes: 30},
			mockReturn: &planner.Plan{Day: day, Windows: []planner.Window{{
				Start: day.Add(570 * time.Minute),
				End:   day.Add(24 * time.Hour),
				Range: window,
			}}},
			callsFinder:    true,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid json",
			body:           "invalid",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing date",
			body:           QueryRequest{DurationMinutes: 30},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed date",
			body:           QueryRequest{Date: "19/10/2026"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "validation failure",
			body:           QueryRequest{Date: "2026-10-19", DurationMinutes: -5},
			mockErr:        fmt.Errorf("%w: -5m0s", meeting.ErrNegativeDuration),
			callsFinder:    true,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "planner failure",
			body:           QueryRequest{Date: "2026-10-19", DurationMinutes: 30},
			mockErr:        planner.ErrSourcesFailed,
			callsFinder:    true,
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			finder := new(MockFinder)
			if tt.callsFinder {
				finder.On("FindTimes", mock.Anything, mock.Anything, mock.Anything).Return(tt.mockReturn, tt.mockErr)
			}

			h := NewHandlers(discard(), finder)
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			var jsonBody []byte
			if s, ok := tt.body.(string); ok {
				jsonBody = []byte(s)
			} else {
				jsonBody, _ = json.Marshal(tt.body)
			}

			c.Request = httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewBuffer(jsonBody))

			h.PostQuery(c)

			assert.Equal(t, tt.expectedStatus, w.Code)
			finder.AssertExpectations(t)

			if tt.expectedStatus == http.StatusOK {
				var resp QueryResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "2026-10-19", resp.Date)
				require.Len(t, resp.Windows, 1)
				assert.Equal(t, "09:30-24:00", resp.Windows[0].Label)
				assert.Equal(t, 570, resp.Windows[0].StartMinute)
				assert.Equal(t, 1440, resp.Windows[0].EndMinute)
			} else {
				var e Error
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
				assert.NotEmpty(t, e.Message)
			}
		})
	}
}

func TestRouter(t *testing.T) {
	t.Parallel()

	p := planner.NewPlanner(discard(), nil, nil, false, time.UTC)
	router := NewRouter(discard(), NewHandlers(discard(), p))

	t.Run("health", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(requestIDHeader))
	})

	t.Run("query with inline events", func(t *testing.T) {
		t.Parallel()

		body := `{
			"date": "2026-10-19",
			"attendees": ["alice@example.com"],
			"optional_attendees": ["bob@example.com"],
			"duration_minutes": 60,
			"events": [
				{"title": "Busy", "start_time": "2026-10-19T00:00:00Z", "end_time": "2026-10-19T09:00:00Z", "attendees": ["alice@example.com"]},
				{"title": "Busy", "start_time": "2026-10-19T10:00:00Z", "end_time": "2026-10-20T00:00:00Z", "attendees": ["alice@example.com"]},
				{"title": "Gym", "start_time": "2026-10-19T09:00:00Z", "end_time": "2026-10-19T09:30:00Z", "attendees": ["bob@example.com"]}
			]
		}`
		req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewBufferString(body))
		req.Header.Set(requestIDHeader, "req-42")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp QueryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "req-42", resp.RequestID)
		require.Len(t, resp.Windows, 1)
		assert.Equal(t, "09:00-10:00", resp.Windows[0].Label)
	})

	t.Run("huge duration finds nothing", func(t *testing.T) {
		t.Parallel()

		body := `{"date": "2026-10-19", "attendees": ["a@example.com"], "duration_minutes": 9223372036854775807}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewBufferString(body)))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp QueryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.Windows)
	})

	t.Run("huge negative duration is rejected", func(t *testing.T) {
		t.Parallel()

		body := `{"date": "2026-10-19", "attendees": ["a@example.com"], "duration_minutes": -9223372036854775807}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewBufferString(body)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("conflicting attendees", func(t *testing.T) {
		t.Parallel()

		body := `{"date": "2026-10-19", "attendees": ["a@example.com"], "optional_attendees": ["a@example.com"], "duration_minutes": 30}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewBufferString(body)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestClampMinutes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 30, clampMinutes(30))
	assert.Equal(t, maxDurationMinutes, clampMinutes(math.MaxInt))
	assert.Equal(t, -1, clampMinutes(math.MinInt))
	assert.Equal(t, -1, clampMinutes(-5))
}

func TestRun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, discard(), "127.0.0.1:0", http.NotFoundHandler())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRun_ListenFailure(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), discard(), "127.0.0.1:-1", http.NotFoundHandler())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start")
}
