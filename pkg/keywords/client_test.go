package keywords

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ideasResponse = `{
  "status_code": 20000,
  "status_message": "Ok.",
  "tasks": [{
    "status_code": 20000,
    "status_message": "Ok.",
    "result": [
      {
        "keyword": "dental practice software",
        "search_volume": 2400,
        "cpc": 12.5,
        "competition_index": 64,
        "monthly_searches": [
          {"year": 2025, "month": 9, "search_volume": 2900},
          {"year": 2025, "month": 8, "search_volume": 2400}
        ]
      },
      {"keyword": "dentist scheduling", "search_volume": null, "cpc": null, "competition_index": null}
    ]
  }]
}`

func TestIdeas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ideasPath, r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "login", user)
		assert.Equal(t, "secret", pass)

		var body []taskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body, 1)
		assert.Equal(t, []string{"dental", "software"}, body[0].Keywords)
		assert.Equal(t, "Canada", body[0].LocationName)
		assert.Equal(t, "English", body[0].LanguageName)

		_, _ = w.Write([]byte(ideasResponse))
	}))
	defer srv.Close()

	c := NewClient("login", "secret", WithBaseURL(srv.URL), WithLocale("Canada", ""), WithRateLimit(100))
	got, err := c.Ideas(context.Background(), []string{" Dental", "software", "dental", ""})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "dental practice software", got[0].Keyword)
	assert.Equal(t, int64(2400), got[0].SearchVolume)
	assert.InDelta(t, 12.5, got[0].CPC, 0.001)
	assert.InDelta(t, 0.64, got[0].Competition, 0.001)
	assert.Equal(t, []MonthlyVolume{{2025, 9, 2900}, {2025, 8, 2400}}, got[0].Monthly)

	assert.Equal(t, Keyword{Keyword: "dentist scheduling"}, got[1])
}

func TestIdeas_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		header    string
		body      string
		rateLimit bool
		wantErr   string
	}{
		{name: "http 429", status: http.StatusTooManyRequests, header: "3", body: `slow`, rateLimit: true, wantErr: "status 429"},
		{name: "http 401", status: http.StatusUnauthorized, body: `bad auth`, wantErr: "status 401"},
		{name: "provider throttle", status: http.StatusOK, body: `{"status_code":40202,"status_message":"Rate limit"}`, rateLimit: true, wantErr: "code 40202"},
		{name: "task failure", status: http.StatusOK, body: `{"status_code":20000,"tasks":[{"status_code":40501,"status_message":"Invalid Field"}]}`, wantErr: "Invalid Field"},
		{name: "bad json", status: http.StatusOK, body: `{`, wantErr: "unmarshal response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient("l", "p", WithBaseURL(srv.URL)).Ideas(context.Background(), []string{"seed"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, tt.rateLimit, IsRateLimit(err))
			if tt.header != "" {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, 3*time.Second, se.RetryAfter)
			}
		})
	}
}

func TestIdeas_NoSeeds(t *testing.T) {
	_, err := NewClient("l", "p").Ideas(context.Background(), []string{" ", ""})
	assert.ErrorContains(t, err, "no seeds")
}

func TestIdeas_LimiterHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("l", "p").Ideas(ctx, []string{"seed"})
	assert.ErrorContains(t, err, "rate limiter")
}

func TestCleanSeeds_Caps(t *testing.T) {
	seeds := make([]string, 0, 30)
	for i := range 30 {
		seeds = append(seeds, string(rune('a'+i%26))+"x"+string(rune('a'+i/26)))
	}
	assert.Len(t, cleanSeeds(seeds), MaxSeeds)
}
