// Package peloton implements the workout-provider API client.
package peloton

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/lightcap/clip-in/internal/domain"
)

// Client talks to the provider's REST API with an OAuth2-authenticated HTTP
// client. Token refresh is handled by the oauth2 transport.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a Client for the given API base URL and token source.
func NewClient(baseURL string, tokens oauth2.TokenSource) *Client {
	httpClient := oauth2.NewClient(context.Background(), tokens)
	httpClient.Timeout = 15 * time.Second
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

type workoutPayload struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
	Status    string `json:"status"`
	Ride      *struct {
		ID string `json:"id"`
	} `json:"ride"`
}

type workoutPage struct {
	Data []workoutPayload `json:"data"`
}

// FetchCompletedWorkouts returns the user's most recent workouts, newest
// first, as reported by the provider. When includeRide is set the response
// carries the ride join needed for matching. Any transport, status or decode
// error is returned as-is; callers treat it as fatal for their run.
func (c *Client) FetchCompletedWorkouts(ctx context.Context, providerUserID string, limit int, includeRide bool) ([]domain.Workout, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if includeRide {
		query.Set("joins", "ride")
	}

	endpoint := fmt.Sprintf("%s/api/user/%s/workouts?%s", c.baseURL, url.PathEscape(providerUserID), query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("workout API returned %d: %s", resp.StatusCode, body)
	}

	var page workoutPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode workout page: %w", err)
	}

	workouts := make([]domain.Workout, 0, len(page.Data))
	for _, item := range page.Data {
		workout := domain.Workout{
			ID:        item.ID,
			CreatedAt: time.Unix(item.CreatedAt, 0).UTC(),
			Status:    domain.WorkoutStatus(item.Status),
		}
		if item.Ride != nil {
			workout.RideID = item.Ride.ID
		}
		workouts = append(workouts, workout)
	}
	return workouts, nil
}
