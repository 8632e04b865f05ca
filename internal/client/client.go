// Package client talks to the booking REST API and keeps the state a UI
// needs around each call: loading and updating flags, the last error and the
// last fetched entities.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"booking/internal/calendar"
	"booking/internal/models"
)

var json = jsoniter.ConfigFastest

const (
	ResourcesPath    = "/api/resources"
	ReservationsPath = "/api/reservations"
)

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Key     string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// Client is a booking API client authenticated with one API key
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	resources    *EntityStore[models.Resource]
	reservations *EntityStore[models.Reservation]
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the server at baseURL
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resources = newEntityStore[models.Resource](c, ResourcesPath)
	c.reservations = newEntityStore[models.Reservation](c, ReservationsPath)
	return c
}

// Resources returns the resource store
func (c *Client) Resources() *EntityStore[models.Resource] {
	return c.resources
}

// Reservations returns the reservation store
func (c *Client) Reservations() *EntityStore[models.Reservation] {
	return c.reservations
}

// SearchResources fetches a page of resources matching the filter into the resource store
func (c *Client) SearchResources(ctx context.Context, filter models.ResourceFilter, page models.PageRequest) ([]models.Resource, error) {
	params := url.Values{}
	if filter.Title != "" {
		params.Set("title", filter.Title)
	}
	if filter.Author != "" {
		params.Set("author", filter.Author)
	}
	if filter.Keywords != "" {
		params.Set("keywords", filter.Keywords)
	}
	if filter.Type != "" {
		params.Set("type", string(filter.Type))
	}
	return c.resources.FetchAllMatching(ctx, page, params)
}

// ReservationsByResource lists the reservations of one resource
func (c *Client) ReservationsByResource(ctx context.Context, resourceID int64) ([]models.Reservation, error) {
	var out []models.Reservation
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/resource/%d", ReservationsPath, resourceID), nil, nil, &out)
	return out, err
}

// ActiveReservations lists the user's reservations that have not ended
func (c *Client) ActiveReservations(ctx context.Context, userID int64) ([]models.Reservation, error) {
	var out []models.Reservation
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/user/%d/active", ReservationsPath, userID), nil, nil, &out)
	return out, err
}

// Availability asks whether the resource is free during [start, end)
func (c *Client) Availability(ctx context.Context, resourceID int64, start, end time.Time) (bool, error) {
	params := url.Values{}
	params.Set("startTime", start.Format(time.RFC3339))
	params.Set("endTime", end.Format(time.RFC3339))

	var available bool
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/availability/%d", ReservationsPath, resourceID), params, nil, &available)
	return available, err
}

// CalendarView is the server's calendar answer
type CalendarView struct {
	ResourceID int64              `json:"resourceId"`
	View       string             `json:"view"`
	Days       []calendar.DayView `json:"days"`
}

// Calendar fetches the day or week grid of a resource around date.
// Named locations of date are sent along as the server-side time zone.
func (c *Client) Calendar(ctx context.Context, resourceID int64, date time.Time, view string) (CalendarView, error) {
	params := url.Values{}
	params.Set("date", date.Format("2006-01-02"))
	if view != "" {
		params.Set("view", view)
	}
	if loc := date.Location(); loc != time.UTC && loc != time.Local {
		params.Set("tz", loc.String())
	}

	var out CalendarView
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%d/calendar", ResourcesPath, resourceID), params, nil, &out)
	return out, err
}

// do sends one request and decodes a JSON answer into out when out is non-nil
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) (http.Header, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.Header, decodeError(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.Header, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.Header, nil
}

func decodeError(status int, data []byte) error {
	apiErr := &APIError{Status: status, Message: http.StatusText(status)}
	var body struct {
		Error string `json:"error"`
		Key   string `json:"key"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Key = body.Key
	}
	return apiErr
}

func totalCount(h http.Header, fallback int) int64 {
	if n, err := strconv.ParseInt(h.Get("X-Total-Count"), 10, 64); err == nil {
		return n
	}
	return int64(fallback)
}

func pageParams(page models.PageRequest, params url.Values) url.Values {
	out := url.Values{}
	for k, v := range params {
		out[k] = v
	}
	page = page.Normalize()
	out.Set("page", strconv.Itoa(page.Page))
	out.Set("size", strconv.Itoa(page.Size))
	if sort := page.SortParam(); sort != "" {
		out.Set("sort", sort)
	}
	return out
}
