package ytapi

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

var errTokenUnavailable = errors.New("ytapi test: token unavailable")

// fakeRecorder captures RecordAPICall invocations for assertions.
type fakeRecorder struct {
	calls []recordedCall
}

type recordedCall struct {
	method    string
	quotaCost int
	success   bool
	errMsg    string
}

func (f *fakeRecorder) RecordAPICall(_ context.Context, method string, quotaCost int, success bool, errMsg string, _ time.Time) error {
	f.calls = append(f.calls, recordedCall{method, quotaCost, success, errMsg})
	return nil
}

type fakeCalendar struct {
	resetAt time.Time
}

func (f *fakeCalendar) NextResetUTC(time.Time) time.Time {
	return f.resetAt
}

type fakeTokenSource struct {
	token string
	err   error
}

func (f *fakeTokenSource) Token(context.Context) (string, error) {
	return f.token, f.err
}

// newTestClient builds a Client wired to an httptest server instead of
// the real Data API host.
func newTestClient(t *testing.T, server *httptest.Server, rec *fakeRecorder) *Client {
	t.Helper()
	c := New(&fakeTokenSource{token: "test-token"}, rec, &fakeCalendar{resetAt: time.Now().Add(24 * time.Hour)})
	c.baseURL = server.URL
	return c
}
