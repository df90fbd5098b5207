package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func TestParseBaseURL_DefaultsAndNormalizes(t *testing.T) {
	u, err := parseBaseURL("")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Scheme != "http" {
		t.Fatalf("scheme = %q, want http", u.Scheme)
	}
	if u.Host != defaultAPIURL {
		t.Fatalf("host = %q, want %q", u.Host, defaultAPIURL)
	}

	u, err = parseBaseURL("https://example.com:1234/api/?x=1#frag")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Path != "/api" || u.RawQuery != "" || u.Fragment != "" {
		t.Fatalf("url not normalized: %q", u.String())
	}
}

func TestClient_FetchesEndpointsAndEncodesQueries(t *testing.T) {
	t.Parallel()

	var gotTargetQuery url.Values
	var gotAuth, gotUserAgent string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/user/7":
			_ = json.NewEncoder(w).Encode(User{ID: 7, Name: "Ana"})
		case "/target":
			gotTargetQuery = r.URL.Query()
			_ = json.NewEncoder(w).Encode([]Target{{ID: 1, Status: StatusDone}})
		case "/team":
			_ = json.NewEncoder(w).Encode([]Team{{ID: 3, Name: "Equipe 03"}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, Options{Tokens: staticToken("tok-123")})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	users, err := c.FetchUser(ctx, 7)
	if err != nil {
		t.Fatalf("FetchUser returned error: %v", err)
	}
	if len(users) != 1 || users[0].Name != "Ana" {
		t.Fatalf("FetchUser = %#v, want one user Ana", users)
	}

	targets, err := c.FetchTargets(ctx, Filters{Status: "CONCLUÍDA", NumeroArt: "  "})
	if err != nil {
		t.Fatalf("FetchTargets returned error: %v", err)
	}
	if len(targets) != 1 || targets[0].ID != 1 {
		t.Fatalf("FetchTargets = %#v, want id=1", targets)
	}
	if gotTargetQuery.Get("status") != "CONCLUÍDA" {
		t.Fatalf("status query = %q, want CONCLUÍDA", gotTargetQuery.Get("status"))
	}
	if gotTargetQuery.Has("numeroArt") || gotTargetQuery.Has("teamId") {
		t.Fatalf("empty filters must be omitted, got %v", gotTargetQuery)
	}

	teams, err := c.ListTeams(ctx)
	if err != nil {
		t.Fatalf("ListTeams returned error: %v", err)
	}
	if len(teams) != 1 || teams[0].Name != "Equipe 03" {
		t.Fatalf("ListTeams = %#v", teams)
	}

	if gotAuth != "Bearer tok-123" {
		t.Fatalf("Authorization = %q, want bearer token", gotAuth)
	}
	if !strings.HasPrefix(gotUserAgent, "fiscal/") {
		t.Fatalf("User-Agent = %q, want fiscal/*", gotUserAgent)
	}
}

func TestClient_FetchUserNormalizesCollection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"name":"a"},{"id":1,"name":"b"}]`))
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, Options{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	users, err := c.FetchUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchUser returned error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("FetchUser len = %d, want 2", len(users))
	}
}

func TestClient_PostsTeamOperations(t *testing.T) {
	t.Parallel()

	bodies := map[string]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		raw, _ := io.ReadAll(r.Body)
		bodies[r.URL.Path] = strings.TrimSpace(string(raw))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/login":
			_, _ = w.Write([]byte(`{"access_token":"abc"}`))
		case "/team":
			_, _ = w.Write([]byte(`{"id":9,"name":"Nova"}`))
		default:
			w.WriteHeader(http.StatusCreated)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, Options{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	ctx := context.Background()

	token, err := c.Login(ctx, "ana", "secret")
	if err != nil || token != "abc" {
		t.Fatalf("Login = %q, %v; want abc", token, err)
	}
	team, err := c.CreateTeam(ctx, " Nova ")
	if err != nil || team.ID != 9 {
		t.Fatalf("CreateTeam = %#v, %v", team, err)
	}
	if err := c.AddTeamUsers(ctx, 9, []int64{1, 2}); err != nil {
		t.Fatalf("AddTeamUsers returned error: %v", err)
	}
	if err := c.AssignTargets(ctx, 9, []int64{5}); err != nil {
		t.Fatalf("AssignTargets returned error: %v", err)
	}

	if bodies["/auth/login"] != `{"password":"secret","username":"ana"}` {
		t.Fatalf("login body = %s", bodies["/auth/login"])
	}
	if bodies["/team"] != `{"name":"Nova"}` {
		t.Fatalf("team body = %s", bodies["/team"])
	}
	if bodies["/team/9/users"] != `{"userIds":[1,2]}` {
		t.Fatalf("users body = %s", bodies["/team/9/users"])
	}
	if bodies["/team/9/assign-targets"] != `{"targetIds":[5]}` {
		t.Fatalf("assign body = %s", bodies["/team/9/assign-targets"])
	}
}

func TestClient_RequiresIDs(t *testing.T) {
	c, err := NewClient("127.0.0.1:1", Options{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	ctx := context.Background()
	if err := c.AssignTargets(ctx, 0, []int64{1}); err == nil {
		t.Fatalf("AssignTargets without team returned nil error")
	}
	if err := c.AssignTargets(ctx, 1, nil); err == nil {
		t.Fatalf("AssignTargets without targets returned nil error")
	}
	if err := c.AddTeamUsers(ctx, 1, nil); err == nil {
		t.Fatalf("AddTeamUsers without users returned nil error")
	}
	if _, err := c.CreateTeam(ctx, "  "); err == nil {
		t.Fatalf("CreateTeam with blank name returned nil error")
	}
}

func TestClient_HTTPErrorAndDecodeError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/target":
			_, _ = w.Write([]byte("{not-json"))
		case "/user/1":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Unauthorized"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, Options{})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	_, err = c.FetchTargets(context.Background(), Filters{})
	if err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Fatalf("FetchTargets error = %v, want decode response error", err)
	}

	_, err = c.FetchUser(context.Background(), 1)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized || se.Message != "Unauthorized" {
		t.Fatalf("FetchUser error = %v, want 401 StatusError with message", err)
	}
	if !IsUnauthorized(err) {
		t.Fatalf("IsUnauthorized = false, want true")
	}

	_, err = c.ListTeams(context.Background())
	if err == nil || !strings.Contains(err.Error(), "returned status 500") {
		t.Fatalf("ListTeams error = %v, want status 500 error", err)
	}
}
