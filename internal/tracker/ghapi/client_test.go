package ghapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/andywolf/milestonesync/internal/tracker"
)

var repo = tracker.RepoRef{Owner: "org", Name: "app"}

// newTestClient starts a server that serves REST under /api/v3/ and GraphQL at
// /graphql.
func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(Options{
		HTTPClient: srv.Client(),
		APIURL:     srv.URL + "/api/v3/",
		GraphQLURL: srv.URL + "/graphql",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("New() without token should fail")
	}
}

func TestGetMilestone(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/org/app/milestones/4", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number":4,"title":"v1.0","state":"open","due_on":"2026-03-31T23:59:59Z","html_url":"https://github.com/org/app/milestone/4"}`)
	})
	c := newTestClient(t, mux)

	m, err := c.GetMilestone(context.Background(), repo, 4)
	if err != nil {
		t.Fatalf("GetMilestone() error: %v", err)
	}
	if m.Number != 4 || m.Title != "v1.0" || m.Owner != "org" || m.Repo != "app" {
		t.Errorf("GetMilestone() = %+v", m)
	}
	if m.DueOn == nil || m.DueOn.Format("2006-01-02") != "2026-03-31" {
		t.Errorf("DueOn = %v, want 2026-03-31", m.DueOn)
	}
}

func TestGetMilestoneNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/org/app/milestones/9", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	c := newTestClient(t, mux)

	_, err := c.GetMilestone(context.Background(), repo, 9)
	if !errors.Is(err, tracker.ErrNotFound) {
		t.Fatalf("GetMilestone() error = %v, want ErrNotFound", err)
	}
	if !tracker.IsRemote(err) {
		t.Errorf("error %v should be a RemoteError", err)
	}
}

func TestListMilestonesPaginates(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/org/app/milestones", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("state"); got != "all" {
			t.Errorf("state = %q, want all", got)
		}
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"number":2,"title":"v2"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/api/v3/repos/org/app/milestones?page=2>; rel="next"`, srvURL))
		fmt.Fprint(w, `[{"number":1,"title":"v1"}]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	c, err := New(Options{HTTPClient: srv.Client(), APIURL: srv.URL + "/api/v3/"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	got, err := c.ListMilestones(context.Background(), repo, "")
	if err != nil {
		t.Fatalf("ListMilestones() error: %v", err)
	}
	if len(got) != 2 || got[0].Title != "v1" || got[1].Title != "v2" {
		t.Errorf("ListMilestones() = %+v", got)
	}
}

func TestCreateMilestone(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:   "created",
			status: http.StatusCreated,
			body:   `{"number":7,"title":"v3"}`,
		},
		{
			name:    "already exists",
			status:  http.StatusUnprocessableEntity,
			body:    `{"message":"Validation Failed","errors":[{"resource":"Milestone","code":"already_exists","field":"title"}]}`,
			wantErr: tracker.ErrMilestoneExists,
		},
		{
			name:    "missing repository",
			status:  http.StatusNotFound,
			body:    `{"message":"Not Found"}`,
			wantErr: tracker.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req map[string]interface{}
			mux := http.NewServeMux()
			mux.HandleFunc("/api/v3/repos/org/app/milestones", func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				_ = json.NewDecoder(r.Body).Decode(&req)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			c := newTestClient(t, mux)

			due, _ := tracker.DueDate("2026-06-30")
			m, err := c.CreateMilestone(context.Background(), repo, tracker.NewMilestone{Title: "v3", Description: "Third", DueOn: &due})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CreateMilestone() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateMilestone() error: %v", err)
			}
			if m.Number != 7 {
				t.Errorf("Number = %d, want 7", m.Number)
			}
			if req["title"] != "v3" || req["state"] != "open" || req["description"] != "Third" {
				t.Errorf("request body = %v", req)
			}
			if req["due_on"] != "2026-06-30T23:59:59Z" {
				t.Errorf("due_on = %v, want 2026-06-30T23:59:59Z", req["due_on"])
			}
		})
	}
}

func TestListMilestoneIssuesSkipsPullRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/org/app/issues", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("milestone") != "3" || q.Get("state") != "open" || q.Get("labels") != "bug" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `[
			{"number":10,"node_id":"I_10","title":"Real issue","labels":[{"name":"bug"}],"milestone":{"number":3,"title":"v1"}},
			{"number":11,"node_id":"PR_11","title":"A PR","pull_request":{"url":"https://api.github.com/repos/org/app/pulls/11"}}
		]`)
	})
	c := newTestClient(t, mux)

	ms := tracker.MilestoneRef{Owner: "org", Repo: "app", Number: 3, Title: "v1"}
	got, err := c.ListMilestoneIssues(context.Background(), repo, ms, tracker.IssueFilter{State: "open", Labels: []string{"bug"}})
	if err != nil {
		t.Fatalf("ListMilestoneIssues() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d issues, want 1", len(got))
	}
	if got[0].Ref.Number != 10 || got[0].MilestoneTitle() != "v1" || !got[0].HasLabel("bug") {
		t.Errorf("issue = %+v", got[0])
	}
}

func TestSetIssueMilestone(t *testing.T) {
	var body map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/org/app/issues/12", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		fmt.Fprint(w, `{"number":12}`)
	})
	c := newTestClient(t, mux)

	ref := tracker.IssueRef{Owner: "org", Repo: "app", Number: 12}
	err := c.SetIssueMilestone(context.Background(), ref, tracker.MilestoneRef{Owner: "org", Repo: "app", Number: 5, Title: "v1"})
	if err != nil {
		t.Fatalf("SetIssueMilestone() error: %v", err)
	}
	if body["milestone"] != float64(5) {
		t.Errorf("milestone = %v, want 5", body["milestone"])
	}

	err = c.SetIssueMilestone(context.Background(), ref, tracker.MilestoneRef{Owner: "org", Repo: "other", Number: 5})
	if err == nil {
		t.Error("SetIssueMilestone() with a foreign milestone should fail")
	}
}

func TestAddLabelCreatesMissingLabel(t *testing.T) {
	var (
		mu      sync.Mutex
		created map[string]interface{}
		added   []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/org/app/labels/frontend", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	mux.HandleFunc("/api/v3/repos/org/app/labels", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&created)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"name":"frontend"}`)
	})
	mux.HandleFunc("/api/v3/repos/org/app/issues/3/labels", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&added)
		fmt.Fprint(w, `[{"name":"frontend"}]`)
	})
	c := newTestClient(t, mux)

	if err := c.AddLabel(context.Background(), tracker.IssueRef{Owner: "org", Repo: "app", Number: 3}, "frontend"); err != nil {
		t.Fatalf("AddLabel() error: %v", err)
	}
	if created["description"] != "Frontend-related issues" || created["color"] != tracker.LabelColor {
		t.Errorf("created label = %v", created)
	}
	if len(added) != 1 || added[0] != "frontend" {
		t.Errorf("added labels = %v", added)
	}
}

// graphqlRequest is the body githubv4 posts.
type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

func TestGetSubIssuesPaginates(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req graphqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !strings.Contains(req.Query, "subIssues(first: 100, after: $after)") {
			t.Errorf("query = %s", req.Query)
		}
		if req.Variables["number"] != float64(1) {
			t.Errorf("number = %v, want 1", req.Variables["number"])
		}
		if req.Variables["after"] == nil {
			fmt.Fprint(w, `{"data":{"repository":{"issue":{"subIssues":{
				"nodes":[{"id":"I_2","number":2,"title":"Child","body":"","repository":{"name":"app","owner":{"login":"org"}},"milestone":{"number":1,"title":"v1"},"labels":{"nodes":[{"name":"bug"}]}}],
				"pageInfo":{"hasNextPage":true,"endCursor":"CUR"}}}}}}`)
			return
		}
		if req.Variables["after"] != "CUR" {
			t.Errorf("after = %v, want CUR", req.Variables["after"])
		}
		fmt.Fprint(w, `{"data":{"repository":{"issue":{"subIssues":{
			"nodes":[{"id":"I_3","number":3,"title":"Other","body":"","repository":{"name":"lib","owner":{"login":"org"}},"milestone":null,"labels":{"nodes":[]}}],
			"pageInfo":{"hasNextPage":false,"endCursor":""}}}}}}`)
	})
	c := newTestClient(t, mux)

	got, err := c.GetSubIssues(context.Background(), tracker.IssueRef{Owner: "org", Repo: "app", Number: 1})
	if err != nil {
		t.Fatalf("GetSubIssues() error: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(got) != 2 {
		t.Fatalf("got %d sub-issues, want 2", len(got))
	}
	if got[0].NodeID != "I_2" || got[0].MilestoneTitle() != "v1" || !got[0].HasLabel("bug") {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Ref.Repo != "lib" || got[1].Milestone != nil {
		t.Errorf("second = %+v", got[1])
	}
}

func TestGetSubIssuesNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		fmt.Fprint(w, `{"data":{"repository":{"issue":null}},"errors":[{"type":"NOT_FOUND","message":"Could not resolve to an Issue with the number of 99."}]}`)
	})
	c := newTestClient(t, mux)

	_, err := c.GetSubIssues(context.Background(), tracker.IssueRef{Owner: "org", Repo: "app", Number: 99})
	if !errors.Is(err, tracker.ErrNotFound) {
		t.Fatalf("GetSubIssues() error = %v, want ErrNotFound", err)
	}
}

func TestSubIssueMutations(t *testing.T) {
	var queries []graphqlRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		queries = append(queries, req)
		switch {
		case strings.Contains(req.Query, "removeSubIssue"):
			fmt.Fprint(w, `{"data":{"removeSubIssue":{"issue":{"id":"I_1"}}}}`)
		default:
			fmt.Fprint(w, `{"data":{"addSubIssue":{"issue":{"id":"I_9"}}}}`)
		}
	})
	c := newTestClient(t, mux)

	oldParent := tracker.Issue{Ref: tracker.IssueRef{Owner: "org", Repo: "app", Number: 1}, NodeID: "I_1"}
	newParent := tracker.Issue{Ref: tracker.IssueRef{Owner: "org", Repo: "app", Number: 9}, NodeID: "I_9"}
	child := tracker.Issue{Ref: tracker.IssueRef{Owner: "org", Repo: "app", Number: 5}, NodeID: "I_5"}

	if err := c.RemoveSubIssue(context.Background(), oldParent, child); err != nil {
		t.Fatalf("RemoveSubIssue() error: %v", err)
	}
	if err := c.AddSubIssue(context.Background(), newParent, child); err != nil {
		t.Fatalf("AddSubIssue() error: %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("got %d requests, want 2", len(queries))
	}
	if !strings.Contains(queries[0].Query, "RemoveSubIssueInput!") || !strings.Contains(queries[1].Query, "AddSubIssueInput!") {
		t.Errorf("queries = %q, %q", queries[0].Query, queries[1].Query)
	}
	input, _ := queries[1].Variables["input"].(map[string]interface{})
	if input["issueId"] != "I_9" || input["subIssueId"] != "I_5" {
		t.Errorf("input = %v", input)
	}

	if err := c.AddSubIssue(context.Background(), newParent, tracker.Issue{Ref: child.Ref}); err == nil {
		t.Error("AddSubIssue() without node id should fail")
	}
}
