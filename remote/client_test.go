package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ekehi/ekehi-sync-server/model"
)

func TestClient_GetProfile(t *testing.T) {
	t.Run("decodes_profile_and_headers", func(t *testing.T) {
		var gotAuth, gotProject string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotProject = r.Header.Get("X-Project-Id")
			if r.URL.Path != "/v1/users/u-1/profile" {
				t.Errorf("path = %v", r.URL.Path)
			}
			json.NewEncoder(w).Encode(&model.UserProfile{
				ID: "p-1", UserID: "u-1", TaskReward: 5,
			})
		}))
		defer server.Close()

		client := NewClient(Config{
			Endpoint:  server.URL,
			ProjectID: "proj-1",
			APIKey:    "secret",
		})

		profile, err := client.GetProfile(context.Background(), "u-1")
		if err != nil {
			t.Fatal(err.Error())
		}
		if profile == nil || profile.TaskReward != 5 {
			t.Fatalf("profile = %+v", profile)
		}
		if gotAuth != "Bearer secret" {
			t.Errorf("Authorization = %v", gotAuth)
		}
		if gotProject != "proj-1" {
			t.Errorf("X-Project-Id = %v", gotProject)
		}
	})

	t.Run("unknown_user_is_nil_not_error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer server.Close()

		client := NewClient(Config{Endpoint: server.URL})

		profile, err := client.GetProfile(context.Background(), "nobody")
		if err != nil {
			t.Fatal(err.Error())
		}
		if profile != nil {
			t.Errorf("profile = %+v, want nil", profile)
		}
	})

	t.Run("server_error_surfaces", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "backend down", http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewClient(Config{Endpoint: server.URL})

		if _, err := client.GetProfile(context.Background(), "u-1"); err == nil {
			t.Error("expected error for 500 response")
		}
	})
}

func TestClient_CompleteTask(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %v", r.Method)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err.Error())
		}
		if body["task_id"] != "t-1" || body["proof"] != "link" {
			t.Errorf("body = %+v", body)
		}
		json.NewEncoder(w).Encode(&model.TaskCompletion{
			ID: "c-1", UserID: "u-1", TaskID: "t-1",
			Status: model.CompletionVerified,
		})
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})

	completion, err := client.CompleteTask(context.Background(), "u-1", "t-1", "link")
	if err != nil {
		t.Fatal(err.Error())
	}
	if completion.Status != model.CompletionVerified {
		t.Errorf("status = %v", completion.Status)
	}
}

func TestClient_UpdateSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v1/sessions/s-1" {
			t.Errorf("request = %v %v", r.Method, r.URL.Path)
		}
		var session model.MiningSession
		if err := json.NewDecoder(r.Body).Decode(&session); err != nil {
			t.Fatal(err.Error())
		}
		json.NewEncoder(w).Encode(&session)
	}))
	defer server.Close()

	client := NewClient(Config{Endpoint: server.URL})

	updated, err := client.UpdateSession(context.Background(), &model.MiningSession{
		ID: "s-1", UserID: "u-1", CoinsEarned: 2,
	})
	if err != nil {
		t.Fatal(err.Error())
	}
	if updated.CoinsEarned != 2 {
		t.Errorf("session = %+v", updated)
	}
}
