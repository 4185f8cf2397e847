package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"lectern/internal/config"
	"lectern/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	err := svc.Publish(context.Background(), notifications.EventPipelineCompleted,
		notifications.Payload{"document": "Aula 1"})
	if err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "review needed for document",
			event: notifications.EventReviewNeeded,
			payload: notifications.Payload{
				"document": "Aula 1",
				"count":    4,
				"kind":     "mappings",
			},
			expectTitle:   "Lectern - Review Needed",
			expectMessage: "Review needed: 4 mappings for Aula 1",
			expectTags:    "lectern,review,mappings",
		},
		{
			name:  "review needed without document",
			event: notifications.EventReviewNeeded,
			payload: notifications.Payload{
				"count": 2,
				"kind":  "items",
			},
			expectTitle:   "Lectern - Review Needed",
			expectMessage: "Review needed: 2 items awaiting review",
			expectTags:    "lectern,review,items",
		},
		{
			name:  "pipeline completed",
			event: notifications.EventPipelineCompleted,
			payload: notifications.Payload{
				"document": "Gramatica Basica",
			},
			expectTitle:    "Lectern - Pipeline Complete",
			expectMessage:  "Pipeline complete: Gramatica Basica",
			expectTags:     "lectern,pipeline,completed",
			expectPriority: "high",
		},
		{
			name:  "pipeline failed",
			event: notifications.EventPipelineFailed,
			payload: notifications.Payload{
				"document": "Aula 2",
				"error":    errors.New("pdf is encrypted"),
			},
			expectTitle:    "Lectern - Pipeline Failed",
			expectMessage:  "Pipeline failed: Aula 2: pdf is encrypted",
			expectTags:     "lectern,pipeline,failed",
			expectPriority: "high",
		},
		{
			name:  "daemon error",
			event: notifications.EventDaemonError,
			payload: notifications.Payload{
				"context": "worker tick",
				"error":   "gate backend down",
			},
			expectTitle:    "Lectern - Error",
			expectMessage:  "Error with worker tick: gate backend down",
			expectTags:     "lectern,error,alert",
			expectPriority: "high",
		},
		{
			name:           "test notification",
			event:          notifications.EventTest,
			payload:        nil,
			expectTitle:    "Lectern - Test",
			expectMessage:  "Notification system test",
			expectTags:     "lectern,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceSuppressesDisabledEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Review = false
	cfg.Notifications.Completion = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	suppressed := []notifications.Event{
		notifications.EventReviewNeeded,
		notifications.EventPipelineCompleted,
		notifications.EventPipelineFailed,
		notifications.EventDaemonError,
	}

	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"document": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	err := svc.Publish(context.Background(), notifications.EventTest, nil)
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
