package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseRelationTypeFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    RelationType
		wantErr bool
	}{
		{name: "valid", input: "user_like_content", want: RelationTypeUserLikeContent},
		{name: "valid uppercase with spaces", input: " USER_LIKE_CONTENT ", want: RelationTypeUserLikeContent},
		{name: "invalid", input: "follow", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseRelationTypeFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseRelationTypeFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseRelationTypeFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseRelationTypeFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNotificationRequestValidate(t *testing.T) {
	t.Parallel()

	valid := NotificationRequest{
		UserID:       "owner-1",
		RelateUserID: "actor-1",
		RelateType:   RelationTypeUserLikeContent,
		ContentID:    "content-1",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(r *NotificationRequest)
	}{
		{name: "missing user", mutate: func(r *NotificationRequest) { r.UserID = " " }},
		{name: "missing actor", mutate: func(r *NotificationRequest) { r.RelateUserID = "" }},
		{name: "missing content", mutate: func(r *NotificationRequest) { r.ContentID = "" }},
		{name: "invalid relate type", mutate: func(r *NotificationRequest) { r.RelateType = "follow" }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := valid
			tt.mutate(&req)
			if err := req.Validate(); !errors.Is(err, ErrValidation) {
				t.Fatalf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestNotificationRequestNotifyTimeMillis(t *testing.T) {
	t.Parallel()

	req := NotificationRequest{}
	if got := req.NotifyTimeMillis(); got != 0 {
		t.Fatalf("NotifyTimeMillis() = %d, want 0", got)
	}

	ts := time.UnixMilli(1_700_000_000_123)
	req.NotifyTime = &ts
	if got := req.NotifyTimeMillis(); got != 1_700_000_000_123 {
		t.Fatalf("NotifyTimeMillis() = %d, want 1700000000123", got)
	}
}

func TestRelationFilterValidate(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)

	if err := (RelationFilter{}).Validate(); err != nil {
		t.Fatalf("Validate() zero filter error = %v", err)
	}
	if err := (RelationFilter{CreatedFrom: &from, CreatedTo: &to}).Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}
}

func TestJobRunDuration(t *testing.T) {
	t.Parallel()

	var nilRun *JobRun
	if got := nilRun.Duration(); got != 0 {
		t.Fatalf("Duration() on nil = %s, want 0", got)
	}

	start := time.Unix(1_700_000_000, 0)
	run := &JobRun{StartedAt: start, FinishedAt: start.Add(90 * time.Second)}
	if got := run.Duration(); got != 90*time.Second {
		t.Fatalf("Duration() = %s, want 1m30s", got)
	}
}
