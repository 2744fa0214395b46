package seedintake

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fediwatch/crawler/internal/logger"
)

type fakeStore struct {
	inserted []string
	failOn   string
}

func (f *fakeStore) InsertDiscovered(ctx context.Context, hostname string, now time.Time) error {
	if hostname == f.failOn {
		return errors.New("boom")
	}
	f.inserted = append(f.inserted, hostname)
	return nil
}

func TestRunAcceptsValidRejectsInvalid(t *testing.T) {
	input := "mastodon.example.org\nnot a hostname\nhttps://pleroma.example.net\n192.0.2.1\nlemmy.example.com\n"
	store := &fakeStore{}
	log := logger.New("error", false)

	result, err := Run(context.Background(), store, log, strings.NewReader(input), time.Now())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Accepted != 2 {
		t.Errorf("Accepted = %d, want 2", result.Accepted)
	}
	if result.Rejected != 3 {
		t.Errorf("Rejected = %d, want 3", result.Rejected)
	}
	if len(store.inserted) != 2 {
		t.Errorf("inserted = %v, want 2 entries", store.inserted)
	}
}

func TestRunBlankLinesAreSkippedNotCounted(t *testing.T) {
	input := "mastodon.example.org\n\n\nlemmy.example.com\n"
	store := &fakeStore{}
	log := logger.New("error", false)

	result, err := Run(context.Background(), store, log, strings.NewReader(input), time.Now())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Accepted != 2 || result.Rejected != 0 {
		t.Errorf("result = %+v, want 2 accepted, 0 rejected", result)
	}
}

func TestRunStoreFailureAborts(t *testing.T) {
	input := "mastodon.example.org\nlemmy.example.com\n"
	store := &fakeStore{failOn: "lemmy.example.com"}
	log := logger.New("error", false)

	_, err := Run(context.Background(), store, log, strings.NewReader(input), time.Now())
	if err == nil {
		t.Fatal("Run() error = nil, want a store failure")
	}
}

func TestAccepted50Percent(t *testing.T) {
	cases := []struct {
		result Result
		want   bool
	}{
		{Result{Accepted: 0, Rejected: 0}, true},
		{Result{Accepted: 1, Rejected: 1}, true},
		{Result{Accepted: 2, Rejected: 1}, true},
		{Result{Accepted: 1, Rejected: 2}, false},
		{Result{Accepted: 1, Rejected: 3}, false},
	}
	for _, tc := range cases {
		if got := tc.result.Accepted50Percent(); got != tc.want {
			t.Errorf("%+v.Accepted50Percent() = %v, want %v", tc.result, got, tc.want)
		}
	}
}
