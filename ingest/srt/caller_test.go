package srt

import (
	"context"
	"testing"

	"github.com/zsiec/cadence/ingest"
)

func TestPullRequiresAddressAndKey(t *testing.T) {
	t.Parallel()

	c := NewCaller(ingest.NewRegistry(nil), nil)
	if err := c.Pull(context.Background(), PullRequest{StreamKey: "cam1"}); err == nil {
		t.Error("expected error for missing address")
	}
	if err := c.Pull(context.Background(), PullRequest{Address: "srt://host:6000"}); err == nil {
		t.Error("expected error for missing stream key")
	}
}

func TestPullDuplicateKeyRejected(t *testing.T) {
	t.Parallel()

	c := NewCaller(ingest.NewRegistry(nil), nil)
	c.pulls["cam1"] = &activePull{
		req:    PullRequest{Address: "srt://host:6000", StreamKey: "cam1"},
		cancel: func() {},
	}

	err := c.Pull(context.Background(), PullRequest{Address: "srt://other:6000", StreamKey: "cam1"})
	if err == nil {
		t.Fatal("expected error for duplicate stream key")
	}

	if got := c.ActivePulls(); len(got) != 1 || got[0].Address != "srt://host:6000" {
		t.Errorf("ActivePulls = %+v, want the original pull only", got)
	}
}

func TestStopUnknownKey(t *testing.T) {
	t.Parallel()

	c := NewCaller(ingest.NewRegistry(nil), nil)
	if err := c.Stop("nope"); err == nil {
		t.Error("expected error for unknown stream key")
	}
}

func TestStopCancelsPull(t *testing.T) {
	t.Parallel()

	c := NewCaller(ingest.NewRegistry(nil), nil)
	cancelled := false
	c.pulls["cam1"] = &activePull{
		req:    PullRequest{Address: "srt://host:6000", StreamKey: "cam1"},
		cancel: func() { cancelled = true },
	}

	if err := c.Stop("cam1"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !cancelled {
		t.Error("Stop did not cancel the pull context")
	}
}
