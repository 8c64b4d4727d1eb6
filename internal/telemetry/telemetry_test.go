package telemetry

import (
	"context"
	"testing"

	"github.com/spf13/cobra"
)

func TestNewClientOptOut(t *testing.T) {
	t.Setenv("CTXGUARD_TELEMETRY_OPTOUT", "1")

	client := NewClient("1.0.0", nil)

	if _, ok := client.(*NoOpClient); !ok {
		t.Error("CTXGUARD_TELEMETRY_OPTOUT=1 should return NoOpClient")
	}
}

func TestNewClientOptOutWithAnyValue(t *testing.T) {
	t.Setenv("CTXGUARD_TELEMETRY_OPTOUT", "yes")

	client := NewClient("1.0.0", nil)

	if _, ok := client.(*NoOpClient); !ok {
		t.Error("CTXGUARD_TELEMETRY_OPTOUT with any value should return NoOpClient")
	}
}

func TestNewClientTelemetryDisabledInSettings(t *testing.T) {
	disabled := false
	client := NewClient("1.0.0", &disabled)

	if _, ok := client.(*NoOpClient); !ok {
		t.Error("telemetryEnabled=false should return NoOpClient")
	}
}

func TestNoOpClientMethods(_ *testing.T) {
	client := &NoOpClient{}

	// Should not panic
	client.TrackCommand(nil, "", "", false)
	client.TrackCommand(&cobra.Command{Use: "test"}, "standard", "claude-code", true)
	client.Close()
}

func TestWithClientAndGetClient(t *testing.T) {
	ctx := context.Background()
	client := &NoOpClient{}

	ctx = WithClient(ctx, client)
	retrieved := GetClient(ctx)

	if _, ok := retrieved.(*NoOpClient); !ok {
		t.Error("GetClient should return the client set with WithClient")
	}
}

func TestGetClientReturnsNoOpWhenNotSet(t *testing.T) {
	ctx := context.Background()

	client := GetClient(ctx)

	if _, ok := client.(*NoOpClient); !ok {
		t.Error("GetClient should return NoOpClient when no client is set")
	}
}

func TestPostHogClientSkipsHiddenCommands(_ *testing.T) {
	client := &PostHogClient{
		machineID: "test-id",
	}

	hiddenCmd := &cobra.Command{
		Use:    "hidden",
		Hidden: true,
	}

	// Should not panic and should skip hidden commands
	client.TrackCommand(hiddenCmd, "standard", "claude-code", true)
}

func TestPostHogClientSkipsNilCommand(_ *testing.T) {
	client := &PostHogClient{
		machineID: "test-id",
	}

	// Should not panic with nil command
	client.TrackCommand(nil, "standard", "claude-code", true)
}

func TestPostHogClientClose(_ *testing.T) {
	client := &PostHogClient{
		machineID: "test-id",
		// client is nil, should not panic
	}

	// Should not panic when internal client is nil
	client.Close()
}

func TestTrackCommandUsesCommandPath(t *testing.T) {
	client := &PostHogClient{
		machineID: "test-id",
	}

	cmd := &cobra.Command{
		Use: "diagnose",
	}
	rootCmd := &cobra.Command{
		Use: "ctxguard",
	}
	rootCmd.AddCommand(cmd)

	if cmd.CommandPath() != "ctxguard diagnose" {
		t.Errorf("CommandPath() = %q, want %q", cmd.CommandPath(), "ctxguard diagnose")
	}

	// TrackCommand should not panic with nil internal client
	client.TrackCommand(cmd, "standard", "claude-code", true)
}
