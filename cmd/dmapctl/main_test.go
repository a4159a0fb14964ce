package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/dmapctl/internal/testutil/fakebackend"
	"github.com/danmuck/dmapctl/internal/testutil/testlog"
)

func runScript(t *testing.T, fake *fakebackend.Server, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dmapctl.toml")
	body := "base_url = \"" + fake.URL() + "\"\nrequest_timeout = \"2s\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var out bytes.Buffer
	app := NewApp(path, strings.NewReader(strings.Join(lines, "\n")+"\n"), &out)
	if err := app.Run(context.Background()); err != nil {
		t.Fatalf("run: %v\noutput:\n%s", err, out.String())
	}
	return out.String()
}

func TestCreateGenericNodeFromMenu(t *testing.T) {
	testlog.Start(t)
	fake := fakebackend.New(t)
	fake.SetUIDs("abc123")

	out := runScript(t, fake,
		"3",                    // data nodes
		"4",                    // new data node
		"1",                    // generate identifier
		"2", "0", "temp1", "r", // form: value, name, rw
		"4", // back
		"3", // data nodes again
		"8",
	)

	for _, want := range []string{"allocated identifier abc123", "submitted", "Data node name: temp1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	posted := fake.Posted(fakebackend.RouteGeneric)
	if len(posted) != 1 || posted[0]["node_uid"] != "abc123" {
		t.Fatalf("unexpected posted bodies: %v", posted)
	}
}

func TestSubmitFailureKeepsFormForRetry(t *testing.T) {
	testlog.Start(t)
	fake := fakebackend.New(t)
	fake.SetUIDs("keep")
	fake.FailRoute(fakebackend.RouteGeneric, 500)

	out := runScript(t, fake,
		"4",
		"1",
		"2", "1", "pump", "w",
		"b",
		"8",
	)
	if !strings.Contains(out, "submit failed") {
		t.Fatalf("expected submit failure in output:\n%s", out)
	}
	if !strings.Contains(out, "identifier: keep") {
		t.Fatalf("expected identifier to be kept after failure:\n%s", out)
	}
	if hits := fake.Hits(fakebackend.RouteGeneric); hits != 1 {
		t.Fatalf("expected one submit attempt, got %d", hits)
	}
}

func TestSubmitWithoutIdentifierIsRejected(t *testing.T) {
	testlog.Start(t)
	fake := fakebackend.New(t)

	out := runScript(t, fake,
		"4",
		"2", "1", "pump", "r",
		"4",
		"8",
	)
	if !strings.Contains(out, "action rejected") {
		t.Fatalf("expected rejection in output:\n%s", out)
	}
	if hits := fake.Hits(fakebackend.RouteGeneric); hits != 0 {
		t.Fatalf("expected no submit request, got %d", hits)
	}
}

func TestSelectProtocolAndOverview(t *testing.T) {
	testlog.Start(t)
	fake := fakebackend.New(t)
	fake.SetCollection("mqttstuff", `{"not":"a list"}`)

	out := runScript(t, fake,
		"1", "2", // select Modbus TCP
		"2", // info
		"6", // overview
		"e",
	)
	if !strings.Contains(out, "bind MB registers") {
		t.Fatalf("expected modbus info in output:\n%s", out)
	}
	if !strings.Contains(out, "== MQTT (mqtt) ==") || !strings.Contains(out, "could not load") {
		t.Fatalf("expected failed mqtt overview in output:\n%s", out)
	}
}

func TestEndOfInputExitsCleanly(t *testing.T) {
	testlog.Start(t)
	fake := fakebackend.New(t)
	out := runScript(t, fake, "3")
	if !strings.Contains(out, "(none)") {
		t.Fatalf("expected empty list in output:\n%s", out)
	}
}

func TestMenuHeaderTracksListState(t *testing.T) {
	testlog.Start(t)
	fake := fakebackend.New(t)
	fake.SetCollection("bucket", `[{"node_uid":"u1","node_name":"temp1","node_val":"0","node_rw_direction":"r"}]`)

	out := runScript(t, fake,
		"3", // data nodes
		"5", // refresh
		"8",
	)
	for _, want := range []string{"data nodes: not loaded", "data nodes: 1 loaded (rev 0)", "data nodes: 1 loaded (rev 1)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if hits := fake.Hits(fakebackend.RouteList); hits != 2 {
		t.Fatalf("expected two list fetches, got %d", hits)
	}
}
