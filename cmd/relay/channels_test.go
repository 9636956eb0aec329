package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samvad-hq/channel-relay/internal/registry"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestChannelsAddPersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")

	if _, err := execute(t, "channels", "--file", path, "add", "--name", "Kicks", "--topic", "42", "--videos", "--no-price", "--", "-1001"); err != nil {
		t.Fatalf("add: %v", err)
	}

	reg, err := registry.Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c, ok := reg.Lookup("-1001")
	if !ok {
		t.Fatalf("channel not saved")
	}
	if c.ChannelName != "Kicks" || c.DestinationTopic != 42 || c.PriceEnabled() || !c.TextEnabled() {
		t.Fatalf("unexpected channel: %#v", c)
	}
	if !c.MediaTypes.Photos || !c.MediaTypes.Videos || c.MediaTypes.Documents {
		t.Fatalf("unexpected media types: %#v", c.MediaTypes)
	}
}

func TestChannelsAddReplacesAndListShowsChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	if _, err := execute(t, "channels", "--file", path, "add", "--name", "Old", "--", "-1001"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := execute(t, "channels", "--file", path, "add", "--name", "New", "--inactive", "--", "-1001"); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	out, err := execute(t, "channels", "--file", path, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "-1001") || !strings.Contains(out, "New") || strings.Contains(out, "Old") {
		t.Fatalf("list output:\n%s", out)
	}

	out, err = execute(t, "channels", "--file", path, "list", "--active")
	if err != nil {
		t.Fatalf("list --active: %v", err)
	}
	if strings.Contains(out, "-1001") {
		t.Fatalf("inactive channel listed with --active:\n%s", out)
	}
}

func TestChannelsRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	if _, err := execute(t, "channels", "--file", path, "add", "--", "-1001"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := execute(t, "channels", "--file", path, "remove", "--", "-1001"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := execute(t, "channels", "--file", path, "remove", "--", "-1001"); err == nil {
		t.Fatalf("expected error removing unknown channel")
	}

	reg, err := registry.Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := reg.Lookup("-1001"); ok {
		t.Fatalf("channel still present after remove")
	}
}
