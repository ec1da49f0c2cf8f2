package schema

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *ChatConfig {
	config := DefaultChatConfig()
	config.Identity.PeerID = "QmPeer"
	config.Identity.Handle = "tester"
	return config
}

func TestChatConfigValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatal(err)
	}

	examples := []struct {
		mutate      func(*ChatConfig)
		expectedErr string
	}{
		{func(c *ChatConfig) { c.Gateway.URL = "ftp://gateway" }, "malformed config: Gateway.URL"},
		{func(c *ChatConfig) { c.Gateway.URL = "" }, "malformed config: Gateway.URL"},
		{func(c *ChatConfig) { c.Socket.Host = "" }, "malformed config: Socket.Host"},
		{func(c *ChatConfig) { c.Socket.Port = 0 }, "malformed config: Socket.Port"},
		{func(c *ChatConfig) { c.Socket.Port = 70000 }, "malformed config: Socket.Port"},
		{func(c *ChatConfig) { c.Identity.PeerID = "" }, "malformed config: Identity.PeerID"},
		{func(c *ChatConfig) { c.Proxy = "localhost" }, "malformed config: Proxy"},
	}
	for _, e := range examples {
		config := validConfig()
		e.mutate(config)
		err := config.Validate()
		if err == nil {
			t.Errorf("Expected error %q got nil", e.expectedErr)
			continue
		}
		if err.Error() != e.expectedErr {
			t.Errorf("Expected error %q got %q", e.expectedErr, err.Error())
		}
	}
}

func TestLoadChatConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.json")
	raw := `{
		"Gateway": {"URL": "https://gateway.example.com/api/v1", "AuthToken": "secret"},
		"Socket": {"Host": "gateway.example.com", "Port": 443, "Secure": true},
		"Identity": {"PeerID": "QmPeer", "Handle": "tester"},
		"Proxy": "127.0.0.1:9150",
		"LogLevel": "debug"
	}`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadChatConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if config.Gateway.URL != "https://gateway.example.com/api/v1" {
		t.Errorf("Unexpected gateway url %s", config.Gateway.URL)
	}
	if config.Gateway.AuthToken != "secret" {
		t.Errorf("Unexpected auth token %s", config.Gateway.AuthToken)
	}
	if !config.Socket.Secure || config.Socket.Port != 443 {
		t.Errorf("Unexpected socket config %+v", config.Socket)
	}
	if config.Proxy != "127.0.0.1:9150" {
		t.Errorf("Unexpected proxy %s", config.Proxy)
	}
}

func TestLoadChatConfigAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.json")
	raw := `{"Identity": {"PeerID": "QmPeer"}}`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadChatConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if config.Gateway.URL != "http://localhost:4002/api/v1" {
		t.Errorf("Unexpected default gateway url %s", config.Gateway.URL)
	}
	if config.LogLevel != "info" {
		t.Errorf("Unexpected default log level %s", config.LogLevel)
	}
}

func TestLoadChatConfigErrors(t *testing.T) {
	if _, err := LoadChatConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "chat.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadChatConfig(path); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}
