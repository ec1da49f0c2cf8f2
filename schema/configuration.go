package schema

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

// ChatConfig is the on-disk client configuration. The gateway serves both
// the REST API and the socket.io endpoint; they are configured separately
// because deployments commonly front the REST side with a different host.
type ChatConfig struct {
	Gateway  GatewayConfig
	Socket   SocketConfig
	Identity IdentityConfig
	Proxy    string
	LogLevel string
}

type GatewayConfig struct {
	URL       string
	AuthToken string
}

type SocketConfig struct {
	Host   string
	Port   int
	Secure bool
}

// IdentityConfig names the local user. PeerID is the gateway-side identity
// every message and conversation references; Handle is only for display.
type IdentityConfig struct {
	PeerID string
	Handle string
}

type malformedConfigError struct {
	path []string
}

func malformedConfigKey(pathArgs ...string) malformedConfigError {
	return malformedConfigError{path: pathArgs}
}

func (err malformedConfigError) Error() string {
	if len(err.path) != 0 {
		return fmt.Sprintf("malformed config: %s", strings.Join(err.path, "."))
	}
	return "malformed config"
}

func DefaultChatConfig() *ChatConfig {
	return &ChatConfig{
		Gateway: GatewayConfig{
			URL: "http://localhost:4002/api/v1",
		},
		Socket: SocketConfig{
			Host: "localhost",
			Port: 4002,
		},
		LogLevel: "info",
	}
}

// LoadChatConfig reads the JSON configuration at path and validates it.
func LoadChatConfig(path string) (*ChatConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %s", path, err)
	}
	config := DefaultChatConfig()
	if err := json.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("parsing config %s: %s", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *ChatConfig) Validate() error {
	u, err := url.Parse(c.Gateway.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return malformedConfigKey("Gateway", "URL")
	}
	if c.Socket.Host == "" {
		return malformedConfigKey("Socket", "Host")
	}
	if c.Socket.Port <= 0 || c.Socket.Port > 65535 {
		return malformedConfigKey("Socket", "Port")
	}
	if c.Identity.PeerID == "" {
		return malformedConfigKey("Identity", "PeerID")
	}
	if c.Proxy != "" {
		if _, _, err := net.SplitHostPort(c.Proxy); err != nil {
			return malformedConfigKey("Proxy")
		}
	}
	return nil
}
