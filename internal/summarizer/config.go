package summarizer

import (
	"fmt"
	"log/slog"
	"strings"
)

// ProviderConfig holds the credentials and target of one backend. It is a
// value type; rotate credentials by building a new Gateway.
type ProviderConfig struct {
	APIKey   string
	Endpoint string
	Model    string
}

// Validate reports every blank field at once.
func (c ProviderConfig) Validate() error {
	var missing []string

	if strings.TrimSpace(c.APIKey) == "" {
		missing = append(missing, "API key")
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, "endpoint")
	}
	if strings.TrimSpace(c.Model) == "" {
		missing = append(missing, "model")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalidConfiguration, strings.Join(missing, ", "))
	}

	return nil
}

// LogValue keeps the API key out of logs.
func (c ProviderConfig) LogValue() slog.Value {
	key := "<empty>"
	if strings.TrimSpace(c.APIKey) != "" {
		key = "<redacted>"
	}

	return slog.GroupValue(
		slog.String("endpoint", c.Endpoint),
		slog.String("model", c.Model),
		slog.String("apiKey", key),
	)
}

// String keeps the API key out of fmt output as well.
func (c ProviderConfig) String() string {
	return fmt.Sprintf("{endpoint: %s, model: %s}", c.Endpoint, c.Model)
}

func (c ProviderConfig) normalized() ProviderConfig {
	return ProviderConfig{
		APIKey:   strings.TrimSpace(c.APIKey),
		Endpoint: strings.TrimRight(strings.TrimSpace(c.Endpoint), "/"),
		Model:    strings.TrimSpace(c.Model),
	}
}
