package audit

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/darmiel/warrant/internal/config"
	"github.com/darmiel/warrant/internal/core"
)

// New creates the auditor selected in the configuration.
func New(cfg config.AuditConfig) (core.Auditor, error) {
	switch cfg.Type {
	case "file":
		var opts FileOptions
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &opts,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create decoder for file auditor: %w", err)
		}
		if err := decoder.Decode(cfg.Config); err != nil {
			return nil, fmt.Errorf("failed to decode config for file auditor: %w", err)
		}
		return NewFileAuditor(opts)
	case "memory", "":
		return NewInMemoryAuditor(), nil
	default:
		return nil, fmt.Errorf("unknown audit type '%s'", cfg.Type)
	}
}
