package storage

import (
	"context"
	"errors"
	"strings"

	logx "furlat/pkg/logx"
)

// Store is the persistence API used by the result sink.
type Store interface {
	BeginRun(ctx context.Context, r Run) error
	SaveBatch(ctx context.Context, b Batch) error
	// URLs lists every stored URL in insertion order.
	URLs(ctx context.Context) ([]string, error)
	Close() error
}

// Open initializes the configured store. It returns (nil, nil) when storage
// is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// DomainDir keeps only ASCII letters and digits of domain.
func DomainDir(domain string) string {
	var b strings.Builder
	for _, r := range domain {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
