package maintenance

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aaj441/aaronos-core/internal/domain"
)

const probeTimeout = 30 * time.Second

// ProbeHealth checks each external dependency and writes one health_checks
// row. The probe itself succeeds as long as the row is written; individual
// dependency failures only degrade the recorded status.
func (t *Tasks) ProbeHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	services := map[string]string{
		"database":   "connected",
		"generation": "connected",
		"browser":    "operational",
	}
	dbDown := false

	if err := t.platform.Ping(ctx); err != nil {
		services["database"] = err.Error()
		dbDown = true
	}
	if _, err := t.gen.Generate(ctx, "ping", 10); err != nil {
		services["generation"] = err.Error()
	}
	if b, err := t.newBrowser(); err != nil {
		services["browser"] = err.Error()
	} else {
		_ = b.Close()
	}

	status := "healthy"
	switch {
	case dbDown:
		status = "unhealthy"
	case services["generation"] != "connected" || services["browser"] != "operational":
		status = "degraded"
	}

	payload, _ := json.Marshal(services)
	check := &domain.HealthCheck{
		Status:    status,
		Services:  payload,
		CheckedAt: t.now().UTC(),
	}
	if err := t.platform.RecordHealthCheck(ctx, check); err != nil {
		return err
	}

	if status != "healthy" {
		t.logger.Warn("health probe recorded degradation",
			slog.String("status", status),
		)
	}
	return nil
}
