package api

import (
	"context"
	"log"
	"time"

	"github.com/hellofresh/health-go/v5"
	"github.com/labstack/echo/v4"
)

type HealthChecker interface {
	HealthCheck() echo.HandlerFunc
}

type healthChecker struct {
	health *health.Health
}

func MustNewHealthChecker(version string, checks ...health.Config) HealthChecker {
	h, err := health.New(health.WithComponent(health.Component{Name: "maid", Version: version}))
	if err != nil {
		log.Fatal("failed to create health checker:", err)
	}

	for _, check := range checks {
		if err := h.Register(check); err != nil {
			log.Fatal("failed to register health check:", err)
		}
	}

	return &healthChecker{
		health: h,
	}
}

func (h *healthChecker) HealthCheck() echo.HandlerFunc {
	return echo.WrapHandler(h.health.Handler())
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// PostgresCheck reports the database as unavailable when a ping fails.
func PostgresCheck(p Pinger) health.Config {
	return health.Config{
		Name:      "postgres",
		Timeout:   2 * time.Second,
		SkipOnErr: false,
		Check:     p.Ping,
	}
}
