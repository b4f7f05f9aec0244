// Package config loads server configuration from the environment.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type App struct {
	// Network
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	// DB
	DBPath string `envconfig:"DB_PATH" default:"booking.db"`
	// Lifecycle
	PaymentGraceWindow time.Duration `envconfig:"PAYMENT_GRACE_WINDOW" default:"24h"`
	// Sweeper
	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`
	SweepEnabled   bool          `envconfig:"SWEEP_ENABLED" default:"true"`
	SweepSubmitted bool          `envconfig:"SWEEP_SUBMITTED" default:"false"`
}

func Load() (App, error) {
	var c App
	err := envconfig.Process("", &c)
	return c, err
}
