package controller

import (
	"time"

	"github.com/c2h5oh/datasize"
)

// Config describes how to reach the OpenDaylight RESTCONF API.
type Config struct {
	// Endpoint is the base URL of the controller, e.g.
	// "http://localhost:8181".
	Endpoint string `yaml:"endpoint"`
	// Username and Password are sent as HTTP basic credentials when
	// Username is not empty.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Timeout bounds a single request.
	Timeout time.Duration `yaml:"timeout"`
	// MaxResponseSize caps how much of a response body is read.
	MaxResponseSize datasize.ByteSize `yaml:"max_response_size"`
}

// DefaultConfig returns the configuration of a stock local OpenDaylight.
func DefaultConfig() Config {
	return Config{
		Endpoint:        "http://localhost:8181",
		Username:        "admin",
		Password:        "admin",
		Timeout:         5 * time.Second,
		MaxResponseSize: 64 * datasize.KB,
	}
}
