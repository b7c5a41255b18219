package config

import (
	"time"

	"leasesim/pkg/lease"
)

type Config struct {
	Servers []ServerConfig `yaml:"servers"`
	Clients []ClientConfig `yaml:"clients"`
	HTTP    HTTPConfig     `yaml:"http"`
	NATS    NATSConfig     `yaml:"nats"`
}

type ServerConfig struct {
	Name       string        `yaml:"name"`
	OwnIP      string        `yaml:"own_ip"`
	Range      lease.Range   `yaml:"range"`
	LeaseTime  time.Duration `yaml:"lease_time"`
	SubnetMask string        `yaml:"subnet_mask"`
}

type ClientConfig struct {
	Name        string        `yaml:"name"`
	CheckPeriod time.Duration `yaml:"check_period"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	Stream        string `yaml:"stream"`
}
