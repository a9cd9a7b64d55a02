package veo

import (
	"time"

	"veo-studio-server/modules/common/config"
)

type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// LoadConfig - 공통 설정에서 Veo 설정 추출
func LoadConfig(cfg *config.Config) Config {
	c := Config{
		PollInterval: cfg.VeoPollInterval,
		Timeout:      cfg.VeoTimeout,
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	return c
}
