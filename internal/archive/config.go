package archive

import "time"

const defaultTimeout = 30 * time.Second

// Config holds S3-compatible storage settings for result bundles.
type Config struct {
	Endpoint  string        `yaml:"endpoint"`
	AccessKey string        `yaml:"accessKey"`
	SecretKey string        `yaml:"secretKey"`
	UseSSL    bool          `yaml:"useSSL"`
	Bucket    string        `yaml:"bucket"`
	Prefix    string        `yaml:"prefix"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Enabled reports whether an upload target is configured.
func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}
