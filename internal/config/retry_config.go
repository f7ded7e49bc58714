package config

import "time"

// MailRetryConfig controls redelivery of notification emails by the notifier.
type MailRetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// GetMailRetryConfig returns the mail redelivery policy for the current environment.
func (c Config) GetMailRetryConfig() MailRetryConfig {
	if c.IsTest() {
		return MailRetryConfig{MaxRetries: c.MailMaxRetries, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	}
	return MailRetryConfig{MaxRetries: c.MailMaxRetries, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second, Multiplier: 2}
}
