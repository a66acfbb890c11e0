package domain

import "context"

// Channel is a display surface that serves previews (web UI, acme window).
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}
