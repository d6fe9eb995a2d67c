package gpioline

import (
	"path/filepath"

	"github.com/warthog618/go-gpiocdev"
)

const (
	DEFAULT_CONSUMER  = "virtualdevices"
	DEFAULT_CHIP_GLOB = "/dev/gpiochip*"
)

// CdevOpener requests lines through the GPIO character device, driven low.
func CdevOpener(consumer string) Opener {
	return func(key LineKey) (Line, error) {
		l, err := gpiocdev.RequestLine(key.Chip, key.Offset,
			gpiocdev.AsOutput(0),
			gpiocdev.WithConsumer(consumer))
		if err != nil {
			return nil, err
		}
		return l, nil
	}
}

// Chips lists the character devices matching pattern, sorted.
func Chips(pattern string) []string {
	if pattern == "" {
		pattern = DEFAULT_CHIP_GLOB
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	return matches
}
