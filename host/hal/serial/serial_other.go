//go:build !linux

package serial

import (
	"context"
	"errors"
	"os"
)

func openPort(path string, baud int) (*os.File, error) {
	return nil, errors.ErrUnsupported
}

func waitPort(ctx context.Context, path string) error {
	return ctx.Err()
}
