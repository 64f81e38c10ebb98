package serverapp

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Stop reasons reported by WaitForStop.
const (
	StopSignal      = "signal"
	StopServerError = "server_error"
)

// Start launches the HTTP server goroutine. It requires Init to have completed.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, errors.New("app is not initialized")
	}
	if !a.started {
		a.serverErrors = startServer(a.cfg, a.logger, a.srv, a.serverAddr)
		a.started = true
	}
	return a.serverErrors, nil
}

// Addr returns the listen address. It is empty before Init.
func (a *App) Addr() string {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.serverAddr
}

// WaitForStop blocks until a signal arrives on stop or the server reports an error.
// A nil serverErrors falls back to the channel returned by Start.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		serverErrors = a.serverErrors
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", errors.New("nothing to wait for: stop and serverErrors are both nil")
	}

	// Receiving from a nil channel blocks, so a missing source never wins the select.
	select {
	case err := <-serverErrors:
		if err == nil {
			err = errors.New("server stopped unexpectedly")
		}
		return StopServerError, fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		return StopSignal, nil
	}
}
