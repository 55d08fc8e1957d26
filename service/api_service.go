package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/mpn-executor/api"
	"github.com/vocdoni/mpn-executor/log"
	"github.com/vocdoni/mpn-executor/storage"
)

// shutdownTimeout bounds the graceful shutdown of the API server.
const shutdownTimeout = 5 * time.Second

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	storage *storage.Storage
	info    *api.ExecutorInfo
	api     *api.API
	mu      sync.Mutex
	host    string
	port    int
}

// NewAPI creates a new APIService instance. The storage is optional and is
// not closed by the service.
func NewAPI(storage *storage.Storage, info *api.ExecutorInfo, host string, port int) *APIService {
	return &APIService{
		storage: storage,
		info:    info,
		host:    host,
		port:    port,
	}
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api != nil {
		return fmt.Errorf("service already running")
	}

	var err error
	as.api, err = api.New(&api.APIConfig{
		Host:    as.host,
		Port:    as.port,
		Storage: as.storage,
		Info:    as.info,
	})
	if err != nil {
		as.api = nil
		return fmt.Errorf("failed to start API server: %w", err)
	}
	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := as.api.Close(ctx); err != nil {
		log.Warnw("API server shutdown", "error", err)
	}
	as.api = nil
}

// HostPort returns the host and port of the API server.
func (as *APIService) HostPort() (string, int) {
	return as.host, as.port
}

// Addr returns the address the running server listens on, or an empty string
// if it is stopped.
func (as *APIService) Addr() string {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.api == nil {
		return ""
	}
	return as.api.Addr()
}
