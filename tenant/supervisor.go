package tenant

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shiftflow/config"
	"shiftflow/directory"
	"shiftflow/notify"
)

// PortFactory builds the notification port for one tenant from its
// credential. The default factory returns the logging port, which makes a
// deployment without a real transport still fully observable.
type PortFactory func(cfg config.TenantConfig, log *zap.Logger) notify.Port

// Supervisor boots one runtime per configured tenant and keeps them
// isolated: a tenant with a placeholder credential is skipped, a tenant that
// panics is logged and retired, and neither touches its siblings.
type Supervisor struct {
	dsn      string
	tenants  []config.TenantConfig
	newPort  PortFactory
	log      *zap.Logger
	runtimes map[string]*Runtime
}

func NewSupervisor(dsn string, tenants []config.TenantConfig, newPort PortFactory, log *zap.Logger) *Supervisor {
	if newPort == nil {
		newPort = func(cfg config.TenantConfig, log *zap.Logger) notify.Port {
			return notify.NewLogPort(log)
		}
	}
	return &Supervisor{
		dsn:      dsn,
		tenants:  tenants,
		newPort:  newPort,
		log:      log,
		runtimes: make(map[string]*Runtime),
	}
}

// Start boots every eligible tenant runtime. A tenant that fails to boot is
// logged and skipped; Start fails only when no tenant could be booted at all.
func (s *Supervisor) Start(ctx context.Context) error {
	for _, cfg := range s.tenants {
		log := s.log.Named(cfg.Key)
		if cfg.CredentialUnset() {
			log.Warn("credential not configured, tenant skipped")
			continue
		}
		rt, err := NewRuntime(ctx, s.dsn, cfg, s.newPort(cfg, log), log)
		if err != nil {
			log.Error("tenant boot failed", zap.Error(err))
			continue
		}
		s.runtimes[cfg.Key] = rt
		log.Info("tenant started", zap.String("city", cfg.CityName))
	}
	if len(s.tenants) > 0 && len(s.runtimes) == 0 {
		return fmt.Errorf("tenant: no tenant could be started")
	}
	return nil
}

// Run drives all started runtimes until the context is cancelled, then
// closes their pools. A panic inside one tenant's jobs is recovered and
// retires only that tenant.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for key, rt := range s.runtimes {
		key, rt := key, rt
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					s.log.Error("tenant panicked", zap.String("tenant", key), zap.Any("panic", rec))
				}
			}()
			if err := rt.Run(gctx); err != nil && gctx.Err() == nil {
				s.log.Error("tenant stopped", zap.String("tenant", key), zap.Error(err))
			}
			return nil
		})
	}
	<-gctx.Done()
	err := g.Wait()
	for _, rt := range s.runtimes {
		rt.Close()
	}
	return err
}

// Runtime returns a started tenant's runtime by key.
func (s *Supervisor) Runtime(key string) (*Runtime, bool) {
	rt, ok := s.runtimes[key]
	return rt, ok
}

// Directory returns a started tenant's directory service by key.
func (s *Supervisor) Directory(key string) (*directory.Service, bool) {
	rt, ok := s.runtimes[key]
	if !ok {
		return nil, false
	}
	return rt.dir, true
}

// ReportsDir returns a started tenant's report directory by key.
func (s *Supervisor) ReportsDir(key string) (string, bool) {
	rt, ok := s.runtimes[key]
	if !ok {
		return "", false
	}
	return rt.cfg.ReportsDir, true
}

// Keys lists the started tenants.
func (s *Supervisor) Keys() []string {
	keys := make([]string, 0, len(s.runtimes))
	for key := range s.runtimes {
		keys = append(keys, key)
	}
	return keys
}
