package core

import (
	"context"
	"fmt"

	"koyomi/internal/config"
	"koyomi/pkg/logx"
)

type PluginManager struct {
	log  logx.Logger
	cfgm *config.Manager
	deps PluginDeps
	cmdm *CommandManager

	plugins []Plugin
	started []Plugin
}

func NewPluginManager(log logx.Logger, cfgm *config.Manager, deps PluginDeps, cmdm *CommandManager) *PluginManager {
	return &PluginManager{log: log, cfgm: cfgm, deps: deps, cmdm: cmdm}
}

func (pm *PluginManager) Register(ps ...Plugin) {
	pm.plugins = append(pm.plugins, ps...)
}

// InitAll initializes every plugin, feeds each its raw config block, and
// publishes the aggregated command registry.
func (pm *PluginManager) InitAll(ctx context.Context) error {
	cfg := pm.cfgm.Get()
	var cmds []Command
	for _, p := range pm.plugins {
		deps := pm.deps
		deps.Logger = pm.deps.Logger.With(logx.String("plugin", p.Name()))
		if err := p.Init(ctx, deps); err != nil {
			return fmt.Errorf("plugin %s init: %w", p.Name(), err)
		}
		if cw, ok := p.(ConfigWatcher); ok {
			if err := cw.OnConfigChange(ctx, cfg.PluginRaw(p.Name())); err != nil {
				return fmt.Errorf("plugin %s config: %w", p.Name(), err)
			}
		}
		for _, c := range p.Commands() {
			c.PluginName = p.Name()
			cmds = append(cmds, c)
		}
	}
	pm.cmdm.SetRegistry(cmds)
	return nil
}

func (pm *PluginManager) StartAll(ctx context.Context) error {
	for _, p := range pm.plugins {
		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("plugin %s start: %w", p.Name(), err)
		}
		pm.started = append(pm.started, p)
		pm.log.Info("plugin started", logx.String("plugin", p.Name()))
	}
	return nil
}

// StopAll stops started plugins in reverse order. Errors are logged, not
// propagated; shutdown keeps going.
func (pm *PluginManager) StopAll(ctx context.Context) {
	for i := len(pm.started) - 1; i >= 0; i-- {
		p := pm.started[i]
		if err := p.Stop(ctx); err != nil {
			pm.log.Warn("plugin stop failed", logx.String("plugin", p.Name()), logx.Err(err))
		}
	}
	pm.started = nil
}

// ApplyConfig fans a reloaded config out to ConfigWatcher plugins.
func (pm *PluginManager) ApplyConfig(ctx context.Context, cfg *config.Config) {
	for _, p := range pm.plugins {
		cw, ok := p.(ConfigWatcher)
		if !ok {
			continue
		}
		if err := cw.OnConfigChange(ctx, cfg.PluginRaw(p.Name())); err != nil {
			pm.log.Warn("plugin config rejected", logx.String("plugin", p.Name()), logx.Err(err))
		}
	}
}
