package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; credential,
// model, and network changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AssistantChanged is true if any assistant loop tunable changed.
	// Applies to sessions created after the reload.
	AssistantChanged bool

	ServersChanged bool         // true if the MCP server list changed
	ServerChanges  []ServerDiff // per-server diffs
}

// ServerDiff describes what changed for a single MCP server between two configs.
type ServerDiff struct {
	Name     string
	Modified bool
	Added    bool
	Removed  bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Assistant != new.Assistant {
		d.AssistantChanged = true
	}

	// Build server lookup maps keyed by name.
	oldSrvs := make(map[string]*MCPServerConfig, len(old.MCP.Servers))
	for i := range old.MCP.Servers {
		oldSrvs[old.MCP.Servers[i].Name] = &old.MCP.Servers[i]
	}
	newSrvs := make(map[string]*MCPServerConfig, len(new.MCP.Servers))
	for i := range new.MCP.Servers {
		newSrvs[new.MCP.Servers[i].Name] = &new.MCP.Servers[i]
	}

	// Detect modified and removed servers.
	for name, oldSrv := range oldSrvs {
		newSrv, exists := newSrvs[name]
		if !exists {
			d.ServerChanges = append(d.ServerChanges, ServerDiff{Name: name, Removed: true})
			d.ServersChanged = true
			continue
		}
		if !equalServer(oldSrv, newSrv) {
			d.ServerChanges = append(d.ServerChanges, ServerDiff{Name: name, Modified: true})
			d.ServersChanged = true
		}
	}

	// Detect added servers.
	for name := range newSrvs {
		if _, exists := oldSrvs[name]; !exists {
			d.ServerChanges = append(d.ServerChanges, ServerDiff{Name: name, Added: true})
			d.ServersChanged = true
		}
	}

	return d
}

// equalServer compares two server configs with the same name. Env is compared
// by content because maps are not comparable.
func equalServer(old, new *MCPServerConfig) bool {
	if old.Transport != new.Transport || old.Command != new.Command || old.URL != new.URL {
		return false
	}
	if len(old.Env) != len(new.Env) {
		return false
	}
	for k, v := range old.Env {
		if new.Env[k] != v {
			return false
		}
	}
	return true
}
