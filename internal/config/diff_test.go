package config

import "testing"

func baseConfig() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Assistant: AssistantConfig{
			MaxIterations: 5,
			Temperature:   0.2,
		},
		MCP: MCPConfig{Servers: []MCPServerConfig{
			{Name: "extra", Transport: "stdio", Command: "/bin/extra-mcp"},
		}},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	d := Diff(old, new)
	if d.LogLevelChanged || d.AssistantChanged || d.ServersChanged {
		t.Errorf("Diff of identical configs = %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = LogDebug

	d := Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
		t.Errorf("Diff = %+v, want log level change to debug", d)
	}
}

func TestDiff_AssistantTunables(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	new.Assistant.Temperature = 0.7

	if d := Diff(old, new); !d.AssistantChanged {
		t.Errorf("Diff = %+v, want AssistantChanged", d)
	}
}

func TestDiff_Servers(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	new.MCP.Servers[0].Command = "/bin/extra-mcp --verbose"
	new.MCP.Servers = append(new.MCP.Servers, MCPServerConfig{
		Name: "remote", Transport: "streamable-http", URL: "https://mcp.example.com/mcp",
	})

	d := Diff(old, new)
	if !d.ServersChanged {
		t.Fatalf("Diff = %+v, want ServersChanged", d)
	}
	got := map[string]ServerDiff{}
	for _, sd := range d.ServerChanges {
		got[sd.Name] = sd
	}
	if !got["extra"].Modified {
		t.Errorf("extra = %+v, want Modified", got["extra"])
	}
	if !got["remote"].Added {
		t.Errorf("remote = %+v, want Added", got["remote"])
	}
}

func TestDiff_ServerRemovedAndEnvChange(t *testing.T) {
	old, new := baseConfig(), baseConfig()
	old.MCP.Servers[0].Env = map[string]string{"TOKEN": "a"}
	new.MCP.Servers[0].Env = map[string]string{"TOKEN": "b"}

	d := Diff(old, new)
	if !d.ServersChanged || len(d.ServerChanges) != 1 || !d.ServerChanges[0].Modified {
		t.Errorf("Diff = %+v, want env change detected as Modified", d)
	}

	new.MCP.Servers = nil
	d = Diff(old, new)
	if !d.ServersChanged || len(d.ServerChanges) != 1 || !d.ServerChanges[0].Removed {
		t.Errorf("Diff = %+v, want Removed", d)
	}
}
