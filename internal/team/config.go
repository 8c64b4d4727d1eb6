package team

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the on-disk team configuration at <teams-root>/<team>/config.json.
// It is authoritative for team name, lead agent id, lead session id, and
// per-member model/working-directory/role. ctxguard only reads this file,
// never writes it.
type Config struct {
	TeamName      string                  `json:"team_name"`
	LeadAgentID   string                  `json:"lead_agent_id"`
	LeadSessionID string                  `json:"lead_session_id"`
	Members       map[string]ConfigMember `json:"members"`
}

// ConfigMember is one team member's static configuration.
type ConfigMember struct {
	Model            string `json:"model"`
	WorkingDirectory string `json:"working_directory"`
	Role             string `json:"role"`
}

// TeamsRootDir is the directory, relative to the project root, config.json
// files are read from.
const TeamsRootDir = "teams"

// LoadConfig reads <teamsRoot>/<teamName>/config.json. Returns
// (nil, nil) if the file does not exist — the extractor falls back to
// transcript-only state in that case, since not every transcript belongs
// to a configured team.
func LoadConfig(teamsRoot, teamName string) (*Config, error) {
	path := filepath.Join(teamsRoot, teamName, "config.json")
	data, err := os.ReadFile(path) //nolint:gosec // path is built from a validated team name
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil //nolint:nilnil // absent config is an expected, non-error case
		}
		return nil, fmt.Errorf("reading team config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing team config %s: %w", path, err)
	}
	return &cfg, nil
}

// Merge overlays cfg's config-authoritative fields onto state: the
// transcript stays authoritative for sub-agent runtime state, the task
// list, and coordination indices; the
// config file is authoritative for team identity and per-member
// model/workdir/role. A nil cfg leaves state unchanged.
func Merge(state TeamState, cfg *Config) TeamState {
	if cfg == nil {
		return state
	}

	state.TeamName = cfg.TeamName
	state.LeadAgentID = cfg.LeadAgentID
	state.LeadSessionID = cfg.LeadSessionID

	for agentID, member := range cfg.Members {
		sub, ok := state.SubAgents[agentID]
		if !ok {
			sub = &SubAgent{AgentID: agentID, Status: "configured"}
			state.SubAgents[agentID] = sub
		}
		sub.Model = member.Model
		sub.WorkingDirectory = member.WorkingDirectory
		sub.Role = member.Role
	}

	return state
}
