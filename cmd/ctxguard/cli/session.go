package cli

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ctxguard/ctxguard/internal/paths"
)

// resolveSession turns a session argument into an absolute transcript
// file path. arg may be the literal "current" (or empty), a file path
// that exists on disk, a full session UUID, or a unique UUID prefix — the
// same four forms every session-taking subcommand accepts.
func resolveSession(arg string) (string, error) {
	if arg == "" || arg == "current" {
		return resolveCurrentSession()
	}

	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return arg, nil
	}

	return resolveByIDOrPrefix(arg)
}

// baseSessionID extracts the bare session id from a resolved transcript
// path (or returns the argument unchanged if it's already bare).
func baseSessionID(sessionPathOrID string) string {
	return paths.ExtractSessionIDFromTranscriptPath(sessionPathOrID)
}

func resolveCurrentSession() (string, error) {
	sessionID, err := paths.ReadCurrentSession()
	if err != nil {
		return "", err
	}
	if sessionID == "" {
		return "", sessionNotFound("%v", paths.ErrNoCurrentSession)
	}
	return resolveByIDOrPrefix(sessionID)
}

// resolveByIDOrPrefix searches the host agent's session directory for a
// transcript whose base name (sans .jsonl) equals id, or — when no exact
// match exists — is uniquely prefixed by id.
func resolveByIDOrPrefix(id string) (string, error) {
	root, err := paths.ProjectRoot()
	if err != nil {
		root = "."
	}
	sessionsDir, err := paths.HostAgentSessionsDir(root)
	if err != nil {
		return "", sessionNotFound("resolving session directory: %v", err)
	}

	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		return "", sessionNotFound("session %q not found: %v", id, err)
	}

	var exact string
	var prefixMatches []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".jsonl")
		switch {
		case base == id:
			exact = filepath.Join(sessionsDir, e.Name())
		case strings.HasPrefix(base, id):
			prefixMatches = append(prefixMatches, filepath.Join(sessionsDir, e.Name()))
		}
	}

	if exact != "" {
		return exact, nil
	}
	sort.Strings(prefixMatches)
	switch len(prefixMatches) {
	case 0:
		return "", sessionNotFound("no session matching %q under %s", id, sessionsDir)
	case 1:
		return prefixMatches[0], nil
	default:
		return "", badArgument("session prefix %q matches %d sessions; use a longer prefix", id, len(prefixMatches))
	}
}
