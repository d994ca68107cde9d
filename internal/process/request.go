package process

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
)

// ScanType selects how a Request describes the command to run.
type ScanType string

const (
	ScanSimple ScanType = "simple"
	ScanManual ScanType = "manual"
)

// Request is the start-scan payload as received from a client. It is either a
// simple scan (target plus one tool flag) or a manual command line.
type Request struct {
	ScanType ScanType `json:"scan_type"`
	Target   string   `json:"target,omitempty"`
	Flag     string   `json:"flag,omitempty"`
	Command  string   `json:"command,omitempty"`
}

// CommandSpec is a validated command line ready to be launched.
type CommandSpec struct {
	Args   []string `json:"args"`
	Target string   `json:"target"`
}

// CommandSpec validates the request against scriptPath and converts it.
func (r Request) CommandSpec(scriptPath string) (CommandSpec, error) {
	switch r.ScanType {
	case ScanSimple:
		target := strings.TrimSpace(r.Target)
		if target == "" {
			return CommandSpec{}, invalidCommand("Target domain is required.")
		}
		flag := strings.TrimSpace(r.Flag)
		if flag == "" {
			return CommandSpec{}, invalidCommand("A scan type must be selected.")
		}
		return CommandSpec{Args: []string{scriptPath, "-d", target, flag}, Target: target}, nil
	case ScanManual:
		return ParseManual(r.Command, scriptPath)
	default:
		return CommandSpec{}, invalidCommand("Invalid scan type.")
	}
}

// ParseManual tokenizes a manual command line with shell quoting rules. The first
// token must be scriptPath and the line must contain a "-d <target>" pair.
func ParseManual(line, scriptPath string) (CommandSpec, error) {
	if strings.TrimSpace(line) == "" {
		return CommandSpec{}, invalidCommand("Manual command is empty.")
	}
	args, err := shlex.Split(line)
	if err != nil {
		return CommandSpec{}, invalidCommand(fmt.Sprintf("Manual command could not be parsed: %v", err))
	}
	spec := CommandSpec{Args: args}
	if err := spec.Validate(scriptPath); err != nil {
		return CommandSpec{}, err
	}
	spec.Target = targetArg(args)
	return spec, nil
}

// Validate checks the invariants every launched command must satisfy.
func (c CommandSpec) Validate(scriptPath string) error {
	if len(c.Args) == 0 || c.Args[0] != scriptPath {
		return invalidCommand(fmt.Sprintf("Manual command must start with '%s'.", scriptPath))
	}
	if targetArg(c.Args) == "" {
		return invalidCommand("Manual command must include a '-d <domain>'.")
	}
	return nil
}

// targetArg returns the value following the first "-d", or "".
func targetArg(args []string) string {
	for i, a := range args {
		if a == "-d" {
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		}
	}
	return ""
}

// SafeTarget reduces a user-supplied target to a single path element that is
// safe to use as a directory name.
func SafeTarget(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "\\", "/")
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	if s == "" || s == "." || s == ".." || strings.ContainsRune(s, 0) {
		return "", invalidCommand(fmt.Sprintf("invalid target %q", raw))
	}
	return s, nil
}

// OutputDir returns the output directory for target under root, and verifies
// that it resolves strictly inside root.
func OutputDir(root, target string) (string, error) {
	name, err := SafeTarget(target)
	if err != nil {
		return "", err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(absRoot, name)
	rel, err := filepath.Rel(absRoot, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", invalidCommand(fmt.Sprintf("invalid target %q", target))
	}
	return dir, nil
}
