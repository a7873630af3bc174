// Package command models remote driver commands and the per-dialect
// registries that map a command name to an HTTP verb and URL template.
package command

import (
	"fmt"
	"maps"
	"net/url"
	"strings"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/remoteerr"
)

// Command is one logical protocol operation, independent of dialect.
type Command struct {
	SessionID  string
	Name       string
	Parameters map[string]any
}

// New creates a command for the given session.
func New(sessionID, name string, params map[string]any) *Command {
	return &Command{SessionID: sessionID, Name: name, Parameters: params}
}

// Info describes how a command travels over HTTP.
type Info struct {
	Method      string
	URLTemplate string
}

// Dialect is one of the two wire-protocol variants.
type Dialect int

const (
	DialectLegacy Dialect = iota + 1
	DialectW3C
)

func (d Dialect) String() string {
	switch d {
	case DialectLegacy:
		return "legacy"
	case DialectW3C:
		return "w3c"
	}
	return "unknown"
}

// ParseDialect is the inverse of Dialect.String.
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "legacy":
		return DialectLegacy, nil
	case "w3c":
		return DialectW3C, nil
	}
	return 0, fmt.Errorf("unknown dialect %q", s)
}

// Request is a command resolved against a registry.
type Request struct {
	Method string
	Path   string
	// Body holds the parameters left after template substitution.
	Body map[string]any
}

// Registry is an immutable command-name → Info table for one dialect.
type Registry struct {
	dialect  Dialect
	commands map[string]Info
}

func newRegistry(d Dialect, commands map[string]Info) *Registry {
	return &Registry{dialect: d, commands: commands}
}

// Dialect returns the dialect this registry speaks.
func (r *Registry) Dialect() Dialect {
	return r.dialect
}

// Lookup returns the Info registered for name.
func (r *Registry) Lookup(name string) (Info, bool) {
	info, ok := r.commands[name]
	return info, ok
}

// Has reports whether the registry knows name.
func (r *Registry) Has(name string) bool {
	_, ok := r.commands[name]
	return ok
}

// Names returns every registered command name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	return names
}

// Resolve builds the request for cmd. Template tokens other than
// {sessionId} are consumed from the parameters, so a value used in the path
// is never sent again in the body. cmd.Parameters is left untouched.
func (r *Registry) Resolve(cmd *Command) (*Request, error) {
	info, ok := r.commands[cmd.Name]
	if !ok {
		return nil, remoteerr.Protocol(remoteerr.ReasonUnknownCommand, cmd.Name,
			"command is not defined for the %s dialect", r.dialect)
	}

	body := make(map[string]any, len(cmd.Parameters))
	maps.Copy(body, cmd.Parameters)

	var path strings.Builder
	template := info.URLTemplate
	for {
		start := strings.IndexByte(template, '{')
		if start < 0 {
			path.WriteString(template)
			break
		}
		end := strings.IndexByte(template[start:], '}')
		if end < 0 {
			return nil, remoteerr.Protocol(remoteerr.ReasonMissingParameter, cmd.Name,
				"unterminated token in template %q", info.URLTemplate)
		}
		end += start

		path.WriteString(template[:start])
		token := template[start+1 : end]

		value, err := tokenValue(cmd, token, body)
		if err != nil {
			return nil, err
		}
		path.WriteString(url.PathEscape(value))
		template = template[end+1:]
	}

	return &Request{Method: info.Method, Path: path.String(), Body: body}, nil
}

func tokenValue(cmd *Command, token string, body map[string]any) (string, error) {
	// The session id is driver state, never a parameter.
	if token == "sessionId" {
		if cmd.SessionID == "" {
			return "", remoteerr.Protocol(remoteerr.ReasonMissingParameter, cmd.Name,
				"no session id for command")
		}
		return cmd.SessionID, nil
	}

	raw, ok := body[token]
	if !ok || raw == nil {
		return "", remoteerr.Protocol(remoteerr.ReasonMissingParameter, cmd.Name,
			"missing required parameter %q", token)
	}
	delete(body, token)

	value := fmt.Sprint(raw)
	if value == "" {
		return "", remoteerr.Protocol(remoteerr.ReasonMissingParameter, cmd.Name,
			"empty value for parameter %q", token)
	}
	return value, nil
}

// Match reverses Resolve for a concrete request: it finds the command whose
// verb and template fit method and path and returns the extracted tokens.
func (r *Registry) Match(method, path string) (string, map[string]string, bool) {
	var (
		best       string
		bestTokens map[string]string
		found      bool
	)
	// Literal segments win over tokens, so prefer the match with fewest tokens.
	for name, info := range r.commands {
		if info.Method != method {
			continue
		}
		tokens, ok := matchTemplate(info.URLTemplate, path)
		if !ok {
			continue
		}
		if !found || len(tokens) < len(bestTokens) || (len(tokens) == len(bestTokens) && name < best) {
			best, bestTokens, found = name, tokens, true
		}
	}
	return best, bestTokens, found
}

func matchTemplate(template, path string) (map[string]string, bool) {
	want := strings.Split(strings.Trim(template, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return nil, false
	}

	tokens := make(map[string]string)
	for i, segment := range want {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			value, err := url.PathUnescape(got[i])
			if err != nil {
				return nil, false
			}
			tokens[segment[1:len(segment)-1]] = value
			continue
		}
		if segment != got[i] {
			return nil, false
		}
	}
	return tokens, true
}
