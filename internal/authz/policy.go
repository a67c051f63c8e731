package authz

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/aussiebroadwan/busfare/internal/session"
	"gopkg.in/yaml.v3"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// Policy is the page access table: which paths each role may open, where
// each role lands, and which paths need no session at all.
type Policy struct {
	LoginPath string
	Public    []string
	Roles     map[session.Role]RoleRule
}

// RoleRule is one role's slice of the policy. Home is always permitted to
// the role even when Paths doesn't list it.
type RoleRule struct {
	Home  string   `yaml:"home"`
	Paths []string `yaml:"paths"`
}

type policyFile struct {
	Login  string              `yaml:"login"`
	Public []string            `yaml:"public"`
	Roles  map[string]RoleRule `yaml:"roles"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() *Policy {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("authz: built-in policy is invalid: %v", err))
	}
	return p
}

// LoadPolicy reads a YAML policy from disk. An empty filename yields the
// built-in policy.
func LoadPolicy(filename string) (*Policy, error) {
	if filename == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	p, err := ParsePolicy(data)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", filename, err)
	}
	return p, nil
}

// ParsePolicy decodes and normalises a YAML policy. Role names go through
// session.ParseRole, so aliases are accepted. Structural mistakes are
// reported here; overlaps between roles are left to Validate.
func ParsePolicy(data []byte) (*Policy, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var raw policyFile
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}

	p := &Policy{
		LoginPath: raw.Login,
		Roles:     make(map[session.Role]RoleRule, len(raw.Roles)),
	}
	if p.LoginPath == "" {
		p.LoginPath = session.DefaultLoginPath
	}
	p.LoginPath = NormalizePath(p.LoginPath)

	for _, pub := range raw.Public {
		p.Public = append(p.Public, NormalizePath(pub))
	}

	for name, rule := range raw.Roles {
		role, ok := session.ParseRole(name)
		if !ok {
			return nil, fmt.Errorf("unknown role %q", name)
		}
		if _, dup := p.Roles[role]; dup {
			return nil, fmt.Errorf("role %q listed twice", role)
		}

		norm := RoleRule{Paths: make([]string, 0, len(rule.Paths))}
		if rule.Home != "" {
			norm.Home = NormalizePath(rule.Home)
		}
		for _, rp := range rule.Paths {
			norm.Paths = append(norm.Paths, NormalizePath(rp))
		}
		p.Roles[role] = norm
	}

	return p, nil
}

// Validate reports every problem that would make Authorize ambiguous or
// unable to redirect: roles without a home, a login path that isn't public,
// and paths granted to more than one role.
func (p *Policy) Validate() error {
	var errs []error

	if !p.IsPublic(p.LoginPath) {
		errs = append(errs, fmt.Errorf("login path %s is not public", p.LoginPath))
	}

	roles := p.SortedRoles()
	for _, role := range roles {
		if p.Roles[role].Home == "" {
			errs = append(errs, fmt.Errorf("role %s has no home", role))
		}
	}

	for i, a := range roles {
		for _, b := range roles[i+1:] {
			for _, pa := range p.Roles[a].grants() {
				for _, pb := range p.Roles[b].grants() {
					if matchPrefix(pa, pb) || matchPrefix(pb, pa) {
						errs = append(errs, fmt.Errorf("%s (%s) overlaps %s (%s)", pa, a, pb, b))
					}
				}
			}
		}
	}

	return errors.Join(errs...)
}

// IsPublic reports whether the normalised path needs no session.
func (p *Policy) IsPublic(normalized string) bool {
	for _, pub := range p.Public {
		if matchPrefix(pub, normalized) {
			return true
		}
	}
	return false
}

// Home returns the landing path of role, or "" if the policy doesn't know it.
func (p *Policy) Home(role session.Role) string {
	return p.Roles[role].Home
}

// rolesFor lists every role whose grants cover the normalised path.
func (p *Policy) rolesFor(normalized string) []session.Role {
	var out []session.Role
	for _, role := range p.SortedRoles() {
		for _, g := range p.Roles[role].grants() {
			if matchPrefix(g, normalized) {
				out = append(out, role)
				break
			}
		}
	}
	return out
}

// SortedRoles lists the roles the policy knows, in name order.
func (p *Policy) SortedRoles() []session.Role {
	roles := make([]session.Role, 0, len(p.Roles))
	for r := range p.Roles {
		roles = append(roles, r)
	}
	slices.Sort(roles)
	return roles
}

func (r RoleRule) grants() []string {
	if r.Home == "" || slices.Contains(r.Paths, r.Home) {
		return r.Paths
	}
	return append(slices.Clone(r.Paths), r.Home)
}

// NormalizePath strips any query or fragment, cleans the path and makes it
// absolute. The empty string becomes "/".
func NormalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// matchPrefix reports whether prefix grants target. Matching is by whole
// segments, and the root only matches itself.
func matchPrefix(prefix, target string) bool {
	if prefix == "/" {
		return target == "/"
	}
	return target == prefix || strings.HasPrefix(target, prefix+"/")
}
