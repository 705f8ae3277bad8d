package config

import "strings"

// EnvVar is a single environment assignment.
type EnvVar struct {
	Name  string `json:"name" yaml:"name" validate:"required,excludesall=="`
	Value string `json:"value" yaml:"value"`
}

// Environment is an ordered list of assignments. Later entries win on conflict.
// Methods never modify the receiver.
type Environment []EnvVar

// Overlay returns a new environment with each layer applied on top of e in order.
// Every name appears once, at the position of its first occurrence, carrying the
// value of its last occurrence.
func (e Environment) Overlay(layers ...Environment) Environment {
	size := len(e)
	for _, layer := range layers {
		size += len(layer)
	}

	out := make(Environment, 0, size)
	index := make(map[string]int, size)
	add := func(v EnvVar) {
		if i, ok := index[v.Name]; ok {
			out[i].Value = v.Value
			return
		}
		index[v.Name] = len(out)
		out = append(out, v)
	}

	for _, v := range e {
		add(v)
	}
	for _, layer := range layers {
		for _, v := range layer {
			add(v)
		}
	}
	return out
}

// Lookup returns the effective value of name.
func (e Environment) Lookup(name string) (string, bool) {
	for i := len(e) - 1; i >= 0; i-- {
		if e[i].Name == name {
			return e[i].Value, true
		}
	}
	return "", false
}

// Strings renders the environment as NAME=value pairs suitable for os/exec.
func (e Environment) Strings() []string {
	out := make([]string, 0, len(e))
	for _, v := range e {
		out = append(out, v.Name+"="+v.Value)
	}
	return out
}

// ParseEnvironment converts NAME=value pairs into an Environment.
// Entries without '=' are skipped.
func ParseEnvironment(pairs []string) Environment {
	out := make(Environment, 0, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			continue
		}
		out = append(out, EnvVar{Name: name, Value: value})
	}
	return out
}
