package config

import (
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"
)

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
	Redis
	Memory
)

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case Redis:
		return "redis"
	case Memory:
		return "memory"
	}
	return "unknown"
}

func ParseStorageDriver(s string) (StorageDriver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "redis":
		return Redis, nil
	case "memory":
		return Memory, nil
	}
	return 0, fmt.Errorf("unknown storage driver %q", s)
}

func (d *StorageDriver) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseStorageDriver(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// SupportsCron reports whether the backend can hold recurring jobs on its own.
func (d StorageDriver) SupportsCron() bool {
	return d == Postgres || d == Memory
}
