package backupctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by the lookups when no resource has the name.
var ErrNotFound = errors.New("not found")

// LoadDefinition reads a definition file. ${VAR} references are expanded
// from the environment so passwords can stay out of the file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	var def Definition
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &def); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	for i, c := range def.Connections {
		if c.Name == "" {
			return nil, fmt.Errorf("connection %d: name is required", i)
		}
	}
	return &def, nil
}

type namedResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FindConnectionByName returns the id of the connection called name.
func (c *Client) FindConnectionByName(ctx context.Context, name string) (string, error) {
	return c.findByName(ctx, "/connections?limit=100", name)
}

func (c *Client) findByName(ctx context.Context, path, name string) (string, error) {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return "", err
	}
	items, err := resp.Items()
	if err != nil {
		return "", fmt.Errorf("parse resources from %s: %w", path, err)
	}
	var resources []namedResource
	if err := json.Unmarshal(items, &resources); err != nil {
		return "", fmt.Errorf("parse resources from %s: %w", path, err)
	}
	for _, r := range resources {
		if r.Name == name {
			return r.ID, nil
		}
	}
	return "", fmt.Errorf("connection %q: %w", name, ErrNotFound)
}

// Apply creates the connections of def that do not exist yet and replaces
// the policy of every connection that declares one. Progress goes to out.
func (c *Client) Apply(ctx context.Context, def *Definition, out io.Writer) error {
	for _, cd := range def.Connections {
		id, created, err := c.findOrCreateConnection(ctx, cd)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(out, "Connection %q: %s (created)\n", cd.Name, id)
		} else {
			fmt.Fprintf(out, "Connection %q: %s\n", cd.Name, id)
		}

		if cd.Policy == nil {
			continue
		}
		if err := c.putPolicy(ctx, id, *cd.Policy); err != nil {
			return fmt.Errorf("connection %q: %w", cd.Name, err)
		}
		fmt.Fprintf(out, "  policy: %s\n", cd.Policy.Frequency)
	}
	return nil
}

func (c *Client) findOrCreateConnection(ctx context.Context, cd ConnectionDef) (string, bool, error) {
	id, err := c.FindConnectionByName(ctx, cd.Name)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", false, err
	}

	resp, err := c.Post(ctx, "/connections", map[string]any{
		"name":        cd.Name,
		"db_host":     cd.Host,
		"db_port":     cd.Port,
		"db_name":     cd.DBName,
		"db_user":     cd.User,
		"db_password": cd.Password,
		"db_ssl":      cd.SSLMode,
	})
	if err != nil {
		return "", false, fmt.Errorf("create connection %q: %w", cd.Name, err)
	}
	var r namedResource
	if err := resp.Decode(&r); err != nil {
		return "", false, err
	}
	return r.ID, true, nil
}

func (c *Client) putPolicy(ctx context.Context, connID string, p PolicyDef) error {
	enabled := true
	if p.Enabled != nil {
		enabled = *p.Enabled
	}
	_, err := c.Put(ctx, "/connections/"+pathEscape(connID)+"/policy", map[string]any{
		"enabled":       enabled,
		"frequency":     p.Frequency,
		"hour":          p.Hour,
		"dayOfWeek":     p.DayOfWeek,
		"dayOfMonth":    p.DayOfMonth,
		"keepLast":      p.KeepLast,
		"credential_id": p.CredentialID,
		"dump_options":  p.Dump.Options(),
	})
	if err != nil {
		return fmt.Errorf("put policy: %w", err)
	}
	return nil
}
