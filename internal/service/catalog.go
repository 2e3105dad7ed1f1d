package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/CZERTAINLY/Brewer/internal/brew"
	"github.com/CZERTAINLY/Brewer/internal/model"
)

// Columns of the package table.
const (
	ColumnFormula = "formula"
	ColumnVersion = "version"
)

var (
	ErrNoSuchRow    = errors.New("no such row")
	ErrNoSuchColumn = errors.New("no such column")
)

// Catalog is the data source of the package table: the installed packages
// in the order the package manager lists them.
type Catalog struct {
	client *brew.Client

	mx        sync.RWMutex
	pkgs      []model.Package
	refreshed time.Time
}

func NewCatalog(client *brew.Client) *Catalog {
	return &Catalog{client: client}
}

// Refresh rebuilds the list by querying the package manager.
func (c *Catalog) Refresh(ctx context.Context) error {
	pkgs, err := c.client.Installed(ctx)
	if err != nil {
		return fmt.Errorf("refreshing installed packages: %w", err)
	}
	c.mx.Lock()
	c.pkgs = pkgs
	c.refreshed = time.Now().UTC()
	c.mx.Unlock()
	return nil
}

// Add installs a package and appends it to the list, or updates its version
// if it is listed already.
func (c *Catalog) Add(ctx context.Context, name string) (model.Package, error) {
	pkg, err := c.client.Install(ctx, name)
	if err != nil {
		return model.Package{}, err
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	if idx := c.indexLocked(name); idx >= 0 {
		c.pkgs[idx] = pkg
	} else {
		c.pkgs = append(c.pkgs, pkg)
	}
	return pkg, nil
}

// Remove uninstalls the package shown in row and drops it from the list.
func (c *Catalog) Remove(ctx context.Context, row int) (string, error) {
	c.mx.RLock()
	if row < 0 || row >= len(c.pkgs) {
		c.mx.RUnlock()
		return "", fmt.Errorf("%w: %d", ErrNoSuchRow, row)
	}
	name := c.pkgs[row].Name
	c.mx.RUnlock()
	return c.RemoveByName(ctx, name)
}

// RemoveByName uninstalls a package and drops it from the list.
func (c *Catalog) RemoveByName(ctx context.Context, name string) (string, error) {
	out, err := c.client.Remove(ctx, name)
	if err != nil {
		return out, err
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	if idx := c.indexLocked(name); idx >= 0 {
		c.pkgs = slices.Delete(c.pkgs, idx, idx+1)
	}
	return out, nil
}

// Update updates the package manager and returns its output.
func (c *Catalog) Update(ctx context.Context) (string, error) {
	return c.client.Update(ctx)
}

func (c *Catalog) RowCount() int {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return len(c.pkgs)
}

// ValueAt returns the cell of the table.
func (c *Catalog) ValueAt(column string, row int) (string, error) {
	c.mx.RLock()
	defer c.mx.RUnlock()
	if row < 0 || row >= len(c.pkgs) {
		return "", fmt.Errorf("%w: %d", ErrNoSuchRow, row)
	}
	switch column {
	case ColumnFormula:
		return c.pkgs[row].Name, nil
	case ColumnVersion:
		return c.pkgs[row].Version, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrNoSuchColumn, column)
	}
}

func (c *Catalog) Packages() []model.Package {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return slices.Clone(c.pkgs)
}

func (c *Catalog) indexLocked(name string) int {
	return slices.IndexFunc(c.pkgs, func(p model.Package) bool {
		return p.Name == name
	})
}

// Snapshot is the exported form of a catalog.
type Snapshot struct {
	Refreshed time.Time       `json:"refreshed"`
	Binary    string          `json:"binary"`
	Packages  []model.Package `json:"packages"`
}

// MarshalSnapshot serializes the current list as JSON.
func (c *Catalog) MarshalSnapshot() ([]byte, error) {
	c.mx.RLock()
	s := Snapshot{
		Refreshed: c.refreshed,
		Binary:    c.client.Binary(),
		Packages:  slices.Clone(c.pkgs),
	}
	c.mx.RUnlock()
	if s.Packages == nil {
		s.Packages = []model.Package{}
	}
	return json.MarshalIndent(s, "", "  ")
}
