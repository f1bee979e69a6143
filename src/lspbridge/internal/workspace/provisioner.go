// Package workspace creates and removes the per-session copies of the project template.
package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/entity"
	bridgeerrors "github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/errors"
	"github.com/swiftfiddle/lsp-bridge/src/lspbridge/internal/fs"
	"github.com/uber-go/tally"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	_configKey = "workspace"
	_nameKey   = "workspace"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Provisioner creates isolated analysis workspaces.
type Provisioner interface {
	// Provision copies the template into a fresh directory under the scratch root.
	Provision(ctx context.Context) (*entity.Workspace, error)
	// Teardown removes a workspace. Removing an absent workspace is not an error.
	Teardown(ctx context.Context, path string) error
}

// Config is the workspace section of the service configuration.
type Config struct {
	TemplatePath string `yaml:"templatePath"`
	// ScratchRoot defaults to the OS temp directory.
	ScratchRoot string `yaml:"scratchRoot"`
	// DocumentPath is relative to the workspace root.
	DocumentPath string `yaml:"documentPath"`
	// Placeholder is replaced by the workspace path in every metadata file.
	Placeholder   string   `yaml:"placeholder"`
	MetadataFiles []string `yaml:"metadataFiles"`
}

// Params are the dependencies of New.
type Params struct {
	fx.In

	Config config.Provider
	FS     fs.BridgeFS
	Logger *zap.SugaredLogger
	Stats  tally.Scope
}

type provisioner struct {
	cfg    Config
	fs     fs.BridgeFS
	logger *zap.SugaredLogger
	stats  tally.Scope
}

// New creates a Provisioner from the workspace configuration.
func New(p Params) (Provisioner, error) {
	var cfg Config
	if err := p.Config.Get(_configKey).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKey, err)
	}
	return NewWithConfig(cfg, p.FS, p.Logger, p.Stats)
}

// NewWithConfig creates a Provisioner from an explicit configuration.
func NewWithConfig(cfg Config, bridgeFS fs.BridgeFS, logger *zap.SugaredLogger, stats tally.Scope) (Provisioner, error) {
	if cfg.TemplatePath == "" {
		return nil, fmt.Errorf("missing field %q in config", _configKey+".templatePath")
	}
	if cfg.DocumentPath == "" || filepath.IsAbs(cfg.DocumentPath) {
		return nil, fmt.Errorf("%q must be a relative path, got %q", _configKey+".documentPath", cfg.DocumentPath)
	}
	if cfg.ScratchRoot == "" {
		cfg.ScratchRoot = bridgeFS.TempDir()
	}

	var err error
	if cfg.TemplatePath, err = filepath.Abs(cfg.TemplatePath); err != nil {
		return nil, err
	}
	if cfg.ScratchRoot, err = filepath.Abs(cfg.ScratchRoot); err != nil {
		return nil, err
	}

	return &provisioner{
		cfg:    cfg,
		fs:     bridgeFS,
		logger: logger.With("component", _nameKey),
		stats:  stats.SubScope(_nameKey),
	}, nil
}

func (p *provisioner) Provision(ctx context.Context) (*entity.Workspace, error) {
	sw := p.stats.Timer("provision_latency").Start()
	defer sw.Stop()

	id, err := uuid.NewV4()
	if err != nil {
		return nil, p.fail("", err)
	}
	root := filepath.Join(p.cfg.ScratchRoot, id.String())

	if err := p.populate(root); err != nil {
		// Remove the partial copy; the caller never receives its path.
		if rmErr := p.fs.RemoveAll(root); rmErr != nil {
			p.logger.Warnw("removing partial workspace", "path", root, zap.Error(rmErr))
		}
		return nil, p.fail(root, err)
	}

	p.stats.Counter("provisioned").Inc(1)
	p.logger.Debugw("workspace provisioned", "path", root)
	return &entity.Workspace{
		Path:         root,
		DocumentPath: filepath.Join(root, p.cfg.DocumentPath),
	}, nil
}

func (p *provisioner) populate(root string) error {
	if err := p.fs.CopyTree(p.cfg.TemplatePath, root); err != nil {
		return fmt.Errorf("copying template: %w", err)
	}

	for _, name := range p.cfg.MetadataFiles {
		if err := p.rewriteMetadata(filepath.Join(root, name), root); err != nil {
			return err
		}
	}

	if err := p.fs.MkdirAll(filepath.Dir(filepath.Join(root, p.cfg.DocumentPath))); err != nil {
		return fmt.Errorf("creating document directory: %w", err)
	}
	return nil
}

// rewriteMetadata points build metadata at the new workspace instead of the template's original location.
func (p *provisioner) rewriteMetadata(path, root string) error {
	content, err := p.fs.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading metadata %q: %w", path, err)
	}

	rewritten := content
	if p.cfg.Placeholder != "" {
		rewritten = []byte(strings.ReplaceAll(string(content), p.cfg.Placeholder, root))
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(rewritten, &doc); err != nil {
		return fmt.Errorf("metadata %q is malformed: %w", path, err)
	}

	if err := p.fs.WriteFile(path, rewritten); err != nil {
		return fmt.Errorf("writing metadata %q: %w", path, err)
	}
	return nil
}

func (p *provisioner) fail(root string, err error) error {
	p.stats.Counter("provision_failures").Inc(1)
	return &bridgeerrors.ProvisionError{
		Template:  p.cfg.TemplatePath,
		Workspace: root,
		Err:       err,
	}
}

func (p *provisioner) Teardown(ctx context.Context, path string) error {
	rel, err := filepath.Rel(p.cfg.ScratchRoot, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("refusing to remove %q outside of scratch root %q", path, p.cfg.ScratchRoot)
	}

	if err := p.fs.RemoveAll(path); err != nil {
		p.stats.Counter("teardown_failures").Inc(1)
		return fmt.Errorf("removing workspace %q: %w", path, err)
	}

	p.stats.Counter("torn_down").Inc(1)
	return nil
}
