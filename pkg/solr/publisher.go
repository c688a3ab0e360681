// Package solr publishes Solr core configuration.
//
// Each directory under the core root is one core, named after the directory.
// Publishing uploads every file in the core directory to
//
//	POST {url}/resource/{core}/{relative path}
//
// and then issues a CoreAdmin CREATE (first publish) or RELOAD (later
// publishes). Publishing is independent of the migration ledger.
package solr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/galleyhq/galley"
)

// DefaultRoot is the core root relative to the project root.
const DefaultRoot = "db/solr"

// Action is a CoreAdmin action.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionReload Action = "RELOAD"
)

// Publisher uploads core configuration and drives CoreAdmin.
type Publisher struct {
	root   string
	cfg    Config
	client *retryablehttp.Client
	log    *zap.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Publisher) { p.log = log }
}

// WithClient replaces the HTTP client built from Config.
func WithClient(c *retryablehttp.Client) Option {
	return func(p *Publisher) { p.client = c }
}

// New returns a Publisher for the cores under root.
func New(root string, cfg Config, opts ...Option) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: solr.url is not configured", galley.ErrInvalidArgument)
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("%w: solr.url: %v", galley.ErrInvalidArgument, err)
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	p := &Publisher{root: root, cfg: cfg, log: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = NewClient(cfg, p.log)
	}
	return p, nil
}

// Cores returns the core names under root in lexical order.
// Regular files directly under root are ignored.
func (p *Publisher) Cores() ([]string, error) {
	return Cores(p.root)
}

// Cores returns the directory names under root in lexical order.
func Cores(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", galley.ErrArtifactNotFound, root)
		}
		return nil, fmt.Errorf("listing cores: %w", err)
	}
	var cores []string
	for _, e := range entries {
		if e.IsDir() {
			cores = append(cores, e.Name())
		}
	}
	sort.Strings(cores)
	return cores, nil
}

// Create publishes core for the first time. An empty core means every core.
func (p *Publisher) Create(ctx context.Context, core string) error {
	return p.publishAll(ctx, core, ActionCreate)
}

// Migrate republishes core and reloads it. An empty core means every core.
func (p *Publisher) Migrate(ctx context.Context, core string) error {
	return p.publishAll(ctx, core, ActionReload)
}

func (p *Publisher) publishAll(ctx context.Context, core string, action Action) error {
	cores := []string{core}
	if core == "" {
		var err error
		if cores, err = p.Cores(); err != nil {
			return err
		}
	}
	for _, c := range cores {
		if err := p.Publish(ctx, c, action); err != nil {
			return err
		}
	}
	return nil
}

// Publish uploads every file of one core, then runs action against it.
// The first failed upload stops the core and action is not issued.
func (p *Publisher) Publish(ctx context.Context, core string, action Action) error {
	if err := validateCoreName(core); err != nil {
		return err
	}
	dir := filepath.Join(p.root, core)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: core %s (%s)", galley.ErrArtifactNotFound, core, dir)
	}

	p.log.Info("Publishing core", zap.String("core", core), zap.String("action", string(action)))

	files, err := coreFiles(dir)
	if err != nil {
		return err
	}
	for _, rel := range files {
		if err := p.Upload(ctx, core, rel); err != nil {
			return err
		}
	}
	return p.Admin(ctx, core, action)
}

// coreFiles returns every regular file under dir as a slash-separated path
// relative to dir, in lexical order.
func coreFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing core files: %w", err)
	}
	return files, nil
}

// ResourceURL returns the upload URL for one core file.
func (p *Publisher) ResourceURL(core, rel string) string {
	segments := strings.Split(rel, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return p.cfg.URL + "/resource/" + url.PathEscape(core) + "/" + strings.Join(segments, "/")
}

// Upload sends one core file. Anything but 200 is a transport failure.
func (p *Publisher) Upload(ctx context.Context, core, rel string) error {
	body, err := os.ReadFile(filepath.Join(p.root, core, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("reading %s/%s: %w", core, rel, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.ResourceURL(core, rel), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType(rel))

	p.log.Info("Uploading",
		zap.String("core", core),
		zap.String("file", rel),
		zap.String("size", humanize.Bytes(uint64(len(body)))))

	if err := p.do(req); err != nil {
		return fmt.Errorf("uploading %s/%s: %w", core, rel, err)
	}
	return nil
}

// Admin issues a CoreAdmin action for core.
func (p *Publisher) Admin(ctx context.Context, core string, action Action) error {
	q := url.Values{}
	q.Set("action", string(action))
	q.Set("name", core)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL+"/admin/cores?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	if err := p.do(req); err != nil {
		return fmt.Errorf("%s core %s: %w", strings.ToLower(string(action)), core, err)
	}

	p.log.Info("Core updated", zap.String("core", core), zap.String("action", string(action)))
	return nil
}

func (p *Publisher) do(req *retryablehttp.Request) error {
	if p.cfg.Username != "" {
		req.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return fmt.Errorf("%w: %v", galley.ErrTransport, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %s: %s",
			galley.ErrTransport, req.URL.Path, resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func contentType(name string) string {
	if ext := filepath.Ext(name); ext == ".xml" {
		return "text/xml; charset=utf-8"
	} else if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// AddCore scaffolds an empty core named name under root with placeholder
// solrconfig.xml and schema.xml files, and returns its directory.
func AddCore(root, name string) (string, error) {
	name = strings.TrimSpace(name)
	if err := validateCoreName(name); err != nil {
		return "", err
	}

	dir := filepath.Join(root, name)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("%w: %s", galley.ErrAlreadyExists, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating core: %w", err)
	}
	for _, f := range []string{"solrconfig.xml", "schema.xml"} {
		if err := os.WriteFile(filepath.Join(dir, f), nil, 0o644); err != nil {
			return "", fmt.Errorf("creating core: %w", err)
		}
	}
	return dir, nil
}

// validateCoreName rejects names that would resolve outside the core root.
func validateCoreName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: core name is required (e.g. --name=keyspace.table)", galley.ErrInvalidArgument)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: core name %q must not contain path separators", galley.ErrInvalidArgument, name)
	}
	return nil
}
