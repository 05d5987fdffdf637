package deb

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Repository is the root of a managed APT repository tree: a dists/
// hierarchy of binary-<arch>/<section>/ and source/<section>/ directories
// per component, driven by a Config describing its one suite, its
// components and its architectures (spec.md §4.7).
type Repository struct {
	Root   string
	Config *Config
	Log    *logrus.Logger

	layout *Layout
}

// NewRepository returns a Repository rooted at root. If cfg is nil,
// DefaultConfig is used.
func NewRepository(root string, cfg *Config) *Repository {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Repository{
		Root:   root,
		Config: cfg,
		Log:    logrus.StandardLogger(),
		layout: NewLayout(root),
	}
}

func (r *Repository) suiteRoot() string {
	return filepath.Join(r.Root, "dists", r.Config.Suite)
}

func (r *Repository) componentRoot(component string) string {
	return filepath.Join(r.suiteRoot(), component)
}

func (r *Repository) binaryRoot(component, arch string) string {
	return filepath.Join(r.componentRoot(component), fmt.Sprintf("binary-%s", arch))
}

func (r *Repository) sourceRoot(component string) string {
	return filepath.Join(r.componentRoot(component), "source")
}

// defaultSection is the fallback used when a control paragraph carries no
// Section field, matching the catch-all Debian archives fall back to.
const defaultSection = "misc"

// Create lays out an empty repository tree: dists/<suite>/<component>/
// binary-<arch>/ and .../source/ for every configured component and
// architecture (spec.md §4.7's create operation). Per-section
// subdirectories are created on demand by Add, not here, since the set of
// sections isn't known until packages are staged.
func (r *Repository) Create() error {
	for _, component := range r.Config.Components {
		for _, arch := range r.Config.Architectures {
			if err := r.layout.Mkdirs(r.binaryRoot(component, arch)); err != nil {
				return err
			}
		}
		if err := r.layout.Mkdirs(r.sourceRoot(component)); err != nil {
			return err
		}
		r.Log.WithFields(logrus.Fields{"op": "create", "component": component}).Info("component directories ready")
	}
	return nil
}

// AddOptions controls how Add stages files onto disk.
type AddOptions struct {
	// Link hard-links files into place instead of copying them, per
	// spec.md's "add --link" mode.
	Link bool
}

// AddResult describes the outcome of staging one file within a batch Add
// call.
type AddResult struct {
	Path string
	Name string
	Err  error
}

// Add stages one or more .deb/.dsc files (or glob patterns matching them)
// into a component, under the canonical binary-<arch>/<section>/ or
// source/<section>/ tree. Per spec.md §7, a failure staging one item is
// logged and recorded on its AddResult; it never aborts the rest of the
// batch. Binary packages are staged before source packages so that a
// source's find_section resolution, run against binaries added in the
// same call, can already see them.
func (r *Repository) Add(component string, opts AddOptions, paths ...string) []AddResult {
	expanded := make([]string, 0, len(paths))
	var results []AddResult
	for _, pattern := range paths {
		matches, err := r.expandAddPattern(pattern)
		if err != nil {
			results = append(results, AddResult{Path: pattern, Err: err})
			continue
		}
		expanded = append(expanded, matches...)
	}

	ordered := orderBinariesFirst(expanded)
	for _, path := range ordered {
		name, err := r.addOne(component, path, opts)
		if err != nil {
			r.Log.WithFields(logrus.Fields{"op": "add", "path": path, "err": err}).Warn("skipping unstageable file")
		}
		results = append(results, AddResult{Path: path, Name: name, Err: err})
	}
	return results
}

// expandAddPattern returns path itself if it carries no glob metacharacter,
// otherwise every .deb/.dsc match for it (spec.md §4.5's
// find_files_from_pattern).
func (r *Repository) expandAddPattern(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	debs, err := r.layout.FindFilesFromPattern(pattern, KindDeb)
	if err != nil {
		return nil, err
	}
	dscs, err := r.layout.FindFilesFromPattern(pattern, KindDsc)
	if err != nil {
		return nil, err
	}
	matches := append(debs, dscs...)
	if len(matches) == 0 {
		return nil, &DiagnosticError{Kind: ErrNotFound, Op: "add", Path: pattern, Err: fmt.Errorf("pattern matched no files")}
	}
	return matches, nil
}

// orderBinariesFirst returns paths with every .deb ahead of every .dsc,
// preserving relative order within each group.
func orderBinariesFirst(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if filepath.Ext(p) == ".deb" {
			out = append(out, p)
		}
	}
	for _, p := range paths {
		if filepath.Ext(p) != ".deb" {
			out = append(out, p)
		}
	}
	return out
}

func (r *Repository) addOne(component, path string, opts AddOptions) (string, error) {
	switch filepath.Ext(path) {
	case ".deb":
		return r.addBinary(component, path, opts)
	case ".dsc":
		return r.addSource(component, path, opts)
	default:
		return "", &DiagnosticError{Kind: ErrMalformed, Op: "add", Path: path, Err: fmt.Errorf("unrecognised extension")}
	}
}

func (r *Repository) stage(dst, src string, opts AddOptions) error {
	if opts.Link {
		return r.layout.LinkFile(dst, src)
	}
	return r.layout.CopyFile(dst, src)
}

// addBinary stages path under binary-<arch>/<section>/ for every
// architecture it applies to (every configured architecture, for an
// "Architecture: all" package), matching spec.md §3/§4.7 and scenario S2's
// canonical placement.
func (r *Repository) addBinary(component, path string, opts AddOptions) (string, error) {
	rec := NewPackageRecord(path, r.Config)
	if err := rec.Ensure(); err != nil {
		return "", err
	}

	section := rec.Section()
	if section == "" {
		section = defaultSection
	}

	archs := []string{rec.Architecture()}
	if rec.Architecture() == "all" {
		archs = r.Config.Architectures
	}

	var canonical string
	for _, arch := range archs {
		dst := filepath.Join(r.binaryRoot(component, arch), section, filepath.Base(path))
		if err := r.stage(dst, path, opts); err != nil {
			return "", err
		}
		if canonical == "" {
			canonical = dst
		}
	}

	// Recompute the record against its final on-disk location so Filename
	// resolves under the repo root (spec.md §3/§6).
	final := NewPackageRecord(canonical, r.Config)
	if err := final.Ensure(); err != nil {
		return "", err
	}

	r.Log.WithFields(logrus.Fields{"op": "add", "package": final.Package(), "path": canonical}).Info("binary staged")
	return final.Package(), nil
}

// addSource stages a .dsc and its referenced original/diff archives under
// source/<section>/, where section is resolved from the binaries the
// source already produced (spec.md §4.3's find_section). Per spec.md §7,
// a source whose declared binaries haven't been staged yet fails this one
// record (logged by the caller, not fatal to the batch) rather than
// guessing a placement. A missing original or diff archive likewise fails
// the record with ErrNotFound before anything is staged.
func (r *Repository) addSource(component, path string, opts AddOptions) (string, error) {
	rec := NewSourceRecord(path, r.Config)
	if err := rec.Ensure(); err != nil {
		return "", err
	}

	section, err := rec.FindSection(r.componentRoot(component))
	if err != nil {
		return "", err
	}

	originals, err := rec.OriginalArchiveNames()
	if err != nil {
		return "", err
	}
	diff, err := rec.DiffArchiveName()
	if err != nil {
		return "", err
	}
	srcDir := filepath.Dir(path)
	for _, name := range append(append([]string(nil), originals...), diff) {
		if _, err := os.Stat(filepath.Join(srcDir, name)); name != "" && err != nil {
			return "", &DiagnosticError{Kind: ErrNotFound, Op: "add", Path: filepath.Join(srcDir, name), Err: err}
		}
	}

	dir := filepath.Join(r.sourceRoot(component), section)
	dst := filepath.Join(dir, filepath.Base(path))
	if err := r.stage(dst, path, opts); err != nil {
		return "", err
	}

	for _, name := range originals {
		if err := r.stage(filepath.Join(dir, name), filepath.Join(srcDir, name), opts); err != nil {
			return "", err
		}
	}
	if diff != "" {
		if err := r.stage(filepath.Join(dir, diff), filepath.Join(srcDir, diff), opts); err != nil {
			return "", err
		}
	}

	r.Log.WithFields(logrus.Fields{"op": "add", "source": rec.Source(), "path": dst}).Info("source staged")
	return rec.Source(), nil
}

// RemoveOptions controls the remove operation's transitive-closure and
// dry-run behaviour (spec.md §4.7, DryRun per the supplemented feature set).
type RemoveOptions struct {
	// DryRun reports what would be removed without touching the
	// filesystem or catalogues.
	DryRun bool
}

// Remove deletes a named binary or source and, transitively, every other
// file belonging to the same source (spec.md §4.7's remove, §8 invariant
// 6, scenario S5). Per spec.md §4.7 this is catalogue-driven: it loads the
// Packages catalogue already written for every architecture and the
// Sources catalogue (both produced by a prior Update), resolves name to a
// source either via a matching Packages entry's Source field or a direct
// Sources match, then expands to every Binary member the resolved Source
// record declares — so a sibling binary is found even when its filename
// shares no prefix with the name the caller passed. Catalogues are read,
// never rewritten, here; a subsequent Update regenerates them from
// whatever remains on disk.
func (r *Repository) Remove(component, name string, opts RemoveOptions) ([]string, error) {
	pkgCats, err := r.readPackagesCatalogues(component)
	if err != nil {
		return nil, err
	}
	srcCat, err := r.readSourcesCatalogue(component)
	if err != nil {
		return nil, err
	}

	sourceName, ok := resolveSourceName(pkgCats, srcCat, name)
	if !ok {
		return nil, &DiagnosticError{Kind: ErrNotFound, Op: "remove", Path: name, Err: fmt.Errorf("no package or source named %q in component %q", name, component)}
	}

	binNames := []string{sourceName}
	srcRec := srcCat.Find(sourceName)
	if srcRec != nil {
		if names, err := srcRec.BinaryNames(); err == nil && len(names) > 0 {
			binNames = names
		}
	}

	seen := make(map[string]bool)
	var removed []string
	add := func(path string) {
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		removed = append(removed, path)
	}

	for _, binName := range binNames {
		for _, cat := range pkgCats {
			if pkg := cat.Find(binName); pkg != nil {
				add(pkg.Path)
			}
		}
	}

	if srcRec != nil {
		add(srcRec.Path)
		if srcRec.Path != "" {
			entries, err := srcRec.filesEntries()
			if err != nil {
				return removed, err
			}
			dir := filepath.Dir(srcRec.Path)
			for _, e := range entries {
				add(filepath.Join(dir, e.name))
			}
		}
	}

	if !opts.DryRun {
		for _, path := range removed {
			if err := removeIfExists(path); err != nil {
				return removed, err
			}
		}
	}

	r.Log.WithFields(logrus.Fields{"op": "remove", "source": sourceName, "dry_run": opts.DryRun, "count": len(removed)}).Info("removal resolved")
	return removed, nil
}

// readPackagesCatalogues loads the Packages catalogue already written for
// every binary-<arch> directory present under component, plus every
// configured architecture, treating a not-yet-updated architecture as an
// empty catalogue rather than an error.
func (r *Repository) readPackagesCatalogues(component string) (map[string]*PackagesCatalogue, error) {
	archs, err := discoverArchitectures(r.componentRoot(component), r.Config.Architectures)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*PackagesCatalogue, len(archs))
	for _, arch := range archs {
		path := filepath.Join(r.binaryRoot(component, arch), "Packages")
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				out[arch] = NewPackagesCatalogue(r.Root, r.Config)
				continue
			}
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		cat, err := ReadPackagesCatalogue(f, r.Root, r.Config)
		f.Close()
		if err != nil {
			return nil, err
		}
		out[arch] = cat
	}
	return out, nil
}

// readSourcesCatalogue loads the Sources catalogue already written for
// component, treating a not-yet-updated component as an empty catalogue.
func (r *Repository) readSourcesCatalogue(component string) (*SourcesCatalogue, error) {
	path := filepath.Join(r.sourceRoot(component), "Sources")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewSourcesCatalogue(r.Root, r.Config), nil
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return ReadSourcesCatalogue(f, r.Root, r.Config)
}

// resolveSourceName maps a user-supplied binary or source name to the
// source name Remove should expand, matching spec.md §4.7: "if it
// resolves in a Packages catalogue include its Source field".
func resolveSourceName(pkgCats map[string]*PackagesCatalogue, srcCat *SourcesCatalogue, name string) (string, bool) {
	for _, cat := range pkgCats {
		if pkg := cat.Find(name); pkg != nil {
			return pkg.SourceName(), true
		}
	}
	if srcCat.Find(name) != nil {
		return name, true
	}
	return "", false
}

// discoverArchitectures returns every "binary-<arch>" directory actually
// present under componentPath, unioned with configured so an empty but
// already-created directory still yields an (empty) Packages/Release
// rather than silently vanishing. This is how Update finds the
// "architectures actually observed" spec.md §4.7 describes, including a
// binary-all/ directory even though "all" is never itself a configured
// architecture.
func discoverArchitectures(componentPath string, configured []string) ([]string, error) {
	seen := make(map[string]bool, len(configured))
	var out []string
	add := func(arch string) {
		if !seen[arch] {
			seen[arch] = true
			out = append(out, arch)
		}
	}
	for _, a := range configured {
		add(a)
	}

	entries, err := os.ReadDir(componentPath)
	if err != nil {
		if os.IsNotExist(err) {
			sort.Strings(out)
			return out, nil
		}
		return nil, fmt.Errorf("reading %s: %w", componentPath, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if arch, ok := strings.CutPrefix(e.Name(), "binary-"); ok {
			add(arch)
		}
	}
	sort.Strings(out)
	return out, nil
}

// discoverComponents returns every component directory actually present
// under suiteRoot, unioned with configured, matching spec.md §4.7's
// "Walk dists/<suite>/<component>/" description.
func discoverComponents(suiteRoot string, configured []string) ([]string, error) {
	seen := make(map[string]bool, len(configured))
	var out []string
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range configured {
		add(c)
	}

	entries, err := os.ReadDir(suiteRoot)
	if err != nil {
		if os.IsNotExist(err) {
			sort.Strings(out)
			return out, nil
		}
		return nil, fmt.Errorf("reading %s: %w", suiteRoot, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			add(e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Update rebuilds every component's Packages and Sources catalogues from
// the .deb/.dsc files staged under dists/<suite>/<component>/, then
// rewrites the dists/ hierarchy's Release files (spec.md §4.7's update
// operation). Per spec.md §8 invariant 5, when a component has both a
// binary-all/ directory and one or more architecture-specific
// directories, every non-all Packages additionally includes binary-all's
// records. ctx is passed only to the external bzip2 invocations:
// cancelling it kills a bzip2 process that is running and makes every
// later one fail; it is not threaded into individual file reads.
func (r *Repository) Update(ctx context.Context) error {
	algorithms := r.Config.hashAlgorithms()
	files := make(map[HashAlgorithm][]IndexFile, len(algorithms))

	components, err := discoverComponents(r.suiteRoot(), r.Config.Components)
	if err != nil {
		return err
	}

	observedArchs := make(map[string]bool)
	var observedComponents []string

	for _, component := range components {
		componentPath := r.componentRoot(component)
		archs, err := discoverArchitectures(componentPath, r.Config.Architectures)
		if err != nil {
			return err
		}

		cats := make(map[string]*PackagesCatalogue, len(archs))
		for _, arch := range archs {
			cat := NewPackagesCatalogue(r.Root, r.Config)
			binDir := r.binaryRoot(component, arch)
			it := r.layout.FindFiles(binDir, KindDeb)
			for {
				path, ok := it.Next()
				if !ok {
					break
				}
				rec := NewPackageRecord(path, r.Config)
				if err := rec.Ensure(); err != nil {
					r.Log.WithFields(logrus.Fields{"op": "update", "path": path, "err": err}).Warn("skipping unreadable binary")
					continue
				}
				if err := cat.Add(rec); err != nil {
					return err
				}
			}
			if err := it.Err(); err != nil {
				return err
			}
			cats[arch] = cat
		}

		if allCat, ok := cats["all"]; ok {
			for arch, cat := range cats {
				if arch != "all" {
					cat.MergeMissing(allCat)
				}
			}
		}

		hasAny := false
		for _, arch := range archs {
			binDir := r.binaryRoot(component, arch)
			if _, err := os.Stat(binDir); err != nil {
				continue
			}
			hasAny = true
			observedArchs[arch] = true

			if err := r.writeCompressedIndex(ctx, filepath.Join(binDir, "Packages"), cats[arch].WriteTo, files); err != nil {
				return err
			}
			if err := writeComponentRelease(r, component, arch, binDir); err != nil {
				return err
			}
		}

		srcDir := r.sourceRoot(component)
		if _, err := os.Stat(srcDir); err == nil {
			srcCat := NewSourcesCatalogue(r.Root, r.Config)
			it := r.layout.FindFiles(srcDir, KindDsc)
			for {
				path, ok := it.Next()
				if !ok {
					break
				}
				rec := NewSourceRecord(path, r.Config)
				if err := rec.Ensure(); err != nil {
					r.Log.WithFields(logrus.Fields{"op": "update", "path": path, "err": err}).Warn("skipping unreadable source")
					continue
				}
				if err := srcCat.Add(rec); err != nil {
					return err
				}
			}
			if err := it.Err(); err != nil {
				return err
			}

			probe := r.Config.hashProbe()
			writer := func(w io.Writer) error {
				return srcCat.WriteTo(w, probe)
			}
			if err := r.writeCompressedIndex(ctx, filepath.Join(srcDir, "Sources"), writer, files); err != nil {
				return err
			}
			if err := writeComponentRelease(r, component, "source", srcDir); err != nil {
				return err
			}
			hasAny = true
		}

		if hasAny {
			observedComponents = append(observedComponents, component)
		}
	}

	archList := make([]string, 0, len(observedArchs))
	for a := range observedArchs {
		archList = append(archList, a)
	}
	sort.Strings(archList)

	return r.writeSuiteRelease(files, archList, observedComponents)
}

// Sign computes and writes the detached signature for the suite's Release
// file (spec.md §4.7's sign operation). It fails fast: a missing signing
// key, a missing or unreadable Release file, or a signing failure returns
// an error before any Release.gpg is written. The Release content itself
// is signed as-is, without being checked.
func (r *Repository) Sign() error {
	if r.Config.SigningKey == "" {
		return fmt.Errorf("sign: no signing key configured")
	}
	releasePath := filepath.Join(r.suiteRoot(), "Release")
	release, err := os.ReadFile(releasePath)
	if os.IsNotExist(err) {
		return &DiagnosticError{Kind: ErrNotFound, Op: "sign", Path: releasePath, Err: err}
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", releasePath, err)
	}
	sig, err := SignRelease(release, r.Config.SigningKey)
	if err != nil {
		return err
	}
	sigPath := releasePath + ".gpg"
	if err := os.WriteFile(sigPath, sig, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", sigPath, err)
	}
	r.Log.WithFields(logrus.Fields{"op": "sign", "path": sigPath}).Info("release signed")
	return nil
}
