package schema

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"consentsync/internal/model"
)

// ErrNotReady is returned when resolution is attempted before MarkReady.
var ErrNotReady = errors.New("schema registry is not ready; register tables and call MarkReady first")

// ErrFrozen is returned when registration is attempted after MarkReady.
var ErrFrozen = errors.New("schema registry is frozen")

// OverrideSetting names the configuration value that disambiguates namespaces.
const OverrideSetting = "schema.namespace (CONSENTSYNC_SCHEMA_NAMESPACE)"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Handle identifies the concrete table backing a logical entity.
type Handle struct {
	Namespace string
	Logical   string
	Table     string
}

// String renders the handle as namespace.Logical (table).
func (h Handle) String() string {
	return fmt.Sprintf("%s.%s (%s)", h.Namespace, h.Logical, h.Table)
}

// ConfigError reports an unresolved or ambiguous entity name.
type ConfigError struct {
	Name       string
	Namespace  string
	Candidates []string
	Reason     string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "resolve entity %q: %s", e.Name, e.Reason)
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&b, " (namespaces: %s)", strings.Join(e.Candidates, ", "))
	}
	fmt.Fprintf(&b, "; set %s to the namespace that owns the legacy tables", OverrideSetting)
	return b.String()
}

// ErrorKind classifies the error for callers that map failures to exit states.
func (e *ConfigError) ErrorKind() string { return "configuration" }

// Registry maps logical entity names to table handles.
type Registry struct {
	mu       sync.RWMutex
	override string
	ready    bool
	// entries is keyed by lower-case logical name, then namespace.
	entries map[string]map[string]Handle
	known   map[string]string
}

// NewRegistry creates a registry for the given logical names. override, when
// non-empty, is the namespace consulted first during resolution.
func NewRegistry(override string, logicalNames ...string) *Registry {
	if len(logicalNames) == 0 {
		logicalNames = model.LogicalNames
	}
	known := make(map[string]string, len(logicalNames))
	for _, name := range logicalNames {
		known[strings.ToLower(name)] = name
	}
	return &Registry{
		override: strings.ToLower(strings.TrimSpace(override)),
		entries:  make(map[string]map[string]Handle),
		known:    known,
	}
}

// Register records a table for a logical name under a namespace.
func (r *Registry) Register(namespace, logical, table string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return ErrFrozen
	}
	if !identifierPattern.MatchString(table) {
		return fmt.Errorf("register %s: invalid table name %q", logical, table)
	}
	namespace = strings.ToLower(strings.TrimSpace(namespace))
	key := strings.ToLower(logical)
	canonical, ok := r.known[key]
	if !ok {
		canonical = logical
		r.known[key] = logical
	}
	if r.entries[key] == nil {
		r.entries[key] = make(map[string]Handle)
	}
	r.entries[key][namespace] = Handle{Namespace: namespace, Logical: canonical, Table: table}
	return nil
}

// RegisterTables registers every catalog table whose name matches
// <namespace>_<logical> for a known logical name. Unrelated tables are ignored.
// It returns the number of tables registered.
func (r *Registry) RegisterTables(tables []string) (int, error) {
	r.mu.RLock()
	known := make(map[string]string, len(r.known))
	for k, v := range r.known {
		known[k] = v
	}
	r.mu.RUnlock()

	count := 0
	for _, table := range tables {
		idx := strings.LastIndex(table, "_")
		if idx <= 0 || idx == len(table)-1 {
			continue
		}
		namespace, suffix := table[:idx], strings.ToLower(table[idx+1:])
		logical, ok := known[suffix]
		if !ok {
			continue
		}
		if err := r.Register(namespace, logical, table); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// MarkReady closes registration; resolution is allowed from now on.
func (r *Registry) MarkReady() {
	r.mu.Lock()
	r.ready = true
	r.mu.Unlock()
}

// Resolve returns the table handle for a logical name.
func (r *Registry) Resolve(name string) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready {
		return Handle{}, ErrNotReady
	}

	byNamespace := r.entries[strings.ToLower(name)]
	candidates := make([]string, 0, len(byNamespace))
	for ns := range byNamespace {
		candidates = append(candidates, ns)
	}
	sort.Strings(candidates)

	if r.override != "" {
		if handle, ok := byNamespace[r.override]; ok {
			return handle, nil
		}
		return Handle{}, &ConfigError{
			Name:       name,
			Namespace:  r.override,
			Candidates: candidates,
			Reason:     fmt.Sprintf("not found in namespace %q", r.override),
		}
	}

	switch len(candidates) {
	case 0:
		return Handle{}, &ConfigError{Name: name, Reason: "not found in any registered namespace; ensure the legacy tables exist and migrations are applied"}
	case 1:
		return byNamespace[candidates[0]], nil
	default:
		return Handle{}, &ConfigError{Name: name, Candidates: candidates, Reason: "ambiguous: registered in multiple namespaces"}
	}
}

// Tables carries the resolved handles the engine operates on.
type Tables struct {
	EmailSubscriptions Handle
	PhoneSubscriptions Handle
	Customers          Handle
	Identities         Handle
}

// All returns the handles in a stable order for display.
func (t Tables) All() []Handle {
	return []Handle{t.EmailSubscriptions, t.PhoneSubscriptions, t.Customers, t.Identities}
}

// ResolveAll resolves every entity the engine needs. The first failure is
// returned; no partial Tables value escapes.
func (r *Registry) ResolveAll() (Tables, error) {
	var (
		tables Tables
		err    error
	)
	if tables.EmailSubscriptions, err = r.Resolve(model.NameEmailSubscription); err != nil {
		return Tables{}, err
	}
	if tables.PhoneSubscriptions, err = r.Resolve(model.NamePhoneSubscription); err != nil {
		return Tables{}, err
	}
	if tables.Customers, err = r.Resolve(model.NameCustomer); err != nil {
		return Tables{}, err
	}
	if tables.Identities, err = r.Resolve(model.NameIdentity); err != nil {
		return Tables{}, err
	}
	return tables, nil
}

// ResolveCatalog builds a registry from a storage catalog listing and
// resolves every entity against it.
func ResolveCatalog(override string, catalog []string) (Tables, error) {
	reg := NewRegistry(override)
	if _, err := reg.RegisterTables(catalog); err != nil {
		return Tables{}, err
	}
	reg.MarkReady()
	return reg.ResolveAll()
}
