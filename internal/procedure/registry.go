package procedure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/Tomlord1122/todo-app/internal/domain"
)

// Tier selects the middleware a procedure runs behind.
type Tier int

const (
	// TierPublic runs behind the logging step only.
	TierPublic Tier = iota
	// TierProtected adds the authentication step.
	TierProtected
)

func (t Tier) String() string {
	if t == TierProtected {
		return "protected"
	}
	return "public"
}

// Handler implements one procedure. Input has already passed its shape
// check; for protected procedures call.Identity is set.
type Handler[In, Out any] func(ctx context.Context, call *Call, in In) (Out, error)

// NoInput is the input type of procedures that take no arguments.
type NoInput struct{}

type Option func(*endpoint)

// WithMiddleware appends steps that run after the tier's own steps.
func WithMiddleware(steps ...Middleware) Option {
	return func(e *endpoint) { e.extra = append(e.extra, steps...) }
}

// Nullable allows the handler to return a nil result.
func Nullable() Option {
	return func(e *endpoint) { e.nullable = true }
}

type endpoint struct {
	tier     Tier
	extra    []Middleware
	nullable bool
	invoke   Next
}

type Options struct {
	Logger     zerolog.Logger
	Sessions   SessionResolver
	CookieName string
	// Validate defaults to NewValidator().
	Validate *validator.Validate
	// Observe runs outermost on every procedure, before logging.
	Observe []Middleware
}

// Registry maps procedure names to their handlers. Register everything
// before serving; lookups are not synchronized with registration.
type Registry struct {
	validate  *validator.Validate
	public    []Middleware
	protected []Middleware
	endpoints map[string]*endpoint
}

func NewRegistry(opts Options) *Registry {
	v := opts.Validate
	if v == nil {
		v = NewValidator()
	}

	public := append(append([]Middleware{}, opts.Observe...), Logging(opts.Logger))
	protected := append(append([]Middleware{}, public...), Authenticate(opts.Sessions, opts.CookieName))

	return &Registry{
		validate:  v,
		public:    public,
		protected: protected,
		endpoints: make(map[string]*endpoint),
	}
}

// Public registers a procedure reachable without a session.
func Public[In, Out any](r *Registry, name string, h Handler[In, Out], opts ...Option) {
	register(r, TierPublic, name, h, opts)
}

// Protected registers a procedure that requires a live session.
func Protected[In, Out any](r *Registry, name string, h Handler[In, Out], opts ...Option) {
	register(r, TierProtected, name, h, opts)
}

func register[In, Out any](r *Registry, tier Tier, name string, h Handler[In, Out], opts []Option) {
	if _, dup := r.endpoints[name]; dup {
		panic("procedure: duplicate registration of " + name)
	}

	ep := &endpoint{tier: tier}
	for _, opt := range opts {
		opt(ep)
	}

	terminal := func(ctx context.Context, call *Call) (any, error) {
		var in In
		if err := decodeInput(call.Input, &in); err != nil {
			return nil, err
		}
		if fields, err := checkShape(r.validate, in); err != nil {
			return nil, inputError(fields, err)
		}

		out, err := h(ctx, call, in)
		if err != nil {
			return nil, err
		}

		if isNil(out) {
			if ep.nullable {
				return nil, nil
			}
			return nil, &OutputError{Procedure: name, Err: errors.New("handler returned nil")}
		}
		if fields, err := checkShape(r.validate, out); err != nil {
			return nil, &OutputError{Procedure: name, Fields: fields, Err: err}
		}
		return out, nil
	}

	steps := r.public
	if tier == TierProtected {
		steps = r.protected
	}
	steps = append(append([]Middleware{}, steps...), ep.extra...)
	ep.invoke = Chain(steps...)(terminal)

	r.endpoints[name] = ep
}

// Invoke runs the named procedure. Unknown names fail with NOT_FOUND.
func (r *Registry) Invoke(ctx context.Context, name string, call *Call) (any, error) {
	ep, ok := r.endpoints[name]
	if !ok {
		return nil, domain.ErrProcedureNotFound(name)
	}
	call.Procedure = name
	return ep.invoke(ctx, call)
}

// Tier reports the tier a procedure was registered with.
func (r *Registry) Tier(name string) (Tier, bool) {
	ep, ok := r.endpoints[name]
	if !ok {
		return 0, false
	}
	return ep.tier, true
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeInput treats an absent body as an empty object so that required
// fields are reported by the shape check rather than as a decode error.
func decodeInput(raw []byte, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return domain.ErrInvalidField(typeErr.Field, "type")
		}
		return domain.Wrap(domain.KindBadRequest, "malformed JSON input", err)
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
