package tool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
)

const DefaultCallTimeout = 30 * time.Second

// Env is the read-only view of the working thread a capability may consult.
// Capabilities report changes through CapabilityResult, never by touching the thread.
type Env struct {
	ThreadKey  string
	Profile    map[string]string
	Insights   []string
	Plan       *contractx.ActionPlan
	Transcript []contractx.Turn
}

type Func func(ctx context.Context, args map[string]any, env Env) (contractx.CapabilityResult, error)

// Descriptor is the static registration record of one capability.
type Descriptor struct {
	Name       string
	Desc       string
	Params     []contractx.ParamSpec
	SideEffect contractx.SideEffect
	// Timeout overrides the registry default when > 0.
	Timeout time.Duration
	Func    Func
}

func (d Descriptor) Info() contractx.CapabilityInfo {
	return contractx.CapabilityInfo{
		Name:       d.Name,
		Desc:       d.Desc,
		Params:     append([]contractx.ParamSpec(nil), d.Params...),
		SideEffect: d.SideEffect,
	}
}

var (
	ErrDuplicateCapability = errors.New("capability already registered")
	ErrInvalidDescriptor   = errors.New("invalid capability descriptor")
)

// Builder collects descriptors at startup. Build seals them into a Registry.
type Builder struct {
	timeout time.Duration
	descs   map[string]Descriptor
	order   []string
	errs    []error
}

func NewBuilder(defaultTimeout time.Duration) *Builder {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultCallTimeout
	}
	return &Builder{
		timeout: defaultTimeout,
		descs:   make(map[string]Descriptor),
	}
}

func (b *Builder) Register(d Descriptor) *Builder {
	d.Name = strings.TrimSpace(d.Name)
	switch {
	case d.Name == "":
		b.errs = append(b.errs, fmt.Errorf("%w: empty name", ErrInvalidDescriptor))
		return b
	case d.Func == nil:
		b.errs = append(b.errs, fmt.Errorf("%w: %s has no implementation", ErrInvalidDescriptor, d.Name))
		return b
	}
	if _, exists := b.descs[d.Name]; exists {
		b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrDuplicateCapability, d.Name))
		return b
	}
	if d.SideEffect == "" {
		d.SideEffect = contractx.SideEffectPure
	}
	seen := make(map[string]struct{}, len(d.Params))
	for _, p := range d.Params {
		if strings.TrimSpace(p.Name) == "" {
			b.errs = append(b.errs, fmt.Errorf("%w: %s has an unnamed parameter", ErrInvalidDescriptor, d.Name))
			return b
		}
		if _, dup := seen[p.Name]; dup {
			b.errs = append(b.errs, fmt.Errorf("%w: %s declares %s twice", ErrInvalidDescriptor, d.Name, p.Name))
			return b
		}
		seen[p.Name] = struct{}{}
	}
	d.Params = append([]contractx.ParamSpec(nil), d.Params...)
	b.descs[d.Name] = d
	b.order = append(b.order, d.Name)
	return b
}

func (b *Builder) Build() (*Registry, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	descs := make(map[string]Descriptor, len(b.descs))
	for k, v := range b.descs {
		descs[k] = v
	}
	return &Registry{
		descs:   descs,
		order:   append([]string(nil), b.order...),
		timeout: b.timeout,
		now:     time.Now,
		newID:   uuid.NewString,
	}, nil
}

// Registry is the immutable capability table. It is safe for concurrent use.
type Registry struct {
	descs   map[string]Descriptor
	order   []string
	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

func (r *Registry) Get(name string) (Descriptor, error) {
	d, ok := r.descs[strings.TrimSpace(name)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", contractx.ErrCapabilityNotFound, name)
	}
	return d, nil
}

func (r *Registry) Has(name string) bool {
	_, ok := r.descs[strings.TrimSpace(name)]
	return ok
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Catalogue lists capabilities in registration order.
func (r *Registry) Catalogue() []contractx.CapabilityInfo {
	out := make([]contractx.CapabilityInfo, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.descs[name].Info())
	}
	return out
}

// ToolInfos renders the catalogue for an eino tool-calling model.
func (r *Registry) ToolInfos() []*schema.ToolInfo {
	return ToolInfos(r.Catalogue())
}

func ToolInfos(catalogue []contractx.CapabilityInfo) []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, 0, len(catalogue))
	for _, info := range catalogue {
		ti := &schema.ToolInfo{Name: info.Name, Desc: info.Desc}
		if len(info.Params) > 0 {
			params := make(map[string]*schema.ParameterInfo, len(info.Params))
			for _, p := range info.Params {
				params[p.Name] = &schema.ParameterInfo{
					Type:     toDataType(p.Type),
					Desc:     p.Desc,
					Required: p.Required,
				}
			}
			ti.ParamsOneOf = schema.NewParamsOneOfByParams(params)
		}
		out = append(out, ti)
	}
	return out
}

func toDataType(t contractx.ParamType) schema.DataType {
	switch t {
	case contractx.ParamInteger:
		return schema.Integer
	case contractx.ParamNumber:
		return schema.Number
	case contractx.ParamBoolean:
		return schema.Boolean
	case contractx.ParamArray:
		return schema.Array
	case contractx.ParamObject:
		return schema.Object
	default:
		return schema.String
	}
}

// Validate checks args against the descriptor schema and returns the normalized arguments.
// Integers arriving as JSON numbers are converted to int.
func (r *Registry) Validate(name string, args map[string]any) (map[string]any, *contractx.CapabilityError) {
	d, err := r.Get(name)
	if err != nil {
		return nil, contractx.NewCapabilityError(contractx.ErrorKindNotFound, name,
			"unknown capability; available: %s", strings.Join(r.sortedNames(), ", "))
	}
	return validateArgs(d, args)
}

func validateArgs(d Descriptor, args map[string]any) (map[string]any, *contractx.CapabilityError) {
	// Undeclared arguments are dropped.
	out := make(map[string]any, len(d.Params))
	for _, p := range d.Params {
		raw, present := args[p.Name]
		if !present || raw == nil {
			if p.Required {
				return nil, contractx.NewCapabilityError(contractx.ErrorKindValidation, d.Name, "missing required argument %q", p.Name)
			}
			continue
		}
		v, err := coerce(p, raw)
		if err != nil {
			return nil, contractx.NewCapabilityError(contractx.ErrorKindValidation, d.Name, "argument %q: %v", p.Name, err)
		}
		out[p.Name] = v
	}
	return out, nil
}

func coerce(p contractx.ParamSpec, raw any) (any, error) {
	switch p.Type {
	case contractx.ParamString, "":
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", raw)
		}
		if p.Required && strings.TrimSpace(s) == "" {
			return nil, errors.New("must not be empty")
		}
		return s, nil
	case contractx.ParamInteger:
		switch n := raw.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			if n != math.Trunc(n) || math.IsInf(n, 0) {
				return nil, fmt.Errorf("want integer, got %v", n)
			}
			return int(n), nil
		default:
			return nil, fmt.Errorf("want integer, got %T", raw)
		}
	case contractx.ParamNumber:
		switch n := raw.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		default:
			return nil, fmt.Errorf("want number, got %T", raw)
		}
	case contractx.ParamBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("want boolean, got %T", raw)
		}
		return b, nil
	case contractx.ParamArray:
		a, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("want array, got %T", raw)
		}
		return a, nil
	case contractx.ParamObject:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("want object, got %T", raw)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %q", p.Type)
	}
}

type outcome struct {
	result contractx.CapabilityResult
	err    error
}

// Invoke validates and runs a capability under its deadline. It never panics and never
// returns an error: failures are carried in the returned call.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any, env Env) contractx.CapabilityCall {
	start := r.now()
	call := contractx.CapabilityCall{
		ID:         r.newID(),
		Capability: strings.TrimSpace(name),
		Arguments:  args,
		At:         start.UTC(),
	}

	d, err := r.Get(name)
	if err != nil {
		call.Error = contractx.NewCapabilityError(contractx.ErrorKindNotFound, call.Capability,
			"unknown capability; available: %s", strings.Join(r.sortedNames(), ", "))
		return call
	}
	call.SideEffect = d.SideEffect

	validated, verr := validateArgs(d, args)
	if verr != nil {
		call.Error = verr
		return call
	}
	call.Arguments = validated

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: contractx.NewCapabilityError(contractx.ErrorKindInternal, d.Name, "panic: %v", p)}
			}
		}()
		res, err := d.Func(callCtx, validated, env)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			call.Error = contractx.AsCapabilityError(d.Name, o.err)
		} else {
			res := o.result
			call.Result = &res
		}
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			call.Error = contractx.NewCapabilityError(contractx.ErrorKindTimeout, d.Name,
				"no result within %s: %v", timeout, callCtx.Err())
		} else {
			call.Error = contractx.NewCapabilityError(contractx.ErrorKindCanceled, d.Name,
				"caller gave up: %v", callCtx.Err())
		}
	}
	call.Latency = r.now().Sub(start)
	return call
}

func (r *Registry) sortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}
