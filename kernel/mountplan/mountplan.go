// Package mountplan implements the kernel's mount-plan data model (spec.md
// §3) and its pure structural validator (spec.md §4.6). The validator
// operates on a generic, format-agnostic `any`-rooted tree so a mount plan
// decoded from YAML (gopkg.in/yaml.v3) or JSON validates identically — no
// module is loaded here.
package mountplan

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Issue is a single validation error or warning, with path context (e.g.
// "providers[1].module") per spec.md §4.6.
type Issue struct {
	Path    string
	Message string
}

// Check is one structural check performed during validation, recorded
// whether it passed or failed.
type Check struct {
	Name   string
	Passed bool
}

// Result is the validator's output: {passed, errors, warnings, checks} per
// spec.md §4.6.
type Result struct {
	Passed   bool
	Errors   []Issue
	Warnings []Issue
	Checks   []Check
}

func (r *Result) fail(path, msg string) {
	r.Passed = false
	r.Errors = append(r.Errors, Issue{Path: path, Message: msg})
	r.Checks = append(r.Checks, Check{Name: path, Passed: false})
}

func (r *Result) pass(path string) {
	r.Checks = append(r.Checks, Check{Name: path, Passed: true})
}

func (r *Result) warn(path, msg string) {
	r.Warnings = append(r.Warnings, Issue{Path: path, Message: msg})
}

// DecodeYAML decodes a mount plan document into the generic
// map[string]any-rooted shape Validate expects. yaml.v3 natively unmarshals
// mappings into map[string]any (unlike yaml.v2's map[interface{}]interface{}),
// so no further normalization is needed before validation.
func DecodeYAML(data []byte) (any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("mountplan: decoding yaml: %w", err)
	}
	return raw, nil
}

// Validate is a pure function from a decoded mount plan to a Result. It
// performs no I/O and loads no modules. Identical inputs yield identical
// results (spec.md §8): map iteration over unknown top-level keys is sorted
// before warnings are recorded to keep the output order deterministic.
func Validate(raw any) Result {
	var res Result
	res.Passed = true

	top, ok := raw.(map[string]any)
	if !ok {
		res.fail("", "mount plan must be a mapping")
		return res
	}
	res.pass("root_is_mapping")

	validateSession(&res, top)
	for _, section := range []string{"providers", "tools", "hooks"} {
		validateModuleSequence(&res, top, section)
	}
	validateUnknownKeys(&res, top)

	return res
}

var topLevelKeys = map[string]bool{
	"session":   true,
	"providers": true,
	"tools":     true,
	"hooks":     true,
	"agents":    true,
}

func validateUnknownKeys(res *Result, top map[string]any) {
	var unknown []string
	for k := range top {
		if !topLevelKeys[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		res.warn(k, fmt.Sprintf("unknown top-level key %q (tolerated)", k))
	}
}

func validateSession(res *Result, top map[string]any) {
	const path = "session"
	sessionRaw, present := top[path]
	if !present {
		res.fail(path, "session is required")
		return
	}
	session, ok := sessionRaw.(map[string]any)
	if !ok {
		res.fail(path, "session must be a mapping")
		return
	}
	res.pass(path)

	validateRequiredModuleSpec(res, session, path+".orchestrator", "orchestrator")
	validateRequiredModuleSpec(res, session, path+".context", "context")
}

func validateRequiredModuleSpec(res *Result, session map[string]any, path, key string) {
	val, present := session[key]
	if !present {
		res.fail(path, fmt.Sprintf("%s is required and must be a module spec", path))
		return
	}
	validateModuleSpec(res, path, val)
}

func validateModuleSequence(res *Result, top map[string]any, section string) {
	val, present := top[section]
	if !present {
		return
	}
	seq, ok := val.([]any)
	if !ok {
		res.fail(section, fmt.Sprintf("%s must be a sequence", section))
		return
	}
	res.pass(section)
	for i, item := range seq {
		validateModuleSpec(res, fmt.Sprintf("%s[%d]", section, i), item)
	}
}

// validateModuleSpec checks raw against spec.md §4.6/§6's module spec shape:
// a mapping with a non-empty string "module" (optional "config" mapping,
// optional "source" string), or the tolerated bare-string shorthand naming
// the module directly.
func validateModuleSpec(res *Result, path string, raw any) {
	if name, ok := raw.(string); ok {
		if name == "" {
			res.fail(path, "module shorthand string must be non-empty")
			return
		}
		res.pass(path)
		return
	}

	spec, ok := raw.(map[string]any)
	if !ok {
		res.fail(path, "module spec must be a mapping or a non-empty string")
		return
	}

	moduleVal, present := spec["module"]
	if !present {
		res.fail(path+".module", "module is required and must be a non-empty string")
	} else if name, ok := moduleVal.(string); !ok || name == "" {
		res.fail(path+".module", "module must be a non-empty string")
	} else {
		res.pass(path + ".module")
	}

	if configVal, present := spec["config"]; present {
		if _, ok := configVal.(map[string]any); !ok {
			res.fail(path+".config", "config must be a mapping")
		} else {
			res.pass(path + ".config")
		}
	}

	if sourceVal, present := spec["source"]; present {
		if _, ok := sourceVal.(string); !ok {
			res.fail(path+".source", "source must be a string")
		} else {
			res.pass(path + ".source")
		}
	}
}

// ModuleSpec is the typed view of a validated module spec entry, used by
// kernel/session and kernel/loader once a plan has passed Validate.
type ModuleSpec struct {
	Module string
	Config map[string]any
	Source string
}

// AsModuleSpec converts a raw validated entry (string shorthand or mapping)
// into a ModuleSpec. Callers must validate first; AsModuleSpec does not
// re-check shape and returns the zero value for malformed input.
func AsModuleSpec(raw any) ModuleSpec {
	if name, ok := raw.(string); ok {
		return ModuleSpec{Module: name}
	}
	spec, ok := raw.(map[string]any)
	if !ok {
		return ModuleSpec{}
	}
	ms := ModuleSpec{}
	if name, ok := spec["module"].(string); ok {
		ms.Module = name
	}
	if cfg, ok := spec["config"].(map[string]any); ok {
		ms.Config = cfg
	}
	if source, ok := spec["source"].(string); ok {
		ms.Source = source
	}
	return ms
}

// MountPlan is the typed view of a fully validated plan, assembled by
// kernel/session after Validate reports Passed.
type MountPlan struct {
	Orchestrator           ModuleSpec
	Context                ModuleSpec
	InjectionBudgetPerTurn int // 0 = unlimited (absent in the source plan)
	InjectionSizeLimit     int // 0 = unlimited
	Debug                  bool
	RawDebug               bool
	Providers              []ModuleSpec
	Tools                  []ModuleSpec
	Hooks                  []ModuleSpec
	// Agents is stored and forwarded verbatim; the kernel never interprets
	// it (spec.md §4.6/§9 — app-layer semantics).
	Agents map[string]any
}

// FromValidated builds a typed MountPlan from a raw tree already confirmed
// Passed by Validate. Behavior on an unvalidated or failing tree is
// undefined; callers must check Result.Passed first.
func FromValidated(raw any) MountPlan {
	top, _ := raw.(map[string]any)
	session, _ := top["session"].(map[string]any)

	plan := MountPlan{
		Orchestrator: AsModuleSpec(session["orchestrator"]),
		Context:      AsModuleSpec(session["context"]),
	}
	if v, ok := intValue(session["injection_budget_per_turn"]); ok {
		plan.InjectionBudgetPerTurn = v
	}
	if v, ok := intValue(session["injection_size_limit"]); ok {
		plan.InjectionSizeLimit = v
	}
	if v, ok := session["debug"].(bool); ok {
		plan.Debug = v
	}
	if v, ok := session["raw_debug"].(bool); ok {
		plan.RawDebug = v
	}

	plan.Providers = moduleSpecSequence(top, "providers")
	plan.Tools = moduleSpecSequence(top, "tools")
	plan.Hooks = moduleSpecSequence(top, "hooks")

	if agents, ok := top["agents"].(map[string]any); ok {
		plan.Agents = agents
	}
	return plan
}

func moduleSpecSequence(top map[string]any, key string) []ModuleSpec {
	seq, ok := top[key].([]any)
	if !ok {
		return nil
	}
	out := make([]ModuleSpec, len(seq))
	for i, item := range seq {
		out[i] = AsModuleSpec(item)
	}
	return out
}

func intValue(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}
