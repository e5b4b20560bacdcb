package expression

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/flowkit/topicflow/errors"
	"github.com/flowkit/topicflow/memory"
	"github.com/flowkit/topicflow/types"
)

// ScriptRunner executes a stored script by name. Implemented by the
// script package; nil disables script calls.
type ScriptRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// Resolver turns rule templates into concrete payloads. Resolution works
// inside-out: the triggering payload is substituted for "input" first,
// then memory reads, calculations, and script calls are replaced with
// their results until the text contains no more calls. Literal text,
// including JSON fragments and embedded quotes, passes through verbatim.
type Resolver struct {
	store   *memory.Store
	calc    *Calculator
	scripts ScriptRunner
	logger  *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithScriptRunner wires the stored-script executor.
func WithScriptRunner(runner ScriptRunner) ResolverOption {
	return func(r *Resolver) {
		r.scripts = runner
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a resolver over the given memory store and
// calculator.
func NewResolver(store *memory.Store, calc *Calculator, options ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  store,
		calc:   calc,
		logger: slog.Default().With("component", "expression-resolver"),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Resolve substitutes the triggering payload and resolves every call in
// the template. Text without calls comes back unchanged.
func (r *Resolver) Resolve(ctx context.Context, template string, entry *types.TopicEntry) (string, error) {
	if template == "" {
		return "", nil
	}

	payload := ""
	if entry != nil {
		payload = entry.Payload
	}
	out := replaceFold(template, inputKeyword, payload)

	for pass := 0; pass < maxResolvePasses; pass++ {
		c, ok := scan(out)
		if !ok {
			return out, nil
		}
		result, err := r.resolveCall(ctx, c)
		if err != nil {
			return "", err
		}
		out = out[:c.start] + result + out[c.end:]
	}
	return "", errors.WrapInvalid(
		fmt.Errorf("%w: resolution did not terminate after %d passes", errors.ErrEvaluationFailed, maxResolvePasses),
		"resolver", "Resolve", "resolve template")
}

func (r *Resolver) resolveCall(ctx context.Context, c call) (string, error) {
	switch c.kind {
	case callRead:
		if r.store == nil {
			return "", nil
		}
		value, _ := r.store.ReadLatest(unquote(c.arg))
		return value, nil
	case callCalc:
		return r.calc.Evaluate(ctx, c.arg)
	case callScript:
		if r.scripts == nil {
			return "", errors.WrapInvalid(
				fmt.Errorf("%w: %s", errors.ErrScriptNotFound, c.name),
				"resolver", "resolveCall", "run script without executor")
		}
		return r.scripts.Run(ctx, c.name, splitArgs(c.arg)...)
	default:
		return "", errors.WrapInvalid(errors.ErrParseFailed, "resolver", "resolveCall", "resolve unknown call kind")
	}
}

// ResolveGuard resolves a rule's guard expression and coerces the result
// to a boolean. An empty guard always fires. A guard that still contains
// comparison or math operators after resolution is evaluated as a
// calculation first, so "input > 5" works without an explicit Calc.
func (r *Resolver) ResolveGuard(ctx context.Context, guard string, entry *types.TopicEntry) (bool, error) {
	if strings.TrimSpace(guard) == "" {
		return true, nil
	}
	resolved, err := r.Resolve(ctx, guard, entry)
	if err != nil {
		return false, err
	}
	if hasCalcOps(resolved) {
		resolved, err = r.calc.Evaluate(ctx, resolved)
		if err != nil {
			return false, err
		}
	}
	return Truthy(resolved), nil
}

// PreparePayload resolves a rule's target payload. A resolved payload
// that reads as a bare calculation is evaluated, so a target of
// "Calc(Read('counter')) + 1" or "input * 2" publishes the numeric
// result rather than the formula. JSON-looking payloads are never
// evaluated. A payload referencing "$['Property']" extracts that
// property from the triggering JSON payload.
func (r *Resolver) PreparePayload(ctx context.Context, target string, entry *types.TopicEntry) (string, error) {
	resolved, err := r.Resolve(ctx, target, entry)
	if err != nil {
		return "", err
	}

	if strings.Contains(resolved, "$[") && entry != nil {
		resolved = extractJSONProperty(resolved, entry.Payload)
	}

	if IsCalculation(resolved) && !looksLikeJSON(resolved) {
		evaluated, err := r.calc.Evaluate(ctx, resolved)
		if err != nil {
			// Keep the resolved text when it only looked like a
			// calculation, matching the permissive payload path.
			r.logger.Warn("Payload calculation failed, publishing resolved text",
				"payload", resolved, "error", err)
			return resolved, nil
		}
		return evaluated, nil
	}
	return resolved, nil
}

// IsCalculation reports whether resolved text should be evaluated as a
// calculation: it contains a math operator, or the word "not".
func IsCalculation(s string) bool {
	return hasMathOps(s) || containsWordFold(s, "not")
}

// Truthy coerces resolved guard text to a boolean. Empty, "0", and
// "false" are false; "1" and "true" are true; other numerics are true
// when non-zero; any other non-empty text is true.
func Truthy(s string) bool {
	v := strings.TrimSpace(s)
	switch strings.ToLower(v) {
	case "", "0", "false":
		return false
	case "1", "true":
		return true
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f != 0
	}
	return true
}

func hasMathOps(s string) bool {
	return strings.ContainsAny(s, "+-*/^=%")
}

// hasCalcOps extends hasMathOps with comparison operators for guard
// evaluation.
func hasCalcOps(s string) bool {
	return hasMathOps(s) || strings.ContainsAny(s, "<>!") || containsWordFold(s, "not")
}

// containsWordFold reports whether word occurs in s on identifier
// boundaries, case folded.
func containsWordFold(s, word string) bool {
	lower := strings.ToLower(s)
	word = strings.ToLower(word)
	from := 0
	for {
		i := strings.Index(lower[from:], word)
		if i < 0 {
			return false
		}
		i += from
		before := i == 0 || !isIdentChar(lower[i-1])
		afterIdx := i + len(word)
		after := afterIdx >= len(lower) || !isIdentChar(lower[afterIdx])
		if before && after {
			return true
		}
		from = i + len(word)
	}
}

// looksLikeJSON reports whether the payload is a JSON object or array
// literal and must pass through without evaluation.
func looksLikeJSON(s string) bool {
	trimmed := strings.TrimSpace(s)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// extractJSONProperty replaces the first "$['Property']" reference with
// that property's value from the triggering JSON payload. Unparseable
// payloads or missing properties leave the text unchanged.
func extractJSONProperty(resolved, payload string) string {
	start := strings.Index(resolved, "$[")
	if start < 0 {
		return resolved
	}
	rel := strings.Index(resolved[start:], "]")
	if rel < 0 {
		return resolved
	}
	location := resolved[start : start+rel+1]
	key := strings.Trim(location[2:len(location)-1], `'" `)

	var doc map[string]any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return resolved
	}
	value, ok := doc[key]
	if !ok {
		return resolved
	}
	return strings.Replace(resolved, location, jsonValueString(value), 1)
}

func jsonValueString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return formatScalar(x)
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(raw)
	}
}
