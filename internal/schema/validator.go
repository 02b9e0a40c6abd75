// Package schema is a pluggable pre-verification stage: it fetches and
// caches JSON Schemas, validates a credential against them, then runs a
// caller-supplied list of custom rules.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/apierror"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/logger"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/model"
)

// supportedSchemaTypes are the recognized `type` discriminators on a
// credentialSchema reference.
var supportedSchemaTypes = map[string]bool{
	"1EdTechJsonSchemaValidator2019": true,
	"JsonSchemaValidator2020":        true,
}

// Reference is one entry of a credential's `credentialSchema` array.
type Reference struct {
	ID   string
	Type string
}

// Rule is a custom validation rule run after schema validation succeeds.
type Rule func(a *model.Assertion) error

// Validator caches compiled schemas keyed by URL. Reads take the shared
// lock; only inserts take the exclusive one.
type Validator struct {
	compiler *jsonschema.Compiler
	log      *logger.Log
	timeout  time.Duration

	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema

	rules []Rule
}

// New constructs a Validator. timeout bounds every schema fetch
// (default 10s).
func New(log *logger.Log, timeout time.Duration, rules ...Rule) *Validator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Validator{
		compiler: jsonschema.NewCompiler(),
		log:      log,
		timeout:  timeout,
		cache:    make(map[string]*jsonschema.Schema),
		rules:    rules,
	}
}

// Validate fetches (or reuses a cached) schema for each reference, checks
// the assertion against it, then runs the configured custom rules.
func (v *Validator) Validate(ctx context.Context, a *model.Assertion, refs []Reference) error {
	for _, ref := range refs {
		if !supportedSchemaTypes[ref.Type] {
			return apierror.NewWithDetails(apierror.UnsupportedSchemaTypeError, ref.Type)
		}

		s, err := v.getSchema(ctx, ref.ID)
		if err != nil {
			return err
		}

		raw, err := json.Marshal(a)
		if err != nil {
			return apierror.Wrap(apierror.CredentialSchemaValidationError, err)
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return apierror.Wrap(apierror.CredentialSchemaValidationError, err)
		}

		result := s.Validate(doc)
		if !result.IsValid() {
			return apierror.NewWithDetails(apierror.CredentialSchemaValidationError, formatEvaluationErrors(result))
		}
	}

	for _, rule := range v.rules {
		if err := rule(a); err != nil {
			return apierror.Wrap(apierror.CredentialSchemaValidationError, err)
		}
	}

	return nil
}

// getSchema returns the cached compiled schema for url, fetching and
// sanity-checking it under v.timeout on a cache miss.
func (v *Validator) getSchema(ctx context.Context, url string) (*jsonschema.Schema, error) {
	v.mu.RLock()
	cached, ok := v.cache[url]
	v.mu.RUnlock()
	if ok {
		return cached, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	type fetchResult struct {
		schema *jsonschema.Schema
		err    error
	}
	done := make(chan fetchResult, 1)
	go func() {
		s, err := v.compiler.GetSchema(url)
		done <- fetchResult{s, err}
	}()

	select {
	case <-fetchCtx.Done():
		return nil, apierror.New(apierror.SchemaValidationTimeoutError)
	case res := <-done:
		if res.err != nil {
			return nil, apierror.Wrap(apierror.SchemaFetchError, res.err)
		}
		if err := sanityCheck(res.schema); err != nil {
			return nil, err
		}

		v.mu.Lock()
		v.cache[url] = res.schema
		v.mu.Unlock()

		return res.schema, nil
	}
}

// sanityCheck rejects fetched objects that are clearly not schemas: a
// schema must expose $schema, type, properties, or items.
func sanityCheck(s *jsonschema.Schema) error {
	if s == nil {
		return apierror.New(apierror.InvalidSchemaError)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return apierror.Wrap(apierror.InvalidSchemaError, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return apierror.Wrap(apierror.InvalidSchemaError, err)
	}
	for _, key := range []string{"$schema", "type", "properties", "items"} {
		if _, ok := fields[key]; ok {
			return nil
		}
	}
	return apierror.New(apierror.InvalidSchemaError)
}

func formatEvaluationErrors(result *jsonschema.EvaluationResult) []map[string]any {
	out := []map[string]any{}
	for _, detail := range result.Details {
		if detail.Valid {
			continue
		}
		errMsg := map[string]any{}
		for _, e := range detail.Errors {
			errMsg[e.Code] = e.Error()
		}
		out = append(out, map[string]any{
			"location": detail.InstanceLocation,
			"message":  errMsg,
		})
	}
	return out
}

// ValidateIssuanceDate requires a parseable issuance timestamp.
func ValidateIssuanceDate(a *model.Assertion) error {
	issued := a.IssuedOn
	if issued == "" {
		issued = a.IssuanceDate
	}
	if issued == "" {
		return fmt.Errorf("missing issuance date")
	}
	if _, err := time.Parse(time.RFC3339, issued); err != nil {
		return fmt.Errorf("invalid issuance date: %w", err)
	}
	return nil
}

// ValidateExpirationDate requires that expires, when present, parses and
// does not precede issuedOn.
func ValidateExpirationDate(a *model.Assertion) error {
	expires := a.Expires
	if expires == "" {
		expires = a.ExpirationDate
	}
	if expires == "" {
		return nil
	}
	expiresAt, err := time.Parse(time.RFC3339, expires)
	if err != nil {
		return fmt.Errorf("invalid expiration date: %w", err)
	}

	issued := a.IssuedOn
	if issued == "" {
		issued = a.IssuanceDate
	}
	if issued == "" {
		return nil
	}
	issuedAt, err := time.Parse(time.RFC3339, issued)
	if err == nil && expiresAt.Before(issuedAt) {
		return fmt.Errorf("expiration date precedes issuance date")
	}
	return nil
}

// ValidateIssuer requires a non-empty issuer.
func ValidateIssuer(a *model.Assertion) error {
	if a.Issuer == "" {
		return fmt.Errorf("missing issuer")
	}
	return nil
}
