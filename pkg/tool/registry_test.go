// SPDX-License-Identifier: AGPL-3.0
package tool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dummyArgs struct {
	City string `json:"city" jsonschema:"required,description=City name"`
}

func newDummy(t *testing.T, name string) Spec {
	t.Helper()
	spec, err := New(Config{Name: name, Description: "test tool", DefaultTimeout: time.Second}, func(tc Context, a dummyArgs) (Result, error) {
		return Result{OK: true, Summary: "ok for " + a.City}, nil
	})
	require.NoError(t, err)
	return spec
}

func TestRegistryAllowedForRouteExcludesAmadeus(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newDummy(t, NameAmadeusResolveCity)))
	require.NoError(t, r.Register(newDummy(t, NameWeather)))

	allowed := r.AllowedForRoute("policy")
	names := map[string]bool{}
	for _, s := range allowed {
		names[s.Name()] = true
	}
	assert.False(t, names[NameAmadeusResolveCity])
	assert.True(t, names[NameWeather])
}

func TestRegistryAllowedForRouteExcludesDeepResearchForPacking(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newDummy(t, NameDeepResearch)))
	require.NoError(t, r.Register(newDummy(t, NameWeather)))

	allowed := r.AllowedForRoute("packing")
	names := map[string]bool{}
	for _, s := range allowed {
		names[s.Name()] = true
	}
	assert.False(t, names[NameDeepResearch])
	assert.True(t, names[NameWeather])
}

func TestRegistryAllowedForRouteDefaultAllowsAll(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newDummy(t, NameAmadeusResolveCity)))
	require.NoError(t, r.Register(newDummy(t, NameDeepResearch)))

	allowed := r.AllowedForRoute("flights")
	assert.Len(t, allowed, 2)
}

func TestGenericSpecInvokeConvertsArgs(t *testing.T) {
	spec := newDummy(t, NameWeather)
	res, err := spec.Invoke(Context{}, map[string]any{"city": "Rome"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "ok for Rome", res.Summary)
}

func TestGenericSpecInvokeRejectsBadArgs(t *testing.T) {
	spec, err := New(Config{Name: "strict", Description: "d"}, func(tc Context, a struct {
		Count int `json:"count"`
	}) (Result, error) {
		return Result{OK: true}, nil
	})
	require.NoError(t, err)

	_, err = spec.Invoke(Context{}, map[string]any{"count": "not-a-number"})
	require.Error(t, err)
	var ie *InvokeError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ErrClassValidation, ie.Class)
}
