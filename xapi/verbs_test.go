package xapi

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerbTable(t *testing.T) {
	names := VerbNames()
	assert.Len(t, names, 28)
	assert.Contains(t, names, "voided")

	completed := Verbs.Completed()
	assert.Equal(t, "https://adlnet.gov/expapi/verbs/completed", completed.ID())
	assert.Equal(t, "completed", completed.Name())
	assert.Equal(t, LanguageMap{"de-DE": "beendete", "en-US": "completed", "fr-FR": "a terminé", "es-ES": "completó"}, completed.Display())

	waived := Verbs.Waived()
	assert.Equal(t, "https://w3id.org/xapi/adl/verbs/waived", waived.ID())
	assert.Equal(t, LanguageMap{"en-US": "waived"}, waived.Display())

	assert.Equal(t, VoidedVerbID, VoidedVerb().ID())
	assert.Equal(t, "entwertete", VoidedVerb().Display()["de-DE"])
}

func TestVerbAccessorsReturnCopies(t *testing.T) {
	mine := Verbs.Passed().WithDisplay("en-US", "aced")
	assert.Equal(t, "aced", mine.Display()["en-US"])
	assert.Equal(t, "passed", Verbs.Passed().Display()["en-US"])

	d := Verbs.Passed().Display()
	d["en-US"] = "mutated"
	assert.Equal(t, "passed", Verbs.Passed().Display()["en-US"])
}

func TestVerbLookups(t *testing.T) {
	v, ok := LookupVerb("scored")
	require.True(t, ok)
	byID, ok := VerbByID(v.ID())
	require.True(t, ok)
	assert.Equal(t, "scored", byID.Name())

	_, ok = LookupVerb("teleported")
	assert.False(t, ok)
}

func TestVerbNameNotSerialized(t *testing.T) {
	raw, err := json.Marshal(NewVerb("local name", "https://example.com/verbs/x"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"https://example.com/verbs/x"}`, string(raw))

	var v Verb
	assert.Error(t, json.Unmarshal([]byte(`{"display":{"en-US":"x"}}`), &v))
}

func TestVerbTableConcurrentReads(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, name := range VerbNames() {
				v, ok := LookupVerb(name)
				if ok {
					_ = v.WithDisplay("en-GB", name)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, "attempted", Verbs.Attempted().Name())
}
