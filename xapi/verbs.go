package xapi

import "sort"

const (
	adlVerbBase  = "https://adlnet.gov/expapi/verbs/"
	w3idVerbBase = "https://w3id.org/xapi/adl/verbs/"

	// VoidedVerbID is the IRI reserved for voiding statements.
	VoidedVerbID = "http://adlnet.gov/expapi/verbs/voided"
)

type verbSpec struct {
	name    string
	id      string
	display [][2]string
}

func adl(name, de, fr, es string) verbSpec {
	return verbSpec{
		name: name,
		id:   adlVerbBase + name,
		display: [][2]string{
			{"de-DE", de},
			{"en-US", name},
			{"fr-FR", fr},
			{"es-ES", es},
		},
	}
}

func w3id(name string) verbSpec {
	return verbSpec{name: name, id: w3idVerbBase + name, display: [][2]string{{"en-US", name}}}
}

var verbSpecs = []verbSpec{
	w3id("abandoned"),
	adl("answered", "beantwortete", "a répondu", "contestó"),
	adl("asked", "fragte", "a demandé", "preguntó"),
	adl("attempted", "versuchte", "a essayé", "intentó"),
	adl("attended", "nahm teil an", "a suivi", "asistió"),
	adl("commented", "kommentierte", "a commenté", "comentó"),
	adl("completed", "beendete", "a terminé", "completó"),
	adl("exited", "verließ", "a quitté", "salió"),
	adl("experienced", "erlebte", "a éprouvé", "experimentó"),
	adl("failed", "verfehlte", "a échoué", "fracasó"),
	adl("imported", "importierte", "a importé", "importó"),
	adl("initialized", "initialisierte", "a initialisé", "inicializó"),
	adl("interacted", "interagierte", "a interagi", "interactuó"),
	adl("launched", "startete", "a lancé", "lanzó"),
	adl("mastered", "meisterte", "a maîtrisé", "dominó"),
	adl("passed", "bestand", "a réussi", "aprobó"),
	adl("preferred", "bevorzugte", "a préféré", "prefirió"),
	adl("progressed", "machte Fortschritt mit", "a progressé", "progresó"),
	adl("registered", "registrierte", "a enregistré", "registró"),
	adl("responded", "reagierte", "a répondu", "respondió"),
	adl("resumed", "setzte fort", "a repris", "continuó"),
	w3id("satisfied"),
	adl("scored", "erreichte", "a marqué", "anotó"),
	adl("shared", "teilte", "a partagé", "compartió"),
	adl("suspended", "pausierte", "a suspendu", "aplazó"),
	adl("terminated", "beendete", "a terminé", "terminó"),
	w3id("waived"),
	{
		name: "voided",
		id:   VoidedVerbID,
		display: [][2]string{
			{"de-DE", "entwertete"},
			{"en-US", "voided"},
			{"fr-FR", "a annulé"},
			{"es-ES", "anuló"},
		},
	},
}

var (
	verbsByName = map[string]Verb{}
	verbsByID   = map[string]Verb{}
	verbNames   []string
)

func init() {
	for _, spec := range verbSpecs {
		v := NewVerb(spec.name, spec.id)
		for _, pair := range spec.display {
			v = v.WithDisplay(pair[0], pair[1])
		}
		verbsByName[spec.name] = v
		verbsByID[spec.id] = v
		verbNames = append(verbNames, spec.name)
	}
	sort.Strings(verbNames)
}

// LookupVerb returns a copy of the well-known verb with the given name.
func LookupVerb(name string) (Verb, bool) {
	v, ok := verbsByName[name]
	if !ok {
		return Verb{}, false
	}
	return v.clone(), true
}

// VerbByID returns a copy of the well-known verb with the given IRI.
func VerbByID(id string) (Verb, bool) {
	v, ok := verbsByID[id]
	if !ok {
		return Verb{}, false
	}
	return v.clone(), true
}

// VerbNames lists the well-known verb names in alphabetical order.
func VerbNames() []string {
	return append([]string(nil), verbNames...)
}

// VoidedVerb returns the reserved voiding verb.
func VoidedVerb() Verb { return known("voided") }

func known(name string) Verb {
	return verbsByName[name].clone()
}

// VerbSet exposes the ADL vocabulary. Each accessor returns a fresh copy.
type VerbSet struct{}

// Verbs is the ADL verb vocabulary.
var Verbs VerbSet

func (VerbSet) Abandoned() Verb   { return known("abandoned") }
func (VerbSet) Answered() Verb    { return known("answered") }
func (VerbSet) Asked() Verb       { return known("asked") }
func (VerbSet) Attempted() Verb   { return known("attempted") }
func (VerbSet) Attended() Verb    { return known("attended") }
func (VerbSet) Commented() Verb   { return known("commented") }
func (VerbSet) Completed() Verb   { return known("completed") }
func (VerbSet) Exited() Verb      { return known("exited") }
func (VerbSet) Experienced() Verb { return known("experienced") }
func (VerbSet) Failed() Verb      { return known("failed") }
func (VerbSet) Imported() Verb    { return known("imported") }
func (VerbSet) Initialized() Verb { return known("initialized") }
func (VerbSet) Interacted() Verb  { return known("interacted") }
func (VerbSet) Launched() Verb    { return known("launched") }
func (VerbSet) Mastered() Verb    { return known("mastered") }
func (VerbSet) Passed() Verb      { return known("passed") }
func (VerbSet) Preferred() Verb   { return known("preferred") }
func (VerbSet) Progressed() Verb  { return known("progressed") }
func (VerbSet) Registered() Verb  { return known("registered") }
func (VerbSet) Responded() Verb   { return known("responded") }
func (VerbSet) Resumed() Verb     { return known("resumed") }
func (VerbSet) Satisfied() Verb   { return known("satisfied") }
func (VerbSet) Scored() Verb      { return known("scored") }
func (VerbSet) Shared() Verb      { return known("shared") }
func (VerbSet) Suspended() Verb   { return known("suspended") }
func (VerbSet) Terminated() Verb  { return known("terminated") }
func (VerbSet) Waived() Verb      { return known("waived") }
